package detect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/trigate/trigate/pkg/jsontime"
	"github.com/trigate/trigate/pkg/media"
)

// DefaultInterval is the default polling cadence.
const DefaultInterval = 100 * time.Millisecond

// ErrAlreadyStarted is returned when Start is called twice on one Live
// instance. A Live is not restartable; create a new one instead.
var ErrAlreadyStarted = errors.New("detect: already started")

// FrameSource provides the most recent video frame. A media session's
// VideoTrack satisfies it.
type FrameSource interface {
	Latest() (*media.Frame, bool)
}

// Observation is the result of one detection tick.
type Observation struct {
	// Time is the tick timestamp.
	Time jsontime.Milli `json:"t"`

	// Detections holds zero or more face detections for the sampled frame.
	Detections []Detection `json:"detections"`

	// Degraded is true when the detector is running without a model.
	Degraded bool `json:"degraded,omitempty"`
}

// Live polls video frames at a fixed cadence and emits detection
// observations for as long as it is running. It reads frames only; it
// never starts or stops the underlying track.
type Live struct {
	src      FrameSource
	model    Model
	interval time.Duration
	log      *slog.Logger

	obs chan Observation

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// LiveOption configures a Live detector.
type LiveOption func(*Live)

// WithInterval sets the polling interval (default 100ms).
func WithInterval(d time.Duration) LiveOption {
	return func(l *Live) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the detector's logger.
func WithLogger(log *slog.Logger) LiveOption {
	return func(l *Live) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLive creates a live detector reading frames from src. A nil model puts
// the detector in degraded (fail-open) mode: it still runs and reports
// active so the flow is not blocked, but every observation is empty.
func NewLive(src FrameSource, model Model, opts ...LiveOption) *Live {
	l := &Live{
		src:      src,
		model:    model,
		interval: DefaultInterval,
		log:      slog.Default(),
		obs:      make(chan Observation, 8),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the polling loop. It returns ErrAlreadyStarted on a second
// call; a Live instance runs at most once.
func (l *Live) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true

	ctx, l.cancel = context.WithCancel(ctx)
	if l.model == nil {
		l.log.Warn("detection model unavailable, running fail-open")
	}
	go l.run(ctx)
	return nil
}

// Observations returns the stream of detection results. When the consumer
// falls behind, older observations are dropped; only the freshest ticks
// matter for overlay feedback.
func (l *Live) Observations() <-chan Observation {
	return l.obs
}

// Active reports whether the detector is running. A degraded detector is
// still active.
func (l *Live) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Degraded reports whether the detector runs without a model.
func (l *Live) Degraded() bool {
	return l.model == nil
}

// Stop cancels the polling loop and waits for it to exit. Calling Stop on a
// detector that was never started is a no-op, and Stop is idempotent.
func (l *Live) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	started := l.started
	l.mu.Unlock()
	if !started || cancel == nil {
		return
	}
	cancel()
	<-l.done
}

func (l *Live) run(ctx context.Context) {
	defer close(l.done)
	defer close(l.obs)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		l.emit(l.tick(ctx))
	}
}

// tick samples the current frame and runs one detection pass.
func (l *Live) tick(ctx context.Context) Observation {
	obs := Observation{
		Time:     jsontime.NowEpochMilli(),
		Degraded: l.model == nil,
	}
	if l.model == nil {
		return obs
	}

	frame, ok := l.src.Latest()
	if !ok {
		return obs
	}

	dets, err := l.model.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Debug("detection tick failed", "error", err, "frame", frame.Seq)
		}
		return obs
	}
	obs.Detections = dets
	return obs
}

// emit performs a non-blocking send, dropping the oldest observation when
// the consumer is behind.
func (l *Live) emit(o Observation) {
	select {
	case l.obs <- o:
	default:
		select {
		case <-l.obs:
		default:
		}
		select {
		case l.obs <- o:
		default:
		}
	}
}
