package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trigate/trigate/pkg/jsontime"
	"github.com/trigate/trigate/pkg/media"
	"github.com/trigate/trigate/pkg/media/pcm"
)

// Sentinel errors.
var (
	// ErrRecorderBusy is returned when a recording is started while another
	// is in flight. This is an internal invariant violation: the
	// orchestrator sequences recordings and should never trip it.
	ErrRecorderBusy = errors.New("capture: recorder busy")

	// ErrEncodingFailed is returned when the captured media cannot be
	// encoded into the requested container. The step can be retried.
	ErrEncodingFailed = errors.New("capture: encoding failed")
)

// Recorder captures time-boxed segments from one media session. Only one
// recording may be in flight at a time; the recorder reads frames and audio
// from the session's tracks but never starts or stops them.
type Recorder struct {
	sess         *media.Session
	verifyFormat pcm.Format
	log          *slog.Logger

	busy atomic.Bool

	mu   sync.Mutex
	stop func() // closes the active recording's stop channel, nil when idle
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithVerifyFormat sets the audio format segments are encoded to before
// submission (default 16kHz mono, what the voice service expects).
func WithVerifyFormat(f pcm.Format) RecorderOption {
	return func(r *Recorder) {
		r.verifyFormat = f
	}
}

// WithLogger sets the recorder's logger.
func WithLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRecorder creates a recorder bound to sess.
func NewRecorder(sess *media.Session, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sess:         sess,
		verifyFormat: pcm.L16Mono16K,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record captures a segment of the given modality. It completes when
// duration elapses or an explicit Stop arrives, whichever is earlier; the
// two triggers are mutually exclusive and exactly one completes the
// segment. FaceImage ignores duration and snapshots the most recent frame.
//
// Returns ErrRecorderBusy when a recording is already in flight and
// media.ErrDeviceUnavailable when the session has no active tracks.
func (r *Recorder) Record(ctx context.Context, modality Modality, duration time.Duration) (*Segment, error) {
	if !r.sess.Active() {
		return nil, fmt.Errorf("capture: session has no active tracks: %w", media.ErrDeviceUnavailable)
	}
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrRecorderBusy
	}
	defer r.busy.Store(false)

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	r.mu.Lock()
	r.stop = func() { stopOnce.Do(func() { close(stopCh) }) }
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.stop = nil
		r.mu.Unlock()
	}()

	switch modality {
	case FaceImage:
		return r.recordFace(ctx)
	case VoiceAudio:
		return r.recordVoice(ctx, stopCh, duration)
	case AVClip:
		return r.recordAV(ctx, stopCh, duration)
	default:
		return nil, fmt.Errorf("capture: unknown modality %d", modality)
	}
}

// Stop completes the in-flight recording early. It reports whether a
// recording was actually signalled; stopping an idle recorder is a no-op.
func (r *Recorder) Stop() bool {
	r.mu.Lock()
	stop := r.stop
	r.mu.Unlock()
	if stop == nil {
		return false
	}
	stop()
	return true
}

// Busy reports whether a recording is in flight.
func (r *Recorder) Busy() bool {
	return r.busy.Load()
}

// recordFace snapshots the most recent frame from the live stream.
func (r *Recorder) recordFace(ctx context.Context) (*Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	frame, err := r.sess.Video().WaitFrame(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("capture: no video frame: %w", media.ErrDeviceUnavailable)
		}
		return nil, fmt.Errorf("capture: face snapshot: %w", err)
	}

	r.log.Debug("captured face snapshot", "frame", frame.Seq, "bytes", len(frame.Data))
	return &Segment{
		ID:         uuid.NewString(),
		Modality:   FaceImage,
		Payload:    frame.Data,
		CapturedAt: jsontime.NowEpochMilli(),
	}, nil
}

// recordVoice captures audio until the timer or a manual stop fires.
func (r *Recorder) recordVoice(ctx context.Context, stopCh <-chan struct{}, duration time.Duration) (*Segment, error) {
	trackFormat := r.sess.Audio().Format()
	ring, cancelSub := r.sess.Audio().Subscribe(int(trackFormat.BytesInDuration(duration)) + trackFormat.BytesRate())
	defer cancelSub()

	start := time.Now()
	collected := r.collectAudio(ring)

	if err := r.waitComplete(ctx, stopCh, duration); err != nil {
		cancelSub()
		<-collected
		return nil, err
	}
	elapsed := time.Since(start)

	cancelSub() // closes the ring's write side; the collector drains to EOF
	raw := <-collected

	payload, err := encodeWAV(raw, trackFormat, r.verifyFormat)
	if err != nil {
		return nil, err
	}

	r.log.Debug("captured voice segment",
		"elapsed", elapsed, "nominal", duration, "bytes", len(payload))
	return &Segment{
		ID:              uuid.NewString(),
		Modality:        VoiceAudio,
		Payload:         payload,
		NominalDuration: jsontime.Duration(duration),
		ActualDuration:  jsontime.Duration(elapsed),
		CapturedAt:      jsontime.NowEpochMilli(),
	}, nil
}

// recordAV captures video frames and audio until the timer or a manual
// stop fires.
func (r *Recorder) recordAV(ctx context.Context, stopCh <-chan struct{}, duration time.Duration) (*Segment, error) {
	trackFormat := r.sess.Audio().Format()
	ring, cancelAudio := r.sess.Audio().Subscribe(int(trackFormat.BytesInDuration(duration)) + trackFormat.BytesRate())
	defer cancelAudio()

	frames, cancelVideo := r.sess.Video().Subscribe(256)
	defer cancelVideo()

	start := time.Now()
	collectedAudio := r.collectAudio(ring)
	collectedFrames := make(chan [][]byte, 1)
	go func() {
		var fs [][]byte
		for f := range frames {
			fs = append(fs, f.Data)
		}
		collectedFrames <- fs
	}()

	if err := r.waitComplete(ctx, stopCh, duration); err != nil {
		cancelAudio()
		cancelVideo()
		<-collectedAudio
		<-collectedFrames
		return nil, err
	}
	elapsed := time.Since(start)

	cancelAudio()
	cancelVideo()
	raw := <-collectedAudio
	frameData := <-collectedFrames

	audioPayload, err := encodeWAV(raw, trackFormat, r.verifyFormat)
	if err != nil {
		return nil, err
	}

	r.log.Debug("captured av segment",
		"elapsed", elapsed, "nominal", duration, "frames", len(frameData))
	return &Segment{
		ID:              uuid.NewString(),
		Modality:        AVClip,
		Payload:         encodeMJPEG(frameData),
		AudioPayload:    audioPayload,
		FrameCount:      len(frameData),
		NominalDuration: jsontime.Duration(duration),
		ActualDuration:  jsontime.Duration(elapsed),
		CapturedAt:      jsontime.NowEpochMilli(),
	}, nil
}

// waitComplete blocks until the auto-stop timer, a manual stop, or
// cancellation. The select guarantees exactly one trigger completes the
// recording.
func (r *Recorder) waitComplete(ctx context.Context, stopCh <-chan struct{}, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collectAudio drains the ring into a buffer on a separate goroutine and
// delivers the result once the ring's write side closes.
func (r *Recorder) collectAudio(ring *pcm.Ring) <-chan []byte {
	out := make(chan []byte, 1)
	go func() {
		var buf []byte
		chunk := make([]byte, 4096)
		for {
			n, err := ring.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if err != nil {
				if err != io.EOF {
					r.log.Debug("audio collect ended", "error", err)
				}
				break
			}
		}
		out <- buf
	}()
	return out
}
