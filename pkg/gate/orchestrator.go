package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trigate/trigate/pkg/capture"
	"github.com/trigate/trigate/pkg/detect"
	"github.com/trigate/trigate/pkg/media"
)

var (
	// ErrCancelled is returned by Run and Retry when the caller aborted
	// the flow.
	ErrCancelled = errors.New("gate: cancelled")

	// ErrNoSession is returned by Retry when the media session is gone
	// and a fresh Run is required.
	ErrNoSession = errors.New("gate: no active media session")

	// ErrAttemptActive is returned when Run or Retry is called while an
	// attempt is still in flight.
	ErrAttemptActive = errors.New("gate: attempt already in progress")
)

// Default step durations.
const (
	DefaultVoiceDuration   = 5 * time.Second
	DefaultLipsyncDuration = 4 * time.Second
)

// AdvancePolicy controls how the flow moves from one step to the next.
type AdvancePolicy int

const (
	// AutoAdvance starts each capture as soon as the previous step's
	// verification call has been issued.
	AutoAdvance AdvancePolicy = iota

	// ManualConfirm waits for Confirm before starting each capture.
	ManualConfirm
)

// String returns the policy name.
func (p AdvancePolicy) String() string {
	if p == ManualConfirm {
		return "manual"
	}
	return "auto"
}

// Verifier scores captured segments. Implementations return an error only
// for programmer mistakes (nil segment, wrong modality); a scoring service
// that refuses, times out or is unreachable must still be reported, and
// the orchestrator converts any returned error into a failing StepResult
// rather than aborting the attempt.
type Verifier interface {
	VerifyFace(ctx context.Context, seg *capture.Segment, profileID, subjectID string) (*StepResult, error)
	VerifyVoice(ctx context.Context, seg *capture.Segment, profileID, subjectID string) (*StepResult, error)
	VerifyLipsync(ctx context.Context, seg *capture.Segment) (*StepResult, error)
}

// Config parameterizes an Orchestrator.
type Config struct {
	// ProfileID names the enrolled profile to authenticate against.
	ProfileID string

	// SubjectID identifies the authenticating subject.
	SubjectID string

	// Policy selects auto or confirm-gated step advancement.
	Policy AdvancePolicy

	// VoiceDuration bounds the voice recording. Defaults to 5s.
	VoiceDuration time.Duration

	// LipsyncDuration bounds the av clip recording. Defaults to 4s.
	LipsyncDuration time.Duration

	// Constraints configure the media session.
	Constraints media.Constraints

	// Model is the face-presence detector backing the live preview
	// feedback. Nil runs the flow in degraded mode: no presence hints,
	// captures proceed regardless.
	Model detect.Model

	// Archiver, when set, persists each attempt's segments and outcome.
	// Archive failures are logged, never fail the attempt.
	Archiver *Archiver

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Orchestrator runs the three-step verification flow over a single media
// session. A session is acquired once per Run; Retry reuses it. All three
// steps always run to a verdict: an early failure never short-circuits the
// later steps.
type Orchestrator struct {
	dev      media.Device
	verifier Verifier
	cfg      Config
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	attempt int
	running bool
	sess    *media.Session
	rec     *capture.Recorder
	det     *detect.Live
	cancel  context.CancelFunc
	aborted bool

	events  chan Event
	confirm chan struct{}
}

// New builds an Orchestrator. The media session is not acquired until Run.
func New(dev media.Device, verifier Verifier, cfg Config) *Orchestrator {
	if cfg.VoiceDuration <= 0 {
		cfg.VoiceDuration = DefaultVoiceDuration
	}
	if cfg.LipsyncDuration <= 0 {
		cfg.LipsyncDuration = DefaultLipsyncDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		dev:      dev,
		verifier: verifier,
		cfg:      cfg,
		log:      cfg.Logger.With("profile", cfg.ProfileID),
		state:    StateIdle,
		events:   make(chan Event, 32),
		confirm:  make(chan struct{}, 1),
	}
}

// State returns the current flow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Events returns the orchestrator's event stream. The stream is never
// closed; a consumer that falls behind loses the oldest events.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Detector returns the live presence detector, or nil before Run.
func (o *Orchestrator) Detector() *detect.Live {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.det
}

// Session returns the media session, or nil before Run / after Close.
func (o *Orchestrator) Session() *media.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

// Confirm releases the next confirm-gated capture under ManualConfirm.
// A no-op under AutoAdvance or when no capture is waiting.
func (o *Orchestrator) Confirm() {
	select {
	case o.confirm <- struct{}{}:
	default:
	}
}

// StopCapture ends the in-flight recording early. It reports whether a
// recording was actually stopped.
func (o *Orchestrator) StopCapture() bool {
	o.mu.Lock()
	rec := o.rec
	o.mu.Unlock()
	if rec == nil {
		return false
	}
	return rec.Stop()
}

// Cancel aborts the in-flight attempt. Run (or Retry) returns ErrCancelled
// and the media session is released; safe to call at any time.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	o.aborted = true
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close releases the media session and stops the detector. The
// orchestrator cannot be reused after Close; results of the last attempt
// remain available to the caller.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	det, sess := o.det, o.sess
	o.det, o.sess, o.rec = nil, nil, nil
	o.mu.Unlock()
	if det != nil {
		det.Stop()
	}
	if sess != nil {
		sess.Release()
	}
}

// Run acquires the media session and executes one full attempt. A device
// that cannot be opened fails the attempt before it starts and the flow
// never leaves Idle. On success the session stays alive for Retry; call
// Close when done.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAttemptActive
	}
	if o.sess != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("gate: session already acquired, use Retry")
	}
	o.running = true
	o.mu.Unlock()
	defer o.clearRunning()

	sess, err := media.Acquire(ctx, o.dev, o.cfg.Constraints, media.WithLogger(o.log))
	if err != nil {
		return nil, fmt.Errorf("acquire media session: %w", err)
	}

	det := detect.NewLive(sess.Video(), o.cfg.Model, detect.WithLogger(o.log))
	if err := det.Start(context.WithoutCancel(ctx)); err != nil {
		sess.Release()
		return nil, fmt.Errorf("start detector: %w", err)
	}
	if det.Degraded() {
		o.log.Warn("presence detector unavailable, running degraded")
	}

	o.mu.Lock()
	o.sess = sess
	o.det = det
	o.rec = capture.NewRecorder(sess, capture.WithLogger(o.log))
	o.mu.Unlock()

	return o.runAttempt(ctx)
}

// Retry clears the previous attempt's results and runs the flow again over
// the same media session. The session is never re-acquired while healthy.
func (o *Orchestrator) Retry(ctx context.Context) (*Outcome, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAttemptActive
	}
	if o.sess == nil || !o.sess.Active() {
		o.mu.Unlock()
		return nil, ErrNoSession
	}
	o.running = true
	o.aborted = false
	o.mu.Unlock()
	defer o.clearRunning()

	o.setState(StateRetrying)
	return o.runAttempt(ctx)
}

func (o *Orchestrator) clearRunning() {
	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.mu.Unlock()
}

type stepVerdict struct {
	step Step
	res  *StepResult
}

func (o *Orchestrator) runAttempt(ctx context.Context) (*Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.attempt++
	attempt := o.attempt
	o.cancel = cancel
	rec := o.rec
	o.mu.Unlock()

	outcome := &Outcome{
		AttemptID: uuid.NewString(),
		Attempt:   attempt,
		ProfileID: o.cfg.ProfileID,
		SubjectID: o.cfg.SubjectID,
		Results:   make(map[Step]*StepResult, 3),
		StartedAt: nowMilli(),
	}
	log := o.log.With("attempt", attempt, "attempt_id", outcome.AttemptID)
	log.Info("attempt started", "policy", o.cfg.Policy.String())

	// Verdicts arrive out of order: each step's scoring call runs in its
	// own goroutine while the next capture proceeds. The channel is sized
	// for all three so a goroutine resolving after cancellation never
	// leaks.
	verdicts := make(chan stepVerdict, 3)
	var segments []*capture.Segment
	issued := 0

capture:
	for _, step := range Steps() {
		if err := o.awaitConfirm(ctx); err != nil {
			break capture
		}
		o.setState(step.captureState())

		seg, err := o.recordStep(ctx, rec, step)
		switch {
		case err == nil:
			segments = append(segments, seg)
			o.setState(step.verifyingState())
			issued++
			go func(step Step, seg *capture.Segment) {
				verdicts <- stepVerdict{step: step, res: o.verifyStep(ctx, seg, step)}
			}(step, seg)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			break capture
		case errors.Is(err, media.ErrDeviceUnavailable) || errors.Is(err, media.ErrSessionClosed):
			// Losing the device mid-attempt is fatal: nothing further
			// can be captured, so surface it instead of padding the
			// outcome with synthetic failures.
			log.Error("media device lost during capture", "step", step.String(), "error", err)
			return nil, fmt.Errorf("capture %s: %w", step, err)
		default:
			log.Error("capture failed", "step", step.String(), "error", err)
			o.recordVerdict(outcome, failedStep(step, fmt.Sprintf("%s capture failed: %v", step, err)), attempt)
		}
	}

	for issued > 0 {
		select {
		case v := <-verdicts:
			issued--
			o.recordVerdict(outcome, v.res, attempt)
		case <-ctx.Done():
			issued = 0
		}
	}

	if ctx.Err() != nil {
		return o.finishCancelled(ctx, attempt)
	}

	outcome.FinishedAt = nowMilli()
	outcome.aggregate()
	o.setState(StateComplete)
	o.emit(Event{Type: EventOutcome, State: StateComplete, Attempt: attempt, Outcome: outcome})
	log.Info("attempt finished", "overall", outcome.Overall, "message", outcome.Message)

	if o.cfg.Archiver != nil {
		if err := o.cfg.Archiver.SaveAttempt(context.WithoutCancel(ctx), outcome, segments); err != nil {
			log.Error("archive attempt", "error", err)
		}
	}
	return outcome, nil
}

// awaitConfirm blocks until the caller confirms the next capture when the
// policy is ManualConfirm.
func (o *Orchestrator) awaitConfirm(ctx context.Context) error {
	if o.cfg.Policy != ManualConfirm {
		return nil
	}
	select {
	case <-o.confirm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recordStep captures the segment for the step. A failed encoding is
// retried once before giving up; the media data itself is gone either way,
// so a second failure resolves the step as failed.
func (o *Orchestrator) recordStep(ctx context.Context, rec *capture.Recorder, step Step) (*capture.Segment, error) {
	modality, duration := capture.FaceImage, time.Duration(0)
	switch step {
	case StepVoice:
		modality, duration = capture.VoiceAudio, o.cfg.VoiceDuration
	case StepLipsync:
		modality, duration = capture.AVClip, o.cfg.LipsyncDuration
	}
	seg, err := rec.Record(ctx, modality, duration)
	if err != nil && errors.Is(err, capture.ErrEncodingFailed) && ctx.Err() == nil {
		o.log.Warn("segment encoding failed, retrying capture", "step", step.String(), "error", err)
		seg, err = rec.Record(ctx, modality, duration)
	}
	return seg, err
}

// verifyStep scores a segment. Service and transport errors resolve to a
// failing StepResult; they are never propagated past this point.
func (o *Orchestrator) verifyStep(ctx context.Context, seg *capture.Segment, step Step) *StepResult {
	var (
		res *StepResult
		err error
	)
	switch step {
	case StepFace:
		res, err = o.verifier.VerifyFace(ctx, seg, o.cfg.ProfileID, o.cfg.SubjectID)
	case StepVoice:
		res, err = o.verifier.VerifyVoice(ctx, seg, o.cfg.ProfileID, o.cfg.SubjectID)
	default:
		res, err = o.verifier.VerifyLipsync(ctx, seg)
	}
	if err != nil {
		o.log.Error("verification call failed", "step", step.String(), "error", err)
		return failedStep(step, fmt.Sprintf("%s verification unavailable: %v", step, err))
	}
	res.Step = step
	if res.At.IsZero() {
		res.At = nowMilli()
	}
	return res
}

// recordVerdict stores the first verdict for a step and emits it. A step
// resolves at most once per attempt; duplicates are dropped.
func (o *Orchestrator) recordVerdict(outcome *Outcome, res *StepResult, attempt int) {
	if _, ok := outcome.Results[res.Step]; ok {
		return
	}
	outcome.Results[res.Step] = res
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()
	o.emit(Event{Type: EventStepResult, State: state, Attempt: attempt, Result: res})
}

func (o *Orchestrator) finishCancelled(ctx context.Context, attempt int) (*Outcome, error) {
	o.mu.Lock()
	aborted := o.aborted
	o.mu.Unlock()
	// Entering Cancelled always releases the session and stops the
	// detector, whether the caller cancelled explicitly or the parent
	// context expired.
	o.Close()
	o.setState(StateCancelled)
	o.log.Info("attempt cancelled", "attempt", attempt)
	if !aborted {
		return nil, context.Cause(ctx)
	}
	return nil, ErrCancelled
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	if o.state == s {
		o.mu.Unlock()
		return
	}
	o.state = s
	attempt := o.attempt
	o.mu.Unlock()
	o.emit(Event{Type: EventState, State: s, Attempt: attempt})
}

// emit publishes an event without ever blocking the flow; when the buffer
// is full the oldest event is dropped.
func (o *Orchestrator) emit(ev Event) {
	ev.Time = nowMilli()
	for {
		select {
		case o.events <- ev:
			return
		default:
			select {
			case <-o.events:
			default:
			}
		}
	}
}
