// Package gate drives the tri-modal verification flow: it sequences the
// face, voice and lip-sync steps over one media session, submits each
// captured segment to the scoring services, and reduces the three verdicts
// into a single pass/fail outcome with deterministic retry semantics.
package gate

import "encoding/json"

// State is the orchestrator's position in the verification flow.
type State int

const (
	// StateIdle means the media session has not been acquired yet.
	StateIdle State = iota
	StateFaceCapture
	StateFaceVerifying
	StateVoiceCapture
	StateVoiceVerifying
	StateLipsyncCapture
	StateLipsyncVerifying
	// StateRetrying is the transient state while a retry clears the
	// previous attempt's results.
	StateRetrying
	// StateComplete means all three step results are recorded and the
	// outcome is computed.
	StateComplete
	// StateCancelled means the caller aborted the flow.
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFaceCapture:
		return "face_capture"
	case StateFaceVerifying:
		return "face_verifying"
	case StateVoiceCapture:
		return "voice_capture"
	case StateVoiceVerifying:
		return "voice_verifying"
	case StateLipsyncCapture:
		return "lipsync_capture"
	case StateLipsyncVerifying:
		return "lipsync_verifying"
	case StateRetrying:
		return "retrying"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*s = StateIdle
	case "face_capture":
		*s = StateFaceCapture
	case "face_verifying":
		*s = StateFaceVerifying
	case "voice_capture":
		*s = StateVoiceCapture
	case "voice_verifying":
		*s = StateVoiceVerifying
	case "lipsync_capture":
		*s = StateLipsyncCapture
	case "lipsync_verifying":
		*s = StateLipsyncVerifying
	case "retrying":
		*s = StateRetrying
	case "complete":
		*s = StateComplete
	case "cancelled":
		*s = StateCancelled
	default:
		*s = StateIdle
	}
	return nil
}

// Step identifies one of the three verification checks.
type Step int

const (
	StepFace Step = iota
	StepVoice
	StepLipsync
)

// Steps returns the three steps in execution order.
func Steps() []Step {
	return []Step{StepFace, StepVoice, StepLipsync}
}

// String returns the step tag.
func (s Step) String() string {
	switch s {
	case StepFace:
		return "face"
	case StepVoice:
		return "voice"
	case StepLipsync:
		return "lipsync"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler, so Step works both as a
// JSON value and as a JSON map key.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(b []byte) error {
	switch string(b) {
	case "face":
		*s = StepFace
	case "voice":
		*s = StepVoice
	case "lipsync":
		*s = StepLipsync
	default:
		*s = Step(-1)
	}
	return nil
}

// captureState returns the capture state for the step.
func (s Step) captureState() State {
	switch s {
	case StepFace:
		return StateFaceCapture
	case StepVoice:
		return StateVoiceCapture
	default:
		return StateLipsyncCapture
	}
}

// verifyingState returns the verifying state for the step.
func (s Step) verifyingState() State {
	switch s {
	case StepFace:
		return StateFaceVerifying
	case StepVoice:
		return StateVoiceVerifying
	default:
		return StateLipsyncVerifying
	}
}
