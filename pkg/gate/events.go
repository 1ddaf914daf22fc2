package gate

import "github.com/trigate/trigate/pkg/jsontime"

// EventType tags an orchestrator event.
type EventType string

const (
	// EventState is emitted on every state transition.
	EventState EventType = "state"
	// EventStepResult is emitted when a step's verdict is recorded.
	EventStepResult EventType = "step_result"
	// EventOutcome is emitted once per attempt with the aggregate verdict.
	EventOutcome EventType = "outcome"
)

// Event is one entry in the orchestrator's event stream. The stream is
// best-effort: a slow consumer loses the oldest events, never blocks the
// flow.
type Event struct {
	Type    EventType      `json:"type"`
	Time    jsontime.Milli `json:"t"`
	State   State          `json:"state"`
	Attempt int            `json:"attempt"`

	// Result is set on EventStepResult events.
	Result *StepResult `json:"result,omitempty"`

	// Outcome is set on EventOutcome events.
	Outcome *Outcome `json:"outcome,omitempty"`
}
