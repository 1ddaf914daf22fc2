package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trigate/trigate/pkg/jsontime"
)

// StepResult is the terminal verdict of a single verification step. Every
// step of an attempt resolves to exactly one StepResult, whether the
// scoring service answered, refused, or was unreachable.
type StepResult struct {
	Step    Step   `json:"step"`
	Success bool   `json:"success"`
	Message string `json:"message"`

	// Score is the service's numeric verdict when it produced one:
	// a similarity percentage for face and voice, a 0..1 confidence for
	// lip-sync. Nil when the service never scored the segment.
	Score *float64 `json:"score,omitempty"`

	// Label is the service's confidence label (high, medium, low) when
	// it produced one.
	Label string `json:"label,omitempty"`

	// Raw is the service's response payload, retained for diagnostics.
	Raw json.RawMessage `json:"raw,omitempty"`

	At jsontime.Milli `json:"at"`
}

func nowMilli() jsontime.Milli {
	return jsontime.NowEpochMilli()
}

// failedStep builds a failing StepResult for a step that never reached a
// service verdict.
func failedStep(step Step, msg string) *StepResult {
	return &StepResult{
		Step:    step,
		Success: false,
		Message: msg,
		At:      jsontime.NowEpochMilli(),
	}
}

// Outcome is the aggregate verdict of one attempt. Overall is the
// conjunction of the three step verdicts; the flow runs every step to its
// own verdict before Outcome is computed, so a failing face check still
// produces voice and lip-sync results.
type Outcome struct {
	AttemptID  string               `json:"attempt_id"`
	Attempt    int                  `json:"attempt"`
	ProfileID  string               `json:"profile_id"`
	SubjectID  string               `json:"subject_id,omitempty"`
	Overall    bool                 `json:"overall"`
	Message    string               `json:"message"`
	Results    map[Step]*StepResult `json:"results"`
	StartedAt  jsontime.Milli       `json:"started_at"`
	FinishedAt jsontime.Milli       `json:"finished_at"`
}

// FailedSteps returns the steps that did not pass, in execution order.
func (o *Outcome) FailedSteps() []Step {
	var failed []Step
	for _, step := range Steps() {
		res, ok := o.Results[step]
		if !ok || !res.Success {
			failed = append(failed, step)
		}
	}
	return failed
}

// aggregate fills in Overall and Message from the recorded step results.
// A step with no recorded result counts as a failure.
func (o *Outcome) aggregate() {
	for _, step := range Steps() {
		if _, ok := o.Results[step]; !ok {
			o.Results[step] = failedStep(step, fmt.Sprintf("%s check did not complete", step))
		}
	}
	failed := o.FailedSteps()
	if len(failed) == 0 {
		o.Overall = true
		o.Message = fmt.Sprintf("authentication successful for %s", o.ProfileID)
		return
	}
	names := make([]string, len(failed))
	for i, step := range failed {
		names[i] = step.String()
	}
	o.Overall = false
	o.Message = fmt.Sprintf("authentication failed: %s check failed", strings.Join(names, ", "))
}
