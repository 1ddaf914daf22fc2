// Package detect runs continuous face detection against the live video
// track to drive real-time overlay feedback.
//
// The Live detector polls the most recent frame at a fixed cadence and
// emits Observations (zero or more Detections per tick). Detection is
// feedback only: when the underlying model fails to load the detector
// degrades to fail-open mode and the flow proceeds without detection
// gating — the verification services remain authoritative.
package detect

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/trigate/trigate/pkg/media"
)

// ErrModelUnavailable is returned by model loaders when the detection model
// cannot be initialized. It is non-fatal: the live detector runs degraded.
var ErrModelUnavailable = errors.New("detect: model unavailable")

// Box is a rectangular frame region believed to contain a face,
// in frame pixels.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Point is a landmark position in frame pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is a single face observation produced by a detection tick.
// Detections are ephemeral: each tick's set supersedes the previous one.
type Detection struct {
	// Box is the detected face region.
	Box Box `json:"box"`

	// Confidence is the detector-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Landmarks are optional facial landmark positions.
	Landmarks []Point `json:"landmarks,omitempty"`
}

// Level returns the tri-level confidence label for UI feedback.
func (d Detection) Level() Level {
	switch {
	case d.Confidence > 0.8:
		return LevelHigh
	case d.Confidence >= 0.6:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Level is the confidence classification used to color detection overlays.
// It affects feedback only, never gating.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

// String returns the label name.
func (l Level) String() string {
	switch l {
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalJSON implements json.Marshaler.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "high":
		*l = LevelHigh
	case "medium":
		*l = LevelMedium
	default:
		*l = LevelLow
	}
	return nil
}

// Model runs face detection on a single frame.
//
// Implementations must be safe for concurrent use. Detect is called from
// the live detector's polling goroutine with the most recent frame.
type Model interface {
	// Detect returns zero or more face detections for the frame.
	Detect(ctx context.Context, frame *media.Frame) ([]Detection, error)

	// Close releases any resources held by the model.
	Close() error
}

// ModelLoader initializes a detection Model. Loaders return
// ErrModelUnavailable (wrapped) when the model cannot be loaded; callers
// treat that as a degraded-mode signal, not a flow failure.
type ModelLoader func(ctx context.Context) (Model, error)
