// Package capture records time-boxed segments from the active media session
// for submission to the verification services.
//
// A Recorder produces one Segment per step: a still image for the face
// check, a WAV clip for the voice check, and an MJPEG+WAV pair for the
// lip-sync check. Recording completes on whichever comes first of the
// nominal duration elapsing or an explicit Stop call; the two triggers are
// mutually exclusive and exactly one completes the segment.
package capture

import (
	"encoding/json"
	"time"

	"github.com/trigate/trigate/pkg/jsontime"
)

// Modality identifies what a segment carries.
type Modality int

const (
	// FaceImage is a single still frame (JPEG).
	FaceImage Modality = iota
	// VoiceAudio is an audio-only clip (16kHz mono WAV).
	VoiceAudio
	// AVClip is a combined clip: MJPEG video plus WAV audio.
	AVClip
)

// String returns the modality tag.
func (m Modality) String() string {
	switch m {
	case FaceImage:
		return "face-image"
	case VoiceAudio:
		return "voice-audio"
	case AVClip:
		return "av-clip"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (m Modality) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Modality) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "face-image":
		*m = FaceImage
	case "voice-audio":
		*m = VoiceAudio
	case "av-clip":
		*m = AVClip
	default:
		*m = Modality(-1)
	}
	return nil
}

// Segment is one captured clip. It is created by a Recorder, consumed
// exactly once by a verification call, then discarded.
type Segment struct {
	// ID uniquely identifies the segment within an attempt.
	ID string `json:"id"`

	// Modality tags the payload kind.
	Modality Modality `json:"modality"`

	// Payload is the encoded media: JPEG for FaceImage, WAV for
	// VoiceAudio, MJPEG for AVClip.
	Payload []byte `json:"-"`

	// AudioPayload is the WAV audio accompanying an AVClip.
	// Nil for other modalities.
	AudioPayload []byte `json:"-"`

	// FrameCount is the number of video frames in an AVClip.
	FrameCount int `json:"frame_count,omitempty"`

	// NominalDuration is the requested recording duration.
	NominalDuration jsontime.Duration `json:"nominal_duration"`

	// ActualDuration is the elapsed recording time; shorter than nominal
	// when the recording was stopped manually.
	ActualDuration jsontime.Duration `json:"actual_duration"`

	// CapturedAt is the time the recording completed.
	CapturedAt jsontime.Milli `json:"captured_at"`
}

// Duration returns the actual duration as a time.Duration.
func (s *Segment) Duration() time.Duration {
	return s.ActualDuration.Duration()
}
