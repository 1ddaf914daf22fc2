package media

import (
	"context"

	"github.com/trigate/trigate/pkg/media/pcm"
)

// Constraints declares the ideal capture parameters requested from a device.
// A device may deliver a different resolution or rate; the declared values
// are hints, except AudioFormat which is binding for the audio track.
type Constraints struct {
	// Width and Height are the ideal frame dimensions in pixels.
	Width, Height int

	// FrameRate is the ideal video frame rate in frames per second.
	FrameRate int

	// AudioFormat is the PCM format of the audio track.
	AudioFormat pcm.Format
}

// DefaultConstraints are the capture parameters used when the caller does
// not specify any.
var DefaultConstraints = Constraints{
	Width:       640,
	Height:      480,
	FrameRate:   15,
	AudioFormat: pcm.L16Mono48K,
}

func (c Constraints) withDefaults() Constraints {
	d := DefaultConstraints
	if c.Width > 0 {
		d.Width = c.Width
	}
	if c.Height > 0 {
		d.Height = c.Height
	}
	if c.FrameRate > 0 {
		d.FrameRate = c.FrameRate
	}
	d.AudioFormat = c.AudioFormat
	return d
}

// Sink receives media pushed by a device. A Session implements Sink; devices
// deliver frames and audio into it for as long as the session is active.
type Sink interface {
	// PushFrame delivers an encoded video frame.
	PushFrame(f *Frame) error

	// PushAudio delivers raw PCM audio in the constraint's AudioFormat.
	PushAudio(p []byte) error
}

// Device produces a combined audio+video stream. Open starts capture and
// begins delivering media into sink from device-owned goroutines; it returns
// an error immediately when permission is denied or no matching device
// exists. Close stops delivery and releases the underlying device.
type Device interface {
	Open(ctx context.Context, c Constraints, sink Sink) error
	Close() error
}
