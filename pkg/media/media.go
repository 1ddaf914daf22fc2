// Package media owns the single combined audio+video device stream used by
// a verification flow.
//
// A Session is acquired once per flow from a Device and exposes two tracks:
// a VideoTrack carrying encoded frames and an AudioTrack carrying raw PCM.
// The live detector samples frames from the video track and the segment
// recorder consumes both tracks; neither starts or stops the underlying
// device — the Session is the only owner of the stream lifecycle, and
// Release is idempotent on every exit path.
package media

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrDeviceUnavailable is returned when the device denies permission or
	// no device matching the constraints exists.
	ErrDeviceUnavailable = errors.New("media: device unavailable")

	// ErrSessionClosed is returned when pushing media into a released session.
	ErrSessionClosed = errors.New("media: session closed")
)

// Frame is a single encoded video frame (JPEG payload) sampled from the
// device stream. Frames are ephemeral: each one supersedes the previous.
type Frame struct {
	// Data is the encoded image payload.
	Data []byte

	// Width and Height are the frame dimensions in pixels.
	Width, Height int

	// Seq is a monotonically increasing frame sequence number.
	Seq uint64

	// Time is the capture timestamp.
	Time time.Time
}
