package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Session owns one active device stream. At most one session should exist
// per verification flow; the flow acquires it once, the detector and
// recorder read from its tracks, and Release stops everything exactly once
// regardless of how many times it is called.
type Session struct {
	dev         Device
	constraints Constraints
	video       *VideoTrack
	audio       *AudioTrack
	log         *slog.Logger

	active  atomic.Bool
	release sync.Once
}

// SessionOption configures session acquisition.
type SessionOption func(*Session)

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(log *slog.Logger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// Acquire requests a combined audio+video stream from dev matching the
// given constraints. It returns ErrDeviceUnavailable (wrapped) when the
// device denies permission or no matching device exists.
func Acquire(ctx context.Context, dev Device, c Constraints, opts ...SessionOption) (*Session, error) {
	c = c.withDefaults()
	s := &Session{
		dev:         dev,
		constraints: c,
		video:       newVideoTrack(),
		audio:       newAudioTrack(c.AudioFormat),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := dev.Open(ctx, c, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.active.Store(true)
	s.log.Debug("media session acquired",
		"width", c.Width, "height", c.Height, "fps", c.FrameRate,
		"audio", c.AudioFormat.String())
	return s, nil
}

// Video returns the session's video track.
func (s *Session) Video() *VideoTrack {
	return s.video
}

// Audio returns the session's audio track.
func (s *Session) Audio() *AudioTrack {
	return s.audio
}

// Constraints returns the effective capture constraints.
func (s *Session) Constraints() Constraints {
	return s.constraints
}

// Active reports whether the session currently holds a live stream.
func (s *Session) Active() bool {
	return s != nil && s.active.Load()
}

// PushFrame implements Sink. Devices call it to deliver video frames.
func (s *Session) PushFrame(f *Frame) error {
	if !s.Active() {
		return ErrSessionClosed
	}
	return s.video.push(f)
}

// PushAudio implements Sink. Devices call it to deliver PCM audio.
func (s *Session) PushAudio(p []byte) error {
	if !s.Active() {
		return ErrSessionClosed
	}
	return s.audio.push(p)
}

// Release stops both tracks and closes the device. It is idempotent and
// safe to call on a nil session, so every exit path can call it
// unconditionally.
func (s *Session) Release() {
	if s == nil {
		return
	}
	s.release.Do(func() {
		s.active.Store(false)
		s.video.close()
		s.audio.close()
		if err := s.dev.Close(); err != nil {
			s.log.Warn("device close", "error", err)
		}
		s.log.Debug("media session released")
	})
}
