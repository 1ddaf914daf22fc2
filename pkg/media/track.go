package media

import (
	"context"
	"sync"

	"github.com/trigate/trigate/pkg/media/pcm"
)

// VideoTrack is the read side of the session's video stream. It keeps the
// most recent frame for snapshot-style consumers (the live detector, the
// face capture step) and fans frames out to subscribers (the clip recorder).
type VideoTrack struct {
	mu      sync.Mutex
	latest  *Frame
	subs    map[int]chan *Frame
	nextSub int
	closed  bool
	arrived chan struct{} // closed once the first frame lands
}

func newVideoTrack() *VideoTrack {
	return &VideoTrack{
		subs:    make(map[int]chan *Frame),
		arrived: make(chan struct{}),
	}
}

// Latest returns the most recent frame, or false if no frame has arrived yet.
func (vt *VideoTrack) Latest() (*Frame, bool) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	if vt.latest == nil {
		return nil, false
	}
	return vt.latest, true
}

// WaitFrame blocks until at least one frame has arrived and returns the
// most recent one. It respects ctx cancellation and track closure.
func (vt *VideoTrack) WaitFrame(ctx context.Context) (*Frame, error) {
	vt.mu.Lock()
	if vt.latest != nil {
		f := vt.latest
		vt.mu.Unlock()
		return f, nil
	}
	if vt.closed {
		vt.mu.Unlock()
		return nil, ErrSessionClosed
	}
	arrived := vt.arrived
	vt.mu.Unlock()

	select {
	case <-arrived:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f, ok := vt.Latest()
	if !ok {
		return nil, ErrSessionClosed
	}
	return f, nil
}

// Subscribe registers a frame subscriber with the given channel buffer.
// When the subscriber falls behind, the oldest buffered frame is dropped.
// The returned cancel function unregisters the subscriber and closes its
// channel; it is safe to call more than once.
func (vt *VideoTrack) Subscribe(buffer int) (<-chan *Frame, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *Frame, buffer)

	vt.mu.Lock()
	id := vt.nextSub
	vt.nextSub++
	if vt.closed {
		vt.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	vt.subs[id] = ch
	vt.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			vt.mu.Lock()
			if _, ok := vt.subs[id]; ok {
				delete(vt.subs, id)
				close(ch)
			}
			vt.mu.Unlock()
		})
	}
	return ch, cancel
}

// push delivers a frame to the latest slot and all subscribers.
func (vt *VideoTrack) push(f *Frame) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	if vt.closed {
		return ErrSessionClosed
	}
	first := vt.latest == nil
	vt.latest = f
	if first {
		close(vt.arrived)
	}
	for _, ch := range vt.subs {
		select {
		case ch <- f:
		default:
			// Slow subscriber: drop the oldest frame to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f:
			default:
			}
		}
	}
	return nil
}

func (vt *VideoTrack) close() {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	if vt.closed {
		return
	}
	vt.closed = true
	for id, ch := range vt.subs {
		delete(vt.subs, id)
		close(ch)
	}
}

// AudioTrack is the read side of the session's audio stream. Subscribers
// receive PCM over a dedicated ring; a slow subscriber loses audio rather
// than stalling the device ingress.
type AudioTrack struct {
	format pcm.Format

	mu     sync.Mutex
	subs   map[int]*pcm.Ring
	nextID int
	closed bool
}

func newAudioTrack(format pcm.Format) *AudioTrack {
	return &AudioTrack{
		format: format,
		subs:   make(map[int]*pcm.Ring),
	}
}

// Format returns the PCM format of the track.
func (at *AudioTrack) Format() pcm.Format {
	return at.format
}

// Subscribe registers an audio subscriber and returns its ring. The capacity
// is in bytes; zero or negative selects the ring default. The returned cancel
// function unregisters the subscriber and closes the ring's write side so a
// draining reader observes io.EOF.
func (at *AudioTrack) Subscribe(capacity int) (*pcm.Ring, func()) {
	ring := pcm.NewRing(at.format, capacity)

	at.mu.Lock()
	id := at.nextID
	at.nextID++
	if at.closed {
		at.mu.Unlock()
		ring.CloseWrite()
		return ring, func() {}
	}
	at.subs[id] = ring
	at.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			at.mu.Lock()
			delete(at.subs, id)
			at.mu.Unlock()
			ring.CloseWrite()
		})
	}
	return ring, cancel
}

// push delivers PCM data to all subscriber rings.
func (at *AudioTrack) push(p []byte) error {
	at.mu.Lock()
	defer at.mu.Unlock()
	if at.closed {
		return ErrSessionClosed
	}
	for _, ring := range at.subs {
		ring.WriteNoWait(p)
	}
	return nil
}

func (at *AudioTrack) close() {
	at.mu.Lock()
	defer at.mu.Unlock()
	if at.closed {
		return
	}
	at.closed = true
	for id, ring := range at.subs {
		delete(at.subs, id)
		ring.CloseWrite()
	}
}
