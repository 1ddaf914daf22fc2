package pcm

import (
	"fmt"
	"io"
	"sync"
)

// Ring is a thread-safe circular buffer carrying PCM audio from the device
// ingress to a segment recorder. Writes block when the buffer is full until
// the reader drains it; reads block when the buffer is empty until data is
// written or the write side is closed.
//
// One goroutine writes (the session's audio track), one goroutine reads
// (the recorder). CloseWrite lets the reader drain remaining data and then
// observe io.EOF.
type Ring struct {
	format Format

	readNotify  chan struct{}
	writeNotify chan struct{}

	mu sync.Mutex
	rb []byte

	// tail is always kept greater or equal to head.
	head, tail int

	closeWrite bool
	closeErr   error
}

// NewRing creates a Ring holding up to capacity bytes of audio in the given
// format. Capacity at or below zero defaults to 10 seconds of audio.
func NewRing(format Format, capacity int) *Ring {
	if capacity <= 0 {
		capacity = format.BytesRate() * 10
	}
	return &Ring{
		format:      format,
		readNotify:  make(chan struct{}, 1),
		writeNotify: make(chan struct{}, 1),
		rb:          make([]byte, capacity),
	}
}

// Format returns the PCM format of the audio in the ring.
func (r *Ring) Format() Format {
	return r.format
}

// write copies as much of p as fits into the circular buffer.
// Caller must hold r.mu.
func (r *Ring) write(p []byte) (n int) {
	if r.tail-r.head == len(r.rb) {
		return 0
	}
	if r.tail < len(r.rb) {
		n = copy(r.rb[r.tail:], p)
		r.tail += n
	}
	if r.tail >= len(r.rb) {
		m := copy(r.rb[r.tail-len(r.rb):r.head], p[n:])
		r.tail += m
		n += m
	}
	return n
}

// Write writes audio data to the ring, blocking while the ring is full.
func (r *Ring) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	total := len(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(p) > 0 {
		if r.closeErr != nil {
			return 0, r.closeErr
		}
		if r.closeWrite {
			return 0, fmt.Errorf("pcm: ring write: %w", io.ErrClosedPipe)
		}
		if r.tail-r.head == len(r.rb) {
			r.mu.Unlock()
			<-r.readNotify
			r.mu.Lock()
			continue
		}
		p = p[r.write(p):]
		r.notify(r.writeNotify)
	}
	return total, nil
}

// WriteNoWait writes as much of p as fits without blocking and drops the
// rest. It is used by the track fan-out so a stalled reader loses audio
// instead of stalling the device ingress.
func (r *Ring) WriteNoWait(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closeErr != nil {
		return 0, r.closeErr
	}
	if r.closeWrite {
		return 0, fmt.Errorf("pcm: ring write: %w", io.ErrClosedPipe)
	}
	n := r.write(p)
	if n > 0 {
		r.notify(r.writeNotify)
	}
	return n, nil
}

// read copies buffered data into p. Caller must hold r.mu.
func (r *Ring) read(p []byte) (n int) {
	if r.tail >= len(r.rb) {
		n = copy(p, r.rb[r.head:])
		r.head += n
		if r.head == len(r.rb) {
			r.head = 0
			r.tail -= len(r.rb)
		}
	}
	if r.tail < len(r.rb) {
		m := copy(p[n:], r.rb[r.head:r.tail])
		r.head += m
		n += m
	}
	return n
}

// Read reads audio data from the ring into p, blocking while the ring is
// empty. Returns io.EOF once the write side is closed and the buffer has
// been drained.
func (r *Ring) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.closeErr != nil {
			return 0, r.closeErr
		}
		if r.head != r.tail {
			n := r.read(p)
			r.notify(r.readNotify)
			return n, nil
		}
		if r.closeWrite {
			return 0, io.EOF
		}
		r.mu.Unlock()
		<-r.writeNotify
		r.mu.Lock()
	}
}

// notify performs a non-blocking send on ch. When the ring is closed the
// channel is already closed, so receivers are woken regardless.
func (r *Ring) notify(ch chan struct{}) {
	if r.closeWrite || r.closeErr != nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// CloseWrite closes the write side. The reader can drain buffered data and
// then observes io.EOF.
func (r *Ring) CloseWrite() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return r.closeErr
	}
	if !r.closeWrite {
		r.closeWrite = true
		close(r.readNotify)
		close(r.writeNotify)
	}
	return nil
}

// CloseWithError closes the ring with the given error. Pending and future
// reads and writes return the error. If err is nil, io.ErrClosedPipe is used.
func (r *Ring) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return nil
	}
	r.closeErr = err
	if !r.closeWrite {
		r.closeWrite = true
		close(r.readNotify)
		close(r.writeNotify)
	}
	return nil
}

// Close closes the ring. It is equivalent to CloseWithError(io.ErrClosedPipe).
func (r *Ring) Close() error {
	return r.CloseWithError(fmt.Errorf("pcm: ring: %w", io.ErrClosedPipe))
}
