package media

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PipeDevice is an in-process Device whose media is pushed by the caller.
// It backs the websocket ingress (the browser pushes frames and audio over
// the wire, the connection handler forwards them here) and test fixtures.
type PipeDevice struct {
	mu      sync.Mutex
	sink    Sink
	c       Constraints
	openErr error
	closed  bool
	seq     uint64
}

// NewPipeDevice creates an unopened pipe device.
func NewPipeDevice() *PipeDevice {
	return &PipeDevice{}
}

// FailWith arranges for the next Open call to fail with err, simulating a
// denied permission prompt or a missing device.
func (d *PipeDevice) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// Open implements Device.
func (d *PipeDevice) Open(ctx context.Context, c Constraints, sink Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	if d.closed {
		return errors.New("pipe device closed")
	}
	if d.sink != nil {
		return errors.New("pipe device already open")
	}
	d.sink = sink
	d.c = c
	return nil
}

// WriteFrame pushes an encoded frame into the session. The frame sequence
// number and timestamp are filled in here.
func (d *PipeDevice) WriteFrame(data []byte, width, height int) error {
	d.mu.Lock()
	sink := d.sink
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	if sink == nil {
		return errors.New("pipe device not open")
	}
	return sink.PushFrame(&Frame{
		Data:   data,
		Width:  width,
		Height: height,
		Seq:    seq,
		Time:   time.Now(),
	})
}

// WriteAudio pushes PCM audio in the constraint format into the session.
func (d *PipeDevice) WriteAudio(p []byte) error {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink == nil {
		return errors.New("pipe device not open")
	}
	return sink.PushAudio(p)
}

// Close implements Device.
func (d *PipeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.sink = nil
	return nil
}
