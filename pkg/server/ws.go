package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trigate/trigate/pkg/detect"
	"github.com/trigate/trigate/pkg/gate"
	"github.com/trigate/trigate/pkg/media"
)

// Websocket wire protocol.
//
// Client -> server, binary messages carry media:
//
//	[0x01][width uint16 BE][height uint16 BE][JPEG bytes]   video frame
//	[0x02][PCM16 little-endian samples]                     audio chunk
//
// Client -> server, text messages carry JSON control:
//
//	{"type":"start","profile":"fenny","policy":"auto"|"manual"}
//	{"type":"confirm"} {"type":"stop"} {"type":"retry"} {"type":"cancel"}
//
// Server -> client, text messages carry JSON events: the orchestrator's
// state/step_result/outcome events, detector observations as
// {"type":"detections",...}, and {"type":"error","detail":...}.
const (
	frameTag = 0x01
	audioTag = 0x02

	frameHeaderLen = 5
)

type controlMessage struct {
	Type    string `json:"type"`
	Profile string `json:"profile,omitempty"`
	Policy  string `json:"policy,omitempty"`
}

type detectionsEvent struct {
	Type        string             `json:"type"`
	Observation detect.Observation `json:"observation"`
}

type errorEvent struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

type doneEvent struct {
	Type   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

// wsConn owns one authenticate websocket: the pipe device fed by the
// client's media messages, the orchestrator driving the flow, and the
// single writer goroutine pushing events back.
type wsConn struct {
	srv  *Server
	ws   *websocket.Conn
	log  *slog.Logger
	dev  *media.PipeDevice
	out  chan any
	done chan struct{}

	mu        sync.Mutex
	orch      *gate.Orchestrator
	accountID string
	closeOnce sync.Once
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "verification services not configured")
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{
		srv:  s,
		ws:   ws,
		log:  s.log.With("remote", ws.RemoteAddr().String()),
		dev:  media.NewPipeDevice(),
		out:  make(chan any, 64),
		done: make(chan struct{}),
	}
	if sess := s.sessionFrom(r); sess != nil {
		c.accountID = sess.AccountID
	}
	go c.writeLoop()
	c.readLoop(r.Context())
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		orch := c.orch
		c.mu.Unlock()
		if orch != nil {
			orch.Cancel()
			orch.Close()
		}
		c.dev.Close()
		c.ws.Close()
	})
}

// send queues an outbound event without blocking the caller.
func (c *wsConn) send(v any) {
	select {
	case c.out <- v:
	case <-c.done:
	default:
		c.log.Debug("event stream backlogged, dropping event")
	}
}

func (c *wsConn) sendError(detail string) {
	c.send(errorEvent{Type: "error", Detail: detail})
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case v := <-c.out:
			data, err := json.Marshal(v)
			if err != nil {
				c.log.Error("marshal event", "error", err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) readLoop(ctx context.Context) {
	defer c.close()
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			c.handleMedia(data)
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.sendError("invalid control message")
				continue
			}
			c.handleControl(ctx, msg)
		}
	}
}

func (c *wsConn) handleMedia(data []byte) {
	if len(data) < 1 {
		return
	}
	switch data[0] {
	case frameTag:
		if len(data) < frameHeaderLen {
			return
		}
		width := int(binary.BigEndian.Uint16(data[1:3]))
		height := int(binary.BigEndian.Uint16(data[3:5]))
		c.dev.WriteFrame(data[frameHeaderLen:], width, height)
	case audioTag:
		c.dev.WriteAudio(data[1:])
	}
}

func (c *wsConn) handleControl(ctx context.Context, msg controlMessage) {
	switch msg.Type {
	case "start":
		c.start(ctx, msg)
	case "confirm":
		if orch := c.orchestrator(); orch != nil {
			orch.Confirm()
		}
	case "stop":
		if orch := c.orchestrator(); orch != nil {
			orch.StopCapture()
		}
	case "retry":
		c.retry(ctx)
	case "cancel":
		if orch := c.orchestrator(); orch != nil {
			orch.Cancel()
		}
	default:
		c.sendError("unknown control type: " + msg.Type)
	}
}

func (c *wsConn) orchestrator() *gate.Orchestrator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orch
}

func (c *wsConn) start(ctx context.Context, msg controlMessage) {
	if msg.Profile == "" {
		c.sendError("profile is required")
		return
	}
	if c.srv.cfg.Profiles != nil {
		if _, err := c.srv.cfg.Profiles.Lookup(ctx, msg.Profile); err != nil {
			c.sendError(err.Error())
			return
		}
	}
	policy := c.srv.cfg.DefaultPolicy
	switch msg.Policy {
	case "auto":
		policy = gate.AutoAdvance
	case "manual":
		policy = gate.ManualConfirm
	}

	c.mu.Lock()
	if c.orch != nil {
		c.mu.Unlock()
		c.sendError("flow already started")
		return
	}
	orch := gate.New(c.dev, c.srv.verifier, gate.Config{
		ProfileID:       msg.Profile,
		SubjectID:       c.accountID,
		Policy:          policy,
		VoiceDuration:   c.srv.cfg.VoiceDuration,
		LipsyncDuration: c.srv.cfg.LipsyncDuration,
		Model:           c.srv.cfg.Model,
		Archiver:        c.srv.cfg.Archiver,
		Logger:          c.log,
	})
	c.orch = orch
	c.mu.Unlock()

	go c.pumpEvents(orch)
	go c.pumpDetections(orch)
	go c.runAttempt(func() (*gate.Outcome, error) {
		return orch.Run(context.WithoutCancel(ctx))
	})
}

func (c *wsConn) retry(ctx context.Context) {
	orch := c.orchestrator()
	if orch == nil {
		c.sendError("no flow to retry")
		return
	}
	go c.runAttempt(func() (*gate.Outcome, error) {
		return orch.Retry(context.WithoutCancel(ctx))
	})
}

func (c *wsConn) runAttempt(run func() (*gate.Outcome, error)) {
	outcome, err := run()
	switch {
	case err == nil:
		c.srv.recordAttempt(context.Background(), c.accountID, outcome)
		c.send(doneEvent{Type: "done"})
	case errors.Is(err, gate.ErrCancelled):
		c.send(doneEvent{Type: "cancelled"})
	case errors.Is(err, gate.ErrAttemptActive):
		c.sendError("attempt already in progress")
	default:
		c.sendError(err.Error())
	}
}

// pumpEvents forwards orchestrator events for the lifetime of the
// connection.
func (c *wsConn) pumpEvents(orch *gate.Orchestrator) {
	for {
		select {
		case ev := <-orch.Events():
			c.send(ev)
		case <-c.done:
			return
		}
	}
}

// pumpDetections forwards detector observations once the flow has acquired
// its session.
func (c *wsConn) pumpDetections(orch *gate.Orchestrator) {
	var det *detect.Live
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for det == nil {
		select {
		case <-ticker.C:
			det = orch.Detector()
		case <-c.done:
			return
		}
	}
	for {
		select {
		case obs, ok := <-det.Observations():
			if !ok {
				return
			}
			c.send(detectionsEvent{Type: "detections", Observation: obs})
		case <-c.done:
			return
		}
	}
}
