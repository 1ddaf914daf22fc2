package detect_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/trigate/trigate/pkg/detect"
	"github.com/trigate/trigate/pkg/media"
)

// stubSource always returns the same frame.
type stubSource struct {
	mu    sync.Mutex
	frame *media.Frame
}

func (s *stubSource) Latest() (*media.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// stubModel returns a fixed detection set.
type stubModel struct {
	dets []detect.Detection
	err  error
}

func (m *stubModel) Detect(_ context.Context, _ *media.Frame) ([]detect.Detection, error) {
	return m.dets, m.err
}

func (m *stubModel) Close() error { return nil }

func TestLevels(t *testing.T) {
	tests := []struct {
		confidence float64
		want       detect.Level
	}{
		{0.95, detect.LevelHigh},
		{0.81, detect.LevelHigh},
		{0.8, detect.LevelMedium},
		{0.6, detect.LevelMedium},
		{0.59, detect.LevelLow},
		{0.1, detect.LevelLow},
	}
	for _, tt := range tests {
		d := detect.Detection{Confidence: tt.confidence}
		if got := d.Level(); got != tt.want {
			t.Errorf("Level(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}

	b, err := json.Marshal(detect.LevelHigh)
	if err != nil || string(b) != `"high"` {
		t.Errorf("Marshal(LevelHigh) = %s, %v", b, err)
	}
}

func TestLiveEmitsDetections(t *testing.T) {
	src := &stubSource{frame: &media.Frame{Data: []byte{1}, Seq: 1}}
	model := &stubModel{dets: []detect.Detection{{
		Box:        detect.Box{X: 10, Y: 20, W: 100, H: 120},
		Confidence: 0.92,
	}}}

	l := detect.NewLive(src, model, detect.WithInterval(5*time.Millisecond))
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	select {
	case obs := <-l.Observations():
		if len(obs.Detections) != 1 {
			t.Fatalf("got %d detections, want 1", len(obs.Detections))
		}
		if got := obs.Detections[0].Level(); got != detect.LevelHigh {
			t.Errorf("level = %v, want high", got)
		}
		if obs.Degraded {
			t.Error("observation marked degraded with a working model")
		}
	case <-time.After(time.Second):
		t.Fatal("no observation emitted")
	}
}

func TestLiveDegradedStillActive(t *testing.T) {
	src := &stubSource{frame: &media.Frame{Data: []byte{1}}}

	l := detect.NewLive(src, nil, detect.WithInterval(5*time.Millisecond))
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	if !l.Active() {
		t.Fatal("degraded detector must still report active")
	}
	if !l.Degraded() {
		t.Fatal("Degraded() = false, want true")
	}

	select {
	case obs := <-l.Observations():
		if !obs.Degraded {
			t.Error("observation not marked degraded")
		}
		if len(obs.Detections) != 0 {
			t.Errorf("degraded observation carries %d detections", len(obs.Detections))
		}
	case <-time.After(time.Second):
		t.Fatal("degraded detector emitted nothing")
	}
}

func TestLiveModelErrorsAreNonFatal(t *testing.T) {
	src := &stubSource{frame: &media.Frame{Data: []byte{1}}}
	model := &stubModel{err: errors.New("inference failed")}

	l := detect.NewLive(src, model, detect.WithInterval(5*time.Millisecond))
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	select {
	case obs := <-l.Observations():
		if len(obs.Detections) != 0 {
			t.Errorf("got %d detections from failing model", len(obs.Detections))
		}
	case <-time.After(time.Second):
		t.Fatal("detector stalled on model error")
	}
	if !l.Active() {
		t.Fatal("detector stopped on model error")
	}
}

func TestLiveStopIdempotent(t *testing.T) {
	l := detect.NewLive(&stubSource{}, nil)

	// Stop before start is a no-op.
	l.Stop()

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Stop()
	l.Stop()
	if l.Active() {
		t.Fatal("detector active after stop")
	}

	if err := l.Start(context.Background()); !errors.Is(err, detect.ErrAlreadyStarted) {
		t.Fatalf("restart = %v, want ErrAlreadyStarted", err)
	}
}

func TestHTTPModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"detections": []detect.Detection{{Box: detect.Box{W: 50, H: 60}, Confidence: 0.7}},
		})
	}))
	defer srv.Close()

	m, err := detect.NewHTTPModel(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPModel: %v", err)
	}
	defer m.Close()

	dets, err := m.Detect(context.Background(), &media.Frame{Data: []byte{0xff, 0xd8}})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 1 || dets[0].Confidence != 0.7 {
		t.Fatalf("Detect = %+v", dets)
	}
}

func TestHTTPModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	srv.Close() // connection refused from here on

	_, err := detect.NewHTTPModel(context.Background(), srv.URL)
	if !errors.Is(err, detect.ErrModelUnavailable) {
		t.Fatalf("NewHTTPModel = %v, want ErrModelUnavailable", err)
	}
}
