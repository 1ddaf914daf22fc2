package verify_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trigate/trigate/pkg/capture"
	"github.com/trigate/trigate/pkg/verify"
)

func newTestClient(t *testing.T, handler http.Handler) *verify.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return verify.NewClient(srv.URL, verify.WithRetry(0))
}

func TestFaceCheck(t *testing.T) {
	image := []byte{0xff, 0xd8, 0x01, 0xff, 0xd9}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/authenticate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostFormValue("mode"); got != "face" {
			t.Errorf("mode = %q", got)
		}
		if got := r.PostFormValue("profile"); got != "fenny" {
			t.Errorf("profile = %q", got)
		}
		if got := r.PostFormValue("user_id"); got != "subject-1" {
			t.Errorf("user_id = %q", got)
		}
		data := r.PostFormValue("image_data")
		if !strings.HasPrefix(data, "data:image/jpeg;base64,") {
			t.Fatalf("image_data = %q", data)
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, "data:image/jpeg;base64,"))
		if err != nil {
			t.Fatalf("decode image: %v", err)
		}
		if string(raw) != string(image) {
			t.Error("image bytes did not round trip")
		}
		fmt.Fprint(w, `{
			"success": true,
			"message": "Authentication successful",
			"face_match": {"name": "fenny", "similarity": 92.4, "confidence": "high"},
			"authentication_passed": true
		}`)
	}))

	res, err := client.Face.Check(context.Background(), &verify.FaceCheckRequest{
		Image:     image,
		ProfileID: "fenny",
		SubjectID: "subject-1",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Passed {
		t.Error("passed = false")
	}
	if res.Match == nil || res.Match.Name != "fenny" || res.Match.Similarity != 92.4 || res.Match.Confidence != "high" {
		t.Errorf("match = %+v", res.Match)
	}
	if len(res.Raw) == 0 {
		t.Error("raw payload not retained")
	}
}

func TestVoiceCheckMultipart(t *testing.T) {
	audio := []byte("RIFFxxxxWAVE")
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("mode"); got != "voice" {
			t.Errorf("mode = %q", got)
		}
		f, hdr, err := r.FormFile("audio_file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "voice.wav" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		fmt.Fprint(w, `{
			"success": false,
			"message": "Voice authentication failed",
			"voice_match": {"name": "fenny", "similarity": 40.1, "confidence": "low"},
			"authentication_passed": false
		}`)
	}))

	res, err := client.Voice.Check(context.Background(), &verify.VoiceCheckRequest{
		Audio:     audio,
		ProfileID: "fenny",
		SubjectID: "subject-1",
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Passed {
		t.Error("passed = true")
	}
	if res.Match == nil || res.Match.Similarity != 40.1 {
		t.Errorf("match = %+v", res.Match)
	}
}

func TestLipsyncCheck(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/lip-sync-check" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("duration"); got != "4" {
			t.Errorf("duration = %q", got)
		}
		if !strings.HasPrefix(r.FormValue("video_data"), "data:video/x-motion-jpeg;base64,") {
			t.Errorf("video_data = %q", r.FormValue("video_data"))
		}
		if _, _, err := r.FormFile("audio_data"); err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		fmt.Fprint(w, `{
			"success": true,
			"lip_sync_detected": true,
			"confidence": 0.85,
			"message": "Lip-sync detected",
			"analysis": {
				"duration_analyzed": 4.0,
				"frames_processed": 60,
				"audio_samples": 64000,
				"movement_variance": 0.0042,
				"movement_mean": 0.031,
				"has_significant_movement": true,
				"has_audio": true
			}
		}`)
	}))

	res, err := client.Lipsync.Check(context.Background(), &verify.LipsyncCheckRequest{
		Video:    []byte{0xff, 0xd8},
		Audio:    []byte("RIFF"),
		Duration: 4 * time.Second,
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Detected || res.Confidence != 0.85 {
		t.Errorf("result = %+v", res)
	}
	if res.Analysis == nil || res.Analysis.FramesProcessed != 60 || !res.Analysis.HasAudio {
		t.Errorf("analysis = %+v", res.Analysis)
	}
}

func TestErrorDetailParsing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail": "No face detected in image"}`)
	}))

	_, err := client.Face.Check(context.Background(), &verify.FaceCheckRequest{ProfileID: "fenny"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := verify.AsError(err)
	if !ok {
		t.Fatalf("err = %v, want *verify.Error", err)
	}
	if apiErr.HTTPStatus != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.HTTPStatus)
	}
	if apiErr.Message != "No face detected in image" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if apiErr.Retryable() {
		t.Error("400 reported retryable")
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status": "healthy", "face_models_loaded": 3, "voice_models_loaded": 2}`)
	}))
	defer srv.Close()

	client := verify.NewClient(srv.URL, verify.WithRetry(2))
	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if h.Status != "healthy" || h.FaceModelsLoaded != 3 || h.VoiceModelsLoaded != 2 {
		t.Errorf("health = %+v", h)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail": "unknown profile"}`)
	}))
	defer srv.Close()

	client := verify.NewClient(srv.URL, verify.WithRetry(3))
	if _, err := client.Health(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestAdapterMapsVerdicts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"message": "Authentication successful",
			"face_match": {"name": "fenny", "similarity": 92.0, "confidence": "high"},
			"authentication_passed": true
		}`)
	}))
	a := verify.NewAdapter(client)

	seg := &capture.Segment{ID: "s1", Modality: capture.FaceImage, Payload: []byte{0xff, 0xd8}}
	res, err := a.VerifyFace(context.Background(), seg, "fenny", "subject-1")
	if err != nil {
		t.Fatalf("VerifyFace: %v", err)
	}
	if !res.Success || res.Score == nil || *res.Score != 92.0 || res.Label != "high" {
		t.Errorf("result = %+v", res)
	}
}

func TestAdapterRejectsWrongModality(t *testing.T) {
	a := verify.NewAdapter(verify.NewClient("http://localhost:0"))
	seg := &capture.Segment{Modality: capture.VoiceAudio}
	if _, err := a.VerifyFace(context.Background(), seg, "fenny", ""); err == nil {
		t.Fatal("expected modality error")
	}
}

func TestAdapterPropagatesServiceError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	a := verify.NewAdapter(client)

	seg := &capture.Segment{Modality: capture.VoiceAudio, Payload: []byte("RIFF")}
	_, err := a.VerifyVoice(context.Background(), seg, "fenny", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *verify.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
}
