package verify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"
)

// LipsyncService submits combined video+audio clips for liveness analysis:
// the service correlates mouth-landmark movement with concurrent audio to
// detect live (non-replayed) speech.
type LipsyncService struct {
	http *httpClient
}

// LipsyncCheckRequest carries one av clip.
type LipsyncCheckRequest struct {
	// Video is the MJPEG-encoded video stream.
	Video []byte

	// Audio is the WAV-encoded concurrent audio.
	Audio []byte

	// Duration is the nominal clip duration.
	Duration time.Duration
}

// LipsyncAnalysis holds the service's per-clip metrics.
type LipsyncAnalysis struct {
	DurationAnalyzed       float64 `json:"duration_analyzed"`
	FramesProcessed        int     `json:"frames_processed"`
	AudioSamples           int     `json:"audio_samples"`
	MovementVariance       float64 `json:"movement_variance"`
	MovementMean           float64 `json:"movement_mean"`
	HasSignificantMovement bool    `json:"has_significant_movement"`
	HasAudio               bool    `json:"has_audio"`
}

// LipsyncCheckResult is the lip-sync service's verdict.
type LipsyncCheckResult struct {
	// Detected reports whether live speech was detected.
	Detected bool `json:"lip_sync_detected"`

	// Confidence is the service's certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Message is the service's human-readable summary.
	Message string `json:"message"`

	// Analysis carries the per-clip metrics.
	Analysis *LipsyncAnalysis `json:"analysis"`

	// Raw is the full service payload for diagnostics.
	Raw json.RawMessage `json:"-"`
}

func (r *LipsyncCheckResult) captureRaw(body []byte) {
	r.Raw = json.RawMessage(body)
}

// Check submits the clip and returns the service verdict.
func (s *LipsyncService) Check(ctx context.Context, req *LipsyncCheckRequest) (*LipsyncCheckResult, error) {
	seconds := int(req.Duration / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	fields := map[string]string{
		"video_data": "data:video/x-motion-jpeg;base64," + base64.StdEncoding.EncodeToString(req.Video),
		"duration":   strconv.Itoa(seconds),
	}
	files := []filePart{{
		field:    "audio_data",
		filename: "clip.wav",
		content:  req.Audio,
		mime:     "audio/wav",
	}}

	var result LipsyncCheckResult
	if err := s.http.postMultipart(ctx, "/api/lip-sync-check", fields, files, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
