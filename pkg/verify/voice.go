package verify

import (
	"context"
	"encoding/json"
)

// VoiceService submits voice-audio segments for verification against an
// enrolled profile.
type VoiceService struct {
	http *httpClient
}

// VoiceCheckRequest carries one voice recording plus the identity being
// claimed.
type VoiceCheckRequest struct {
	// Audio is the WAV-encoded recording. The service needs at least one
	// second of audio to produce an embedding.
	Audio []byte

	// ProfileID names the enrolled profile to verify against.
	ProfileID string

	// SubjectID identifies the authenticating subject.
	SubjectID string
}

// VoiceCheckResult is the voice service's verdict.
type VoiceCheckResult struct {
	// Passed reports whether voice authentication succeeded.
	Passed bool `json:"authentication_passed"`

	// Message is the service's human-readable summary.
	Message string `json:"message"`

	// Match carries the similarity details, when the service produced any.
	Match *Match `json:"voice_match"`

	// Raw is the full service payload for diagnostics.
	Raw json.RawMessage `json:"-"`
}

func (r *VoiceCheckResult) captureRaw(body []byte) {
	r.Raw = json.RawMessage(body)
}

// Check submits the voice recording and returns the service verdict.
func (s *VoiceService) Check(ctx context.Context, req *VoiceCheckRequest) (*VoiceCheckResult, error) {
	fields := map[string]string{
		"mode":    "voice",
		"profile": req.ProfileID,
		"user_id": req.SubjectID,
	}
	files := []filePart{{
		field:    "audio_file",
		filename: "voice.wav",
		content:  req.Audio,
		mime:     "audio/wav",
	}}

	var result VoiceCheckResult
	if err := s.http.postMultipart(ctx, "/api/authenticate", fields, files, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
