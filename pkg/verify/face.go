package verify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
)

// FaceService submits face-image segments for verification against an
// enrolled profile.
type FaceService struct {
	http *httpClient
}

// Match is a profile match reported by a scoring service. Similarity is a
// percentage; Confidence is the service's own label ("high", "medium",
// "low").
type Match struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
	Confidence string  `json:"confidence"`
}

// FaceCheckRequest carries one face still plus the identity being claimed.
type FaceCheckRequest struct {
	// Image is the encoded JPEG still.
	Image []byte

	// ProfileID names the enrolled profile to verify against.
	ProfileID string

	// SubjectID identifies the authenticating subject.
	SubjectID string
}

// FaceCheckResult is the face service's verdict.
type FaceCheckResult struct {
	// Passed reports whether face authentication succeeded.
	Passed bool `json:"authentication_passed"`

	// Message is the service's human-readable summary.
	Message string `json:"message"`

	// Match carries the similarity details, when the service produced any.
	Match *Match `json:"face_match"`

	// Raw is the full service payload for diagnostics.
	Raw json.RawMessage `json:"-"`
}

func (r *FaceCheckResult) captureRaw(body []byte) {
	r.Raw = json.RawMessage(body)
}

// Check submits the face still and returns the service verdict.
func (s *FaceService) Check(ctx context.Context, req *FaceCheckRequest) (*FaceCheckResult, error) {
	form := url.Values{}
	form.Set("mode", "face")
	form.Set("profile", req.ProfileID)
	form.Set("user_id", req.SubjectID)
	form.Set("image_data", "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(req.Image))

	var result FaceCheckResult
	if err := s.http.postForm(ctx, "/api/authenticate", form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
