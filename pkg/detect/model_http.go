package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trigate/trigate/pkg/media"
)

// HTTPModel runs detection by posting frames to an external detector
// service. The service accepts a JPEG body and responds with
// {"detections": [{box, confidence, landmarks}]}.
//
// Per-tick latency matters more than completeness here, so the request
// timeout is short and errors surface as empty observations upstream.
type HTTPModel struct {
	url    string
	client *http.Client
}

// HTTPModelOption configures an HTTPModel.
type HTTPModelOption func(*HTTPModel)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPModelOption {
	return func(m *HTTPModel) {
		if c != nil {
			m.client = c
		}
	}
}

// NewHTTPModel creates a detector model backed by the service at url.
// It checks the endpoint once at startup; an unreachable service returns
// ErrModelUnavailable so the caller can degrade to fail-open mode.
func NewHTTPModel(ctx context.Context, url string, opts ...HTTPModelOption) (*HTTPModel, error) {
	m := &HTTPModel{
		url:    url,
		client: &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: detector returned %s", ErrModelUnavailable, resp.Status)
	}
	return m, nil
}

// Detect implements Model.
func (m *HTTPModel) Detect(ctx context.Context, frame *media.Frame) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect: detector returned %s", resp.Status)
	}

	var body struct {
		Detections []Detection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("detect: decode response: %w", err)
	}
	return body.Detections, nil
}

// Close implements Model.
func (m *HTTPModel) Close() error {
	return nil
}
