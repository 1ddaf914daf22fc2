// Package verify is the client for the external biometric scoring services:
// the face check, the voice check, and the lip-sync check.
//
// The services are opaque: this package submits captured segments and
// returns their verdicts. Network and backend failures surface as typed
// errors; converting them into failing step results is the orchestrator
// boundary's job, so the state machine always keeps progressing.
package verify

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default request timeout. Voice and lip-sync
	// uploads carry a few hundred kilobytes, so this is generous.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default maximum number of retries for
	// transient errors.
	DefaultMaxRetries = 2
)

// Client is the verification services client.
type Client struct {
	// Face submits face-image segments.
	Face *FaceService

	// Voice submits voice-audio segments.
	Voice *VoiceService

	// Lipsync submits av-clip segments.
	Lipsync *LipsyncService

	config *clientConfig
	http   *httpClient
}

// clientConfig holds the client configuration.
type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
}

// Option is a function that configures the client.
type Option func(*clientConfig)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetry sets the maximum number of retries for transient errors.
func WithRetry(maxRetries int) Option {
	return func(c *clientConfig) {
		c.maxRetries = maxRetries
	}
}

// NewClient creates a verification services client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	cfg := &clientConfig{
		baseURL:    baseURL,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}

	c := &Client{
		config: cfg,
		http:   newHTTPClient(cfg),
	}
	c.Face = &FaceService{http: c.http}
	c.Voice = &VoiceService{http: c.http}
	c.Lipsync = &LipsyncService{http: c.http}
	return c
}

// Health describes the scoring services' readiness.
type Health struct {
	Status            string `json:"status"`
	FaceModelsLoaded  int    `json:"face_models_loaded"`
	VoiceModelsLoaded int    `json:"voice_models_loaded"`
}

// Health reports service status and the number of enrolled models.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.http.get(ctx, "/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}
