package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// httpClient handles HTTP communication with the scoring services.
type httpClient struct {
	client     *http.Client
	baseURL    string
	maxRetries int
}

// newHTTPClient creates a new HTTP client.
func newHTTPClient(cfg *clientConfig) *httpClient {
	return &httpClient{
		client:     cfg.httpClient,
		baseURL:    strings.TrimSuffix(cfg.baseURL, "/"),
		maxRetries: cfg.maxRetries,
	}
}

// filePart is one file attached to a multipart request.
type filePart struct {
	field    string
	filename string
	content  []byte
	mime     string
}

// get performs a GET request and decodes the JSON response into result.
func (h *httpClient) get(ctx context.Context, path string, result any) error {
	return h.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()
		return h.handleResponse(resp, result)
	})
}

// postForm performs a form-encoded POST and decodes the JSON response.
func (h *httpClient) postForm(ctx context.Context, path string, form url.Values, result any) error {
	body := form.Encode()
	return h.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()
		return h.handleResponse(resp, result)
	})
}

// postMultipart performs a multipart POST carrying fields and files and
// decodes the JSON response.
func (h *httpClient) postMultipart(ctx context.Context, path string, fields map[string]string, files []filePart, result any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			return fmt.Errorf("create form file %s: %w", f.field, err)
		}
		if _, err := part.Write(f.content); err != nil {
			return fmt.Errorf("write form file %s: %w", f.field, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}
	body := buf.Bytes()
	contentType := mw.FormDataContentType()

	return h.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()
		return h.handleResponse(resp, result)
	})
}

// retry runs fn with exponential backoff for retryable errors.
func (h *httpClient) retry(ctx context.Context, fn func() error) error {
	bo := gax.Backoff{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			if err := gax.Sleep(ctx, bo.Pause()); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if apiErr, ok := AsError(err); ok && !apiErr.Retryable() {
			return err
		}
		// Network errors and retryable service errors fall through.
	}
	return lastErr
}

// handleResponse decodes a response body or converts a failure status into
// a typed Error.
func (h *httpClient) handleResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The services report failures as {"detail": "..."}.
		var detail struct {
			Detail string `json:"detail"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
			msg = detail.Detail
		}
		return &Error{HTTPStatus: resp.StatusCode, Message: msg}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rc, ok := result.(rawCapturer); ok {
		rc.captureRaw(body)
	}
	return nil
}

// rawCapturer lets result types retain the raw service payload for
// diagnostics alongside the decoded fields.
type rawCapturer interface {
	captureRaw(body []byte)
}
