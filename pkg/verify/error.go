package verify

import (
	"errors"
	"fmt"
)

// Error represents a scoring service error.
type Error struct {
	// HTTPStatus is the HTTP status code.
	HTTPStatus int `json:"http_status"`

	// Message is the service-reported error detail.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("verify: %s (http=%d)", e.Message, e.HTTPStatus)
}

// IsRateLimit returns true if the service throttled the request.
func (e *Error) IsRateLimit() bool {
	return e.HTTPStatus == 429
}

// IsServerError returns true if this is a server-side error.
func (e *Error) IsServerError() bool {
	return e.HTTPStatus >= 500
}

// Retryable returns true if the request can be retried.
func (e *Error) Retryable() bool {
	return e.IsRateLimit() || e.IsServerError()
}

// AsError extracts *Error from an error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
