package connector

import (
	"errors"
	"fmt"
	"time"
)

// TransportError is a network or timeout failure talking to a backend.
// It is retried locally with backoff before being surfaced.
type TransportError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError means the backend throttled us. It is never terminal for
// the request; the owning queue re-schedules with RetryAfter.
type RateLimitError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (status %d, retry after %s): %s",
		e.Provider, e.StatusCode, e.RetryAfter, e.Message)
}

// FormatRejectionError means the backend rejected the tool-schema shape of
// the request. The connector falls back once to a tool-free request for
// the same call; this error only escapes if the fallback also fails.
type FormatRejectionError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *FormatRejectionError) Error() string {
	return fmt.Sprintf("%s rejected request format (status %d): %s",
		e.Provider, e.StatusCode, e.Body)
}

// BackendError is any other terminal backend failure (auth, bad request
// without tools, unexpected status). Not retried.
type BackendError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsRateLimit reports whether err is (or wraps) a rate-limit failure.
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
