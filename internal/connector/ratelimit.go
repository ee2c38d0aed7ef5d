package connector

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// defaultRateLimitDelay is used when a throttling response carries no
// usable retry-after or reset information.
const defaultRateLimitDelay = time.Second

// RateLimitDetector decides whether a failed backend response is a
// rate-limit signal. Detectors are backend-specific and tried in order;
// the queue itself only ever sees the resulting boolean.
type RateLimitDetector func(status int, header http.Header, body []byte) bool

// StatusDetector matches an exact HTTP status (normally 429).
func StatusDetector(status int) RateLimitDetector {
	return func(got int, _ http.Header, _ []byte) bool {
		return got == status
	}
}

// ErrorCodeDetector matches a recognized error code inside a JSON error
// body, e.g. {"error":{"code":"rate_limit_exceeded"}}.
func ErrorCodeDetector(codes ...string) RateLimitDetector {
	return func(_ int, _ http.Header, body []byte) bool {
		var payload struct {
			Error struct {
				Code string `json:"code"`
				Type string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return false
		}
		for _, code := range codes {
			if payload.Error.Code == code || payload.Error.Type == code {
				return true
			}
		}
		return false
	}
}

// MessageDetector matches a substring of the response body,
// case-insensitively. The crudest detector, tried last.
func MessageDetector(substrings ...string) RateLimitDetector {
	return func(_ int, _ http.Header, body []byte) bool {
		lower := strings.ToLower(string(body))
		for _, s := range substrings {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}
}

// DefaultDetectors is the detector chain for providers with no specific
// configuration.
func DefaultDetectors() []RateLimitDetector {
	return []RateLimitDetector{
		StatusDetector(http.StatusTooManyRequests),
		ErrorCodeDetector("rate_limit_exceeded", "rate_limit_error", "insufficient_quota"),
		MessageDetector("rate limit", "too many requests"),
	}
}

func detectRateLimit(detectors []RateLimitDetector, status int, header http.Header, body []byte) bool {
	for _, d := range detectors {
		if d(status, header, body) {
			return true
		}
	}
	return false
}

// retryAfterDelay computes how long to pause, in priority order: a
// structured retry-after value, then a reset-timestamp header, then the
// fixed default.
func retryAfterDelay(header http.Header, body []byte, now time.Time) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}

	// Some backends put retry_after in the error body instead.
	var payload struct {
		Error struct {
			RetryAfter float64 `json:"retry_after"`
		} `json:"error"`
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		secs := payload.Error.RetryAfter
		if secs == 0 {
			secs = payload.RetryAfter
		}
		if secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	for _, name := range []string{"X-RateLimit-Reset", "X-RateLimit-Reset-Requests", "Anthropic-RateLimit-Requests-Reset"} {
		v := header.Get(name)
		if v == "" {
			continue
		}
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}

	return defaultRateLimitDelay
}
