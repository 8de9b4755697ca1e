package services

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed API call for the caller's retry policy.
type ErrorKind int

const (
	// KindTransient covers network errors and 5xx responses. Retry-worthy.
	KindTransient ErrorKind = iota
	// KindRateLimited is a 429 response. Retry-worthy after the hinted delay.
	KindRateLimited
	// KindUnauthorized is a 401 with the presented token. The caller must
	// force a token refresh before retrying; the client never retries
	// internally with the same stale token.
	KindUnauthorized
	// KindPermanent covers the remaining 4xx responses and malformed data.
	// Terminal for the current run.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// APIError is the uniform failure type produced by the Spotify client.
type APIError struct {
	Kind       ErrorKind
	StatusCode int           // Last HTTP status, 0 for network failures
	RetryAfter time.Duration // Rate-limit hint, 0 when absent
	Op         string        // Operation that failed, e.g. "top_tracks"
	Err        error         // Underlying cause, may be nil
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spotify %s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("spotify %s: %s (status %d)", e.Op, e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the whole operation is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// KindOf extracts the [ErrorKind] from an error chain.
//
// Errors that are not [*APIError] are treated as transient: an unknown
// failure should not permanently skip a user.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}
