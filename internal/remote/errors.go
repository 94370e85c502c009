// Package remote provides the HTTP client for the journal mirror store and
// the assessment submission endpoint, with error classification the sync
// orchestrator uses to decide between retry, conflict, and abandonment.
// The client performs no internal retries: pacing lives in one shared
// backoff policy owned by the callers.
package remote

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, remote.ErrThrottled) to check.
var (
	ErrBadRequest         = errors.New("remote: bad request")
	ErrUnauthorized       = errors.New("remote: unauthorized")
	ErrForbidden          = errors.New("remote: forbidden")
	ErrNotFound           = errors.New("remote: not found")
	ErrThrottled          = errors.New("remote: throttled")
	ErrServerError        = errors.New("remote: server error")
	ErrUnexpectedResponse = errors.New("remote: unexpected response")
)

// APIError wraps a sentinel error with the HTTP status code and the error
// message body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ConflictError reports that an upsert's base version is stale: the remote
// record was independently modified since the mutation was enqueued. It is
// surfaced as data and never retried: the caller records a conflict and
// leaves the mutation queued for manual resolution.
type ConflictError struct {
	EntityID      string
	ServerVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote: version conflict on %s (server at v%d)", e.EntityID, e.ServerVersion)
}

// classifyStatus maps an HTTP status code to a sentinel error. Returns nil
// for 2xx success codes. Unrecognized non-2xx codes below 500, redirects
// included, get ErrUnexpectedResponse: the server answered, so retrying the
// same request cannot change the outcome.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		switch {
		case code >= http.StatusInternalServerError:
			return ErrServerError
		case code >= http.StatusMultipleChoices:
			return ErrUnexpectedResponse
		default:
			return nil
		}
	}
}

// IsRetryable reports whether the error is a transient failure worth
// another attempt under the backoff policy: network-level errors,
// throttling, and 5xx responses. Conflicts and 4xx client errors are not
// retryable.
func IsRetryable(err error) bool {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return false
	}

	if errors.Is(err, ErrThrottled) || errors.Is(err, ErrServerError) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
