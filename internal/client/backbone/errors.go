package backbone

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification. Match with errors.Is.
var (
	ErrBadRequest   = errors.New("backbone: bad request")
	ErrUnauthorized = errors.New("backbone: unauthorized")
	ErrForbidden    = errors.New("backbone: forbidden")
	ErrNotFound     = errors.New("backbone: not found")
	ErrConflict     = errors.New("backbone: conflict")
	ErrThrottled    = errors.New("backbone: throttled")
	ErrServerError  = errors.New("backbone: server error")
	// ErrUnavailable is returned when the backbone could not be reached
	// after all retries.
	ErrUnavailable = errors.New("backbone: unavailable")
)

// APIError wraps a sentinel with the HTTP status, the request id and the
// response body.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("backbone: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("backbone: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

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
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}
		return nil
	}
}

func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsTransient reports whether err is worth retrying in a later sync run.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrThrottled) ||
		errors.Is(err, ErrServerError)
}
