package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why a request failed.
type ErrorKind int

const (
	// KindStatus indicates the upstream answered with a status that is never retried.
	KindStatus ErrorKind = iota
	// KindExhausted indicates every allowed attempt failed with a retryable condition.
	KindExhausted
	// KindCanceled indicates the caller's context ended before a result was available.
	KindCanceled
)

// String returns the name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindExhausted:
		return "exhausted"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

var (
	// ErrRetryableStatus marks an attempt that returned 429 or a 5xx status.
	ErrRetryableStatus = errors.New("retryable status")
	// ErrCircuitOpen is returned when the circuit breaker rejects a request.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Error describes a failed request after the retry policy has been applied.
type Error struct {
	Kind       ErrorKind
	Method     string
	URL        string
	StatusCode int // Last observed status, 0 when no response was received
	Attempts   int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %s after %d attempt(s): HTTP %d: %v",
			e.Method, e.URL, e.Kind, e.Attempts, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: %s after %d attempt(s): HTTP %d",
			e.Method, e.URL, e.Kind, e.Attempts, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %s after %d attempt(s): %v",
			e.Method, e.URL, e.Kind, e.Attempts, e.Err)
	}
}

// Unwrap returns the underlying transport or context error.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the last HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}

	return 0
}

// IsPrivate reports whether the upstream refused access (401 or 403).
func IsPrivate(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindStatus {
		return false
	}

	return fe.StatusCode == http.StatusUnauthorized || fe.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether the upstream answered 404.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindStatus && fe.StatusCode == http.StatusNotFound
}

// IsExhausted reports whether every retry attempt was used up.
func IsExhausted(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindExhausted
}

// IsRateLimited reports whether retries were exhausted while the upstream kept answering 429.
func IsRateLimited(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindExhausted && fe.StatusCode == http.StatusTooManyRequests
}

// isRetryableStatus reports whether a status code should be retried.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
