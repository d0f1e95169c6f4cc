package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-200 reply from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the call may succeed if repeated.
// Rate limits and server faults are retried, other client errors are not.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable classifies an inference error for RetryingClient.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return err != nil
}
