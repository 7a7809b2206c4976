package upstream

import (
	"errors"
	"fmt"
	"time"
)

// StatusError is returned for non-2xx upstream responses. Message carries the
// upstream error text so the failure classifier can label it.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
	// RetryAfter is the server supplied delay, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// RetryAfterOf extracts StatusError.RetryAfter from err.
func RetryAfterOf(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// BlockedError is returned when the response was withheld by a safety filter.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "content blocked by safety filter: " + e.Reason
}
