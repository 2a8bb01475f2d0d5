package resilience

import (
	"errors"
	"fmt"
	"time"
)

// OpenError is returned when a call is rejected because the upstream's
// circuit breaker is open. It is distinguished from upstream failures so
// callers can tell "upstream is down" from "this specific call failed".
type OpenError struct {
	Upstream string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is open", e.Upstream)
}

// IsOpen reports whether err is a circuit-open rejection.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// AttemptError records one failed attempt inside a retry loop.
type AttemptError struct {
	Attempt int       `json:"attempt"`
	Err     error     `json:"-"`
	Message string    `json:"error"`
	At      time.Time `json:"timestamp"`
}

// RetryError aggregates all attempt errors after retries are exhausted.
type RetryError struct {
	Attempts []AttemptError
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", len(e.Attempts), e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}
