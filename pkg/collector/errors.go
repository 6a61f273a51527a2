package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StatusError is returned when the collector answers with anything but 202.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector returned status %d", e.StatusCode)
}

// TimeoutError is returned when connecting to or reading from the collector
// takes longer than the configured timeout.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out posting event: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
