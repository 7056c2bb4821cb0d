package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTransient marks failures that are worth retrying: rate-limit signals,
// timeouts and transport errors. Work functions wrap such causes so the
// invoker can distinguish them from permanent failures.
var ErrTransient = errors.New("transient failure")

// Transient wraps err so DefaultIsRetryable classifies it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// DefaultIsRetryable reports whether an error belongs to the transient
// failure class: the ErrTransient sentinel, an attempt timeout, or a network
// error that declares itself a timeout.
func DefaultIsRetryable(err error) bool {
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// InvocationError is returned when a unit of work exhausted its retry budget.
// It carries the last underlying cause.
type InvocationError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying cause to support errors.Is/errors.As.
func (e *InvocationError) Unwrap() error {
	return e.Err
}
