package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError marks a failure worth retrying: timeouts, connection
// resets, backend overload. The invoker consumes this classification.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s", e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// TerminalError marks a failure that retrying cannot fix: rejected input,
// authentication failure, a backend that does not understand the request.
type TerminalError struct {
	Err error
}

// Error implements the error interface.
func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal: %s", e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal wraps err as non-retryable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTransient reports whether err should be retried.
//
// Explicit TransientError wins; explicit TerminalError loses. Unclassified
// errors fall back to structural checks: context deadlines and network
// errors are transient, everything else is terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
