package workflow

import (
	"errors"
	"fmt"
)

// ErrFeatureNotFound is returned when no feature exists for the given id.
var ErrFeatureNotFound = errors.New("feature not found")

// PhaseMismatchError rejects results submitted against the wrong phase.
// The persisted state is left unchanged.
type PhaseMismatchError struct {
	FeatureID string
	Submitted string
	Current   string
}

func (e *PhaseMismatchError) Error() string {
	return fmt.Sprintf("phase mismatch for feature %s: submitted %q, current phase is %q",
		e.FeatureID, e.Submitted, e.Current)
}

// ValidationError reports bad input: an unknown phase name, an invalid
// status combination, a malformed record. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a failure to read, back up, or write state. The
// in-memory prior state is preserved when a write fails.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
