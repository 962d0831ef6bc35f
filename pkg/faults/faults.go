// Package faults defines the error taxonomy shared by engine components.
package faults

import (
	"errors"
	"fmt"
)

// Error kinds. Component errors wrap exactly one of them so callers can branch with errors.Is.
var (
	// ErrConfiguration marks a bad definition, cron expression or condition. Fatal to one registration only.
	ErrConfiguration = errors.New("configuration error")

	// ErrState marks an operation that is invalid for the current lifecycle state. Rejected, not retried.
	ErrState = errors.New("state error")

	// ErrExecution marks a failed step. Routed to the workflow's exception path.
	ErrExecution = errors.New("execution error")
)

// Error wraps an error with the operation that produced it.
type Error struct {
	Op   string // Operation being performed (e.g., "Register", "Start", "Destroy")
	ID   string // Integration, step or task ID if applicable
	Kind error  // One of the kinds above
	Err  error  // Underlying error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against either the kind or the wrapped error.
func (e *Error) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}

	return errors.Is(e.Err, target)
}

// Configuration creates a configuration error.
func Configuration(op, id string, err error) *Error {
	return &Error{Op: op, ID: id, Kind: ErrConfiguration, Err: err}
}

// State creates a lifecycle state error.
func State(op, id string, err error) *Error {
	return &Error{Op: op, ID: id, Kind: ErrState, Err: err}
}

// Execution creates a step execution error.
func Execution(op, id string, err error) *Error {
	return &Error{Op: op, ID: id, Kind: ErrExecution, Err: err}
}

type retryableError struct {
	err error
}

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

// Retryable marks err as safe to retry later.
func Retryable(err error) error {
	if err == nil {
		return nil
	}

	return retryableError{err: err}
}

// IsRetryable checks if any error in the chain was marked retryable.
func IsRetryable(err error) bool {
	var r retryableError

	return errors.As(err, &r)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsState checks if an error is a lifecycle state error.
func IsState(err error) bool {
	return errors.Is(err, ErrState)
}

// IsExecution checks if an error is a step execution error.
func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}
