package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrCallStateConflict = errors.New("call state conflict")
	ErrDeliveryFailure   = errors.New("delivery failure")
	ErrDependencyTimeout = errors.New("dependency timeout")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
)

// InvalidArgumentError names the offending field. It matches ErrInvalidArgument with errors.Is.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func InvalidArgument(field, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Reason: reason}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// CallStateConflictError reports a rejected call action with the state the machine
// expected and the one it found, so a client can resynchronize.
type CallStateConflictError struct {
	Action   CallAction
	Expected string
	Actual   string
}

func (e *CallStateConflictError) Error() string {
	return fmt.Sprintf("call state conflict on %s: expected %s, actual %s", e.Action, e.Expected, e.Actual)
}

func (e *CallStateConflictError) Is(target error) bool { return target == ErrCallStateConflict }
