package core

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrInvalidPayload    = errors.New("delayed: cannot enqueue items which do not implement Perform")
	ErrInvalidTypeName   = errors.New("delayed: invalid payload type name (must be alphanumeric, start with letter)")
	ErrTypeNameTooLong   = errors.New("delayed: payload type name too long")
	ErrHandlerTooLarge   = errors.New("delayed: encoded handler exceeds size limit")
	ErrUniqueKeyTooLong  = errors.New("delayed: unique key exceeds maximum length")
	ErrJobNotOwned       = errors.New("delayed: job not owned by this worker")
	ErrJobNotFound       = errors.New("delayed: job not found")
	ErrJobNotFailed      = errors.New("delayed: job has not failed")
	ErrInvalidHookMethod = errors.New("delayed: hook method has an unsupported signature")
)

// ConstraintViolation is returned by storage when an insert breaks a
// uniqueness constraint. Field names the violated column.
type ConstraintViolation struct {
	Field string
	Err   error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("delayed: unique constraint violated on %s: %v", e.Field, e.Err)
}

func (e *ConstraintViolation) Unwrap() error {
	return e.Err
}

// IsUniqueKeyViolation reports whether err is a constraint violation on unique_key.
func IsUniqueKeyViolation(err error) bool {
	var cv *ConstraintViolation
	return errors.As(err, &cv) && cv.Field == "unique_key"
}

// DeserializationError means a handler could not be turned back into a payload.
type DeserializationError struct {
	Message string
	Handler string
	Err     error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("Job failed to load: %s. Handler: %q", e.Message, e.Handler)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// IsDeserializationError reports whether err is or wraps a DeserializationError.
func IsDeserializationError(err error) bool {
	var de *DeserializationError
	return errors.As(err, &de)
}

// InvocationError carries a failure raised by the payload's own logic,
// either from Perform or from one of its hooks.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string {
	return e.Err.Error()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// PanicError records a panic recovered while running a payload.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
