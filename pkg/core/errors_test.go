package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstraintViolation(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: delayed_jobs.unique_key")
	err := &ConstraintViolation{Field: "unique_key", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "unique_key")
	assert.True(t, IsUniqueKeyViolation(err))
	assert.True(t, IsUniqueKeyViolation(fmt.Errorf("insert: %w", err)))
}

func TestIsUniqueKeyViolation_OtherField(t *testing.T) {
	err := &ConstraintViolation{Field: "id", Err: errors.New("duplicate")}
	assert.False(t, IsUniqueKeyViolation(err))
	assert.False(t, IsUniqueKeyViolation(errors.New("plain")))
	assert.False(t, IsUniqueKeyViolation(nil))
}

func TestDeserializationError(t *testing.T) {
	cause := errors.New("yaml: line 1: did not find expected node content")
	err := &DeserializationError{Message: cause.Error(), Handler: "--- !delayed/Missing", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Job failed to load")
	assert.Contains(t, err.Error(), "!delayed/Missing")
	assert.True(t, IsDeserializationError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsDeserializationError(cause))
}

func TestInvocationError(t *testing.T) {
	cause := errors.New("did not work")
	err := &InvocationError{Err: cause}

	assert.Equal(t, "did not work", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Value: "boom"}
	assert.Equal(t, "panic: boom", err.Error())
}

func TestErrorVariables(t *testing.T) {
	for _, err := range []error{
		ErrInvalidPayload,
		ErrInvalidTypeName,
		ErrTypeNameTooLong,
		ErrHandlerTooLarge,
		ErrUniqueKeyTooLong,
		ErrJobNotOwned,
		ErrJobNotFound,
		ErrJobNotFailed,
		ErrInvalidHookMethod,
	} {
		assert.Contains(t, err.Error(), "delayed:")
	}
}
