package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrJobNotFound), "per-entity sentinel wraps ErrNotFound")
	assert.True(t, IsNotFoundError(NewStoreError("job", "get", "gone", ErrJobNotFound)))
	assert.False(t, IsNotFoundError(ErrDuplicate))
	assert.False(t, IsNotFoundError(errors.New("connection reset")))
	assert.False(t, IsNotFoundError(nil))
}

func TestStoreError_MessageAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("deadlock detected")
	err := NewStoreError("job", "update", "could not persist progress", cause)

	assert.Equal(t,
		"update operation on job failed: could not persist progress: deadlock detected",
		err.Error())
	assert.True(t, errors.Is(err, cause), "wrapped cause is reachable via errors.Is")

	var storeErr *StoreError
	assert.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "job", storeErr.Entity)
	assert.Equal(t, "update", storeErr.Operation)
}

func TestStoreError_WithoutCause(t *testing.T) {
	t.Parallel()

	err := NewStoreError("job", "create", "rejected", nil)
	assert.Equal(t, "create operation on job failed: rejected", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}
