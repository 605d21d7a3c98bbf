package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Validation("amount must be positive")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrAuthorization)

	wrapped := fmt.Errorf("recording entry: %w", err)
	assert.ErrorIs(t, wrapped, ErrValidation)

	e, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "amount must be positive", e.Message)
}

func TestConflictUnwraps(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Conflict(cause, "phone %s is taken", "07501234567")

	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "CONFLICT")
}

func TestAsOnPlainError(t *testing.T) {
	_, ok := As(errors.New("boom"))
	assert.False(t, ok)
}
