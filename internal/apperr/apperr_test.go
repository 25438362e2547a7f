package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransient(t *testing.T) {
	assert.NoError(t, Transient("op", nil))

	cause := errors.New("connection refused")
	err := Transient("store.get_state", cause)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "store.get_state")

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsTransient(wrapped))
	assert.Same(t, err, Transient("outer", err))

	assert.False(t, IsTransient(cause))
}

func TestValidation(t *testing.T) {
	err := Validation("keyword", "Usage: /add <keyword>")
	v, ok := AsValidation(fmt.Errorf("wrap: %w", err))
	require.True(t, ok)
	assert.Equal(t, "keyword", v.Field)
	assert.Equal(t, "VALIDATION", v.Code())
	assert.False(t, IsTransient(err))

	_, ok = AsValidation(errors.New("other"))
	assert.False(t, ok)
}

func TestNotificationError(t *testing.T) {
	cause := errors.New("bot was blocked by the user")
	err := &NotificationError{UserID: 7, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "NOTIFICATION_FAILURE", err.Code())
	assert.Contains(t, err.Error(), "7")
}
