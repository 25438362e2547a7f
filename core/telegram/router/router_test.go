package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedErr struct{}

func (codedErr) Error() string { return "bad input" }
func (codedErr) Code() string  { return "validation failed" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "VALIDATION_FAILED", deriveErrorCode(codedErr{}))
	assert.Equal(t, "VALIDATION_FAILED", deriveErrorCode(fmt.Errorf("wrap: %w", codedErr{})))
	assert.Equal(t, "PLAINERR", deriveErrorCode(&plainErr{}))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "add", normalizeHandlerName("/add"))
	assert.Equal(t, "unknown", normalizeHandlerName("  "))
	assert.Equal(t, "find_partners", normalizeHandlerName("Find Partners"))
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "/start", commandName("/start"))
	assert.Equal(t, "/add", commandName("/add chess club"))
	assert.Equal(t, "/help", commandName("/help@interest_bot"))
}
