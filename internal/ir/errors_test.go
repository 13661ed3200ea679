package ir

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Message(t *testing.T) {
	err := Configf("scheduler", "trials", "nReps", "must be >= 1, got %d", 0)
	assert.Equal(t, `configuration error in scheduler "trials" (field=nReps): must be >= 1, got 0`, err.Error())
}

func TestUsageError_Message(t *testing.T) {
	err := &UsageError{Component: "trials", Name: "main", Op: "AddData", Trial: 3, Stair: -1, Message: "no current trial"}
	assert.Equal(t, `usage error in trials "main" calling AddData: no current trial (trial=3)`, err.Error())

	stair := &UsageError{Component: "multistair", Op: "AddData", Trial: -1, Stair: 2, Message: "no pending trial"}
	assert.Contains(t, stair.Error(), "(stair=2)")
}

func TestErrorPredicates_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("build loop: %w", &ConfigurationError{Message: "bad"})
	assert.True(t, IsConfigurationError(wrapped))
	assert.False(t, IsUsageError(wrapped))

	assert.True(t, IsUsageError(fmt.Errorf("x: %w", &UsageError{Trial: -1, Stair: -1})))
	assert.True(t, IsExhausted(fmt.Errorf("next: %w", ErrExhausted)))
}
