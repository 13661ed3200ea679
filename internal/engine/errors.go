package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running or replaying an
// experiment.
//
// Runtime errors include:
//   - Replay mismatch: a regenerated order or intensity differs from the log
//   - Trial limit: a loop would present more trials than WithMaxTrials allows
//   - Responder failure: the responder produced data the loop rejected
//
// RuntimeError includes structured fields so a failure names the exact run,
// loop, and trial involved.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Loop names the affected loop.
	Loop string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeReplayMismatch indicates a replayed loop diverged from its log.
	ErrCodeReplayMismatch RuntimeErrorCode = "REPLAY_MISMATCH"

	// ErrCodeTrialLimit indicates a loop exceeded the configured trial limit.
	ErrCodeTrialLimit RuntimeErrorCode = "TRIAL_LIMIT"

	// ErrCodeResponder indicates the responder's data could not be recorded.
	ErrCodeResponder RuntimeErrorCode = "RESPONDER"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" && e.Loop != "" {
		return fmt.Sprintf("%s: %s (run=%s, loop=%s)", e.Code, e.Message, e.RunID, e.Loop)
	}
	if e.Loop != "" {
		return fmt.Sprintf("%s: %s (loop=%s)", e.Code, e.Message, e.Loop)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsReplayMismatch returns true if the error is a replay mismatch.
// Uses errors.As to handle wrapped errors.
func IsReplayMismatch(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeReplayMismatch
	}
	return false
}

// IsTrialLimit returns true if the error is a trial limit error.
func IsTrialLimit(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeTrialLimit
	}
	return false
}

// NewReplayMismatch creates a RuntimeError for a diverged replay.
func NewReplayMismatch(runID, loop, message string, details map[string]string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReplayMismatch,
		Message: message,
		RunID:   runID,
		Loop:    loop,
		Details: details,
	}
}

// NewTrialLimitError creates a RuntimeError for an exceeded trial limit.
func NewTrialLimitError(runID, loop string, trials, limit int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTrialLimit,
		Message: fmt.Sprintf("loop exceeded max trials (%d > %d)", trials, limit),
		RunID:   runID,
		Loop:    loop,
		Details: map[string]string{
			"trials":     fmt.Sprintf("%d", trials),
			"max_trials": fmt.Sprintf("%d", limit),
		},
	}
}
