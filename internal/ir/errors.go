package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExhausted is the exhaustion signal. It is not a failure: a trial handler,
// staircase, or coordinator returns it once its sequence is fully consumed,
// and keeps returning it on every later request without mutating state.
var ErrExhausted = errors.New("sequence exhausted")

// ConfigurationError reports invalid construction parameters: an empty
// condition set, a non-positive repetition or trial count, an unknown method
// or stair type. The component cannot be constructed.
type ConfigurationError struct {
	// Component names the failing component ("scheduler", "trials", ...).
	Component string

	// Name is the handler or loop name, if known.
	Name string

	// Field is the offending parameter, if any.
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Component != "" {
		b.WriteString(" in ")
		b.WriteString(e.Component)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field=%s)", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// UsageError reports a protocol violation by the caller: writing data before
// requesting a trial, requesting two stimuli without an intervening response,
// responding twice. The component's state is unchanged, so the caller may
// correct and retry.
type UsageError struct {
	Component string
	Name      string

	// Op is the operation that was called out of order.
	Op string

	// Trial is the current trial index, or -1 when no trial is active.
	Trial int

	// Stair is the staircase id, or -1 when not applicable.
	Stair int

	Message string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	var b strings.Builder
	b.WriteString("usage error")
	if e.Component != "" {
		b.WriteString(" in ")
		b.WriteString(e.Component)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Op != "" {
		fmt.Fprintf(&b, " calling %s", e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Trial >= 0 {
		fmt.Fprintf(&b, " (trial=%d", e.Trial)
		if e.Stair >= 0 {
			fmt.Fprintf(&b, ", stair=%d", e.Stair)
		}
		b.WriteString(")")
	} else if e.Stair >= 0 {
		fmt.Fprintf(&b, " (stair=%d)", e.Stair)
	}
	return b.String()
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsUsageError returns true if err is or wraps a UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// IsExhausted returns true if err is or wraps ErrExhausted.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

// Configf builds a ConfigurationError with a formatted message.
func Configf(component, name, field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Name:      name,
		Field:     field,
		Message:   fmt.Sprintf(format, args...),
	}
}
