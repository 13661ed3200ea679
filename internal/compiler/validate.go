package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/trialkit/internal/datastore"
	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/multistair"
	"github.com/roach88/trialkit/internal/schedule"
	"github.com/roach88/trialkit/internal/staircase"
)

// Validation error codes (E100-E199)
const (
	ErrNoLoops         = "E101" // at least one loop required
	ErrDuplicateLoop   = "E102" // duplicate loop name
	ErrUnknownKind     = "E103" // loop kind is not trials or staircase
	ErrInvalidMethod   = "E104" // sequencing or interleave method
	ErrNoConditions    = "E105" // staircase loop without conditions
	ErrMissingStartVal = "E106" // staircase condition without startVal
	ErrNegativeCount   = "E107" // n_reps below one; n_trials, n_up, ... below zero
	ErrInvalidOption   = "E108" // stair_type, step_type, step_policy, estimate
	ErrReservedName    = "E109" // data type collides with a reserved column
	ErrNoStopCondition = "E110" // staircase that can never finish
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled experiment against the rules loops enforce at
// construction. Returns all errors found (does not fail-fast), so a
// definition can be fixed in one pass.
func Validate(spec *ir.ExperimentSpec) []ValidationError {
	var errs []ValidationError

	if len(spec.Loops) == 0 {
		errs = append(errs, ValidationError{
			Field:   "loops",
			Message: "at least one loop is required",
			Code:    ErrNoLoops,
		})
	}

	names := make(map[string]bool)
	for i, loop := range spec.Loops {
		field := fmt.Sprintf("loops[%d]", i)
		if loop.Name != "" {
			field = "loop." + loop.Name
		}

		if names[loop.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate loop name: %q", loop.Name),
				Code:    ErrDuplicateLoop,
			})
		}
		names[loop.Name] = true

		errs = append(errs, validateCounts(field, loop)...)
		for _, dt := range loop.DataTypes {
			if datastore.IsReserved(dt) {
				errs = append(errs, ValidationError{
					Field:   field + ".data_types",
					Message: fmt.Sprintf("data type name %q is reserved", dt),
					Code:    ErrReservedName,
				})
			}
		}

		switch loop.Kind {
		case ir.LoopTrials, "":
			errs = append(errs, validateTrials(field, loop)...)
		case ir.LoopStaircase:
			errs = append(errs, validateStaircase(field, loop)...)
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown loop kind %q, must be %q or %q", loop.Kind, ir.LoopTrials, ir.LoopStaircase),
				Code:    ErrUnknownKind,
			})
		}
	}

	return errs
}

func validateCounts(field string, loop ir.LoopSpec) []ValidationError {
	var errs []ValidationError
	if loop.NReps != nil && *loop.NReps < 1 {
		errs = append(errs, ValidationError{
			Field:   field + ".n_reps",
			Message: fmt.Sprintf("must be at least 1, got %d", *loop.NReps),
			Code:    ErrNegativeCount,
		})
	}
	counts := []struct {
		name string
		n    int
	}{
		{"n_trials", loop.NTrials},
		{"n_reversals", loop.NReversals},
		{"n_up", loop.NUp},
		{"n_down", loop.NDown},
		{"halve_every", loop.HalveEvery},
	}
	for _, c := range counts {
		if c.n < 0 {
			errs = append(errs, ValidationError{
				Field:   field + "." + c.name,
				Message: fmt.Sprintf("must not be negative, got %d", c.n),
				Code:    ErrNegativeCount,
			})
		}
	}
	return errs
}

func validateTrials(field string, loop ir.LoopSpec) []ValidationError {
	var errs []ValidationError
	if _, err := schedule.ParseMethod(loop.Method); err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".method",
			Message: configMessage(err),
			Code:    ErrInvalidMethod,
		})
	}
	return errs
}

func validateStaircase(field string, loop ir.LoopSpec) []ValidationError {
	var errs []ValidationError

	if _, err := multistair.ParseMethod(loop.Method); err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".method",
			Message: configMessage(err),
			Code:    ErrInvalidMethod,
		})
	}

	stairType, err := staircase.ParseType(loop.StairType)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".stair_type",
			Message: configMessage(err),
			Code:    ErrInvalidOption,
		})
	}
	if _, err := staircase.ParseStepType(loop.StepType); err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".step_type",
			Message: configMessage(err),
			Code:    ErrInvalidOption,
		})
	}
	if _, err := staircase.ParseEstimate(loop.Estimate); err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".estimate",
			Message: configMessage(err),
			Code:    ErrInvalidOption,
		})
	}
	if len(loop.StepSizes) > 0 {
		if _, err := staircase.ParsePolicy(loop.StepPolicy, loop.StepSizes, loop.HalveEvery, loop.MinStep); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".step_sizes",
				Message: configMessage(err),
				Code:    ErrInvalidOption,
			})
		}
	}

	if len(loop.Conditions) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".conditions",
			Message: "staircase loops need one condition per staircase",
			Code:    ErrNoConditions,
		})
		return errs
	}

	for j, cond := range loop.Conditions {
		condField := fmt.Sprintf("%s.conditions[%d]", field, j)
		if _, ok := cond.Float(staircase.ColStartVal); !ok {
			errs = append(errs, ValidationError{
				Field:   condField,
				Message: fmt.Sprintf("staircase condition needs a numeric %s", staircase.ColStartVal),
				Code:    ErrMissingStartVal,
			})
		}
		if !hasStop(stairType, loop, cond) {
			msg := "simple staircase needs n_trials or n_reversals"
			if stairType == staircase.TypeQuest {
				msg = "quest staircase needs n_trials"
			}
			errs = append(errs, ValidationError{
				Field:   condField,
				Message: msg,
				Code:    ErrNoStopCondition,
			})
		}
	}

	return errs
}

// hasStop reports whether a staircase built from cond has a stop condition,
// either from the loop defaults or from its own columns.
func hasStop(t staircase.Type, loop ir.LoopSpec, cond ir.Condition) bool {
	if n, ok := cond.Int(staircase.ColNTrials); (ok && n > 0) || loop.NTrials > 0 {
		return true
	}
	if t == staircase.TypeQuest {
		return false
	}
	n, ok := cond.Int(staircase.ColNReversals)
	return (ok && n > 0) || loop.NReversals > 0
}

// configMessage strips the component prefix from a ConfigurationError so
// the field path is not repeated.
func configMessage(err error) string {
	if ce, ok := err.(*ir.ConfigurationError); ok {
		return ce.Message
	}
	return strings.TrimSpace(err.Error())
}
