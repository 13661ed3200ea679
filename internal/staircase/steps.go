package staircase

import (
	"math"
	"strings"

	"github.com/roach88/trialkit/internal/ir"
)

// StepType selects the space in which steps are applied.
type StepType string

const (
	// StepLin adds or subtracts the step from the intensity.
	StepLin StepType = "lin"

	// StepLog applies the step in log10 units.
	StepLog StepType = "log"

	// StepDB applies the step in decibels (20·log10).
	StepDB StepType = "db"
)

// ParseStepType converts a step type name. "" defaults to StepDB.
func ParseStepType(s string) (StepType, error) {
	switch strings.ToLower(s) {
	case "", string(StepDB):
		return StepDB, nil
	case string(StepLin):
		return StepLin, nil
	case string(StepLog):
		return StepLog, nil
	default:
		return "", ir.Configf("staircase", "", "stepType", "unknown step type %q: must be lin, log or db", s)
	}
}

// apply moves intensity by step in the given direction (+1 up, -1 down).
func (t StepType) apply(intensity, step float64, dir int) float64 {
	delta := step * float64(dir)
	switch t {
	case StepLog:
		return math.Pow(10, math.Log10(intensity)+delta)
	case StepDB:
		return math.Pow(10, (20*math.Log10(intensity)+delta)/20)
	default:
		return intensity + delta
	}
}

// StepPolicy decides the step size given the number of reversals so far.
type StepPolicy interface {
	StepSize(reversals int) float64
}

// ScheduleSteps walks a fixed schedule, moving one entry along after every
// reversal and holding the last entry once the schedule runs out.
type ScheduleSteps []float64

// StepSize implements StepPolicy.
func (s ScheduleSteps) StepSize(reversals int) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[min(reversals, len(s)-1)]
}

// HalvingSteps halves Initial after every Every reversals, never going below
// Min.
type HalvingSteps struct {
	Initial float64
	Every   int
	Min     float64
}

// StepSize implements StepPolicy.
func (h HalvingSteps) StepSize(reversals int) float64 {
	every := max(h.Every, 1)
	step := h.Initial / math.Pow(2, float64(reversals/every))
	return max(step, h.Min)
}

// FixedStep never shrinks.
type FixedStep float64

// StepSize implements StepPolicy.
func (f FixedStep) StepSize(int) float64 { return float64(f) }

// Policy names accepted by ParsePolicy.
const (
	PolicySchedule = "schedule"
	PolicyHalving  = "halving"
	PolicyFixed    = "fixed"
)

// ParsePolicy builds a StepPolicy from its name and parameters.
// "" or "schedule" walks sizes; "halving" starts from sizes[0] and halves
// every `every` reversals down to minStep; "fixed" always uses sizes[0].
func ParsePolicy(name string, sizes []float64, every int, minStep float64) (StepPolicy, error) {
	if len(sizes) == 0 {
		return nil, ir.Configf("staircase", "", "stepSizes", "at least one step size is required")
	}
	for _, s := range sizes {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, ir.Configf("staircase", "", "stepSizes", "step sizes must be positive, got %v", sizes)
		}
	}
	switch strings.ToLower(name) {
	case "", PolicySchedule:
		return ScheduleSteps(append([]float64(nil), sizes...)), nil
	case PolicyHalving:
		if every < 0 {
			return nil, ir.Configf("staircase", "", "halveEvery", "must be >= 1, got %d", every)
		}
		return HalvingSteps{Initial: sizes[0], Every: max(every, 1), Min: minStep}, nil
	case PolicyFixed:
		return FixedStep(sizes[0]), nil
	default:
		return nil, ir.Configf("staircase", "", "stepPolicy", "unknown step policy %q", name)
	}
}
