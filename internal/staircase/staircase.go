package staircase

import (
	"strings"

	"github.com/roach88/trialkit/internal/ir"
)

// Type selects the staircase variant.
type Type string

const (
	TypeSimple Type = "simple"
	TypeQuest  Type = "quest"
)

// ParseType converts a stair type name. "" defaults to TypeSimple.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", string(TypeSimple):
		return TypeSimple, nil
	case string(TypeQuest):
		return TypeQuest, nil
	default:
		return "", ir.Configf("staircase", "", "stairType", "unknown stair type %q: must be simple or quest", s)
	}
}

// Staircase is one adaptive procedure instance.
type Staircase interface {
	// Next returns the intensity to test. It fails with a UsageError when a
	// response is still pending and with ir.ErrExhausted once finished.
	Next() (float64, error)

	// AddResponse records the outcome of the pending trial.
	AddResponse(correct bool) error

	Finished() bool

	// Intensity is the intensity the next call to Next will return.
	Intensity() float64

	TrialCount() int
	History() []Step
	Snapshot() Snapshot
}

// Step is one completed (intensity, response) pair.
type Step struct {
	Intensity float64 `json:"intensity"`
	Correct   bool    `json:"correct"`

	// Reversal is set when this response flipped the direction of change.
	Reversal bool `json:"reversal,omitempty"`
}

// Snapshot is the serializable state of a staircase.
type Snapshot struct {
	Type       Type    `json:"type"`
	Name       string  `json:"name,omitempty"`
	Intensity  float64 `json:"intensity"`
	TrialCount int     `json:"trial_count"`
	Finished   bool    `json:"finished"`
	History    []Step  `json:"history"`

	// Simple only.
	Reversals           int       `json:"reversals,omitempty"`
	ReversalIntensities []float64 `json:"reversal_intensities,omitempty"`
	StepSize            float64   `json:"step_size,omitempty"`

	// Quest only.
	Mean float64 `json:"mean,omitempty"`
	SD   float64 `json:"sd,omitempty"`
}

// protocol tracks the Next/AddResponse alternation shared by both variants.
type protocol struct {
	name     string
	pending  bool
	finished bool
	trials   int
	history  []Step
}

func (p *protocol) begin() error {
	if p.finished {
		return ir.ErrExhausted
	}
	if p.pending {
		return p.usage("Next", "response pending for the previous intensity")
	}
	p.pending = true
	return nil
}

func (p *protocol) respond() error {
	if !p.pending {
		if p.finished {
			return p.usage("AddResponse", "staircase already finished")
		}
		return p.usage("AddResponse", "no pending intensity; call Next first")
	}
	return nil
}

func (p *protocol) usage(op, msg string) error {
	return &ir.UsageError{
		Component: "staircase",
		Name:      p.name,
		Op:        op,
		Trial:     p.trials,
		Stair:     -1,
		Message:   msg,
	}
}

func (p *protocol) historyCopy() []Step {
	out := make([]Step, len(p.history))
	copy(out, p.history)
	return out
}
