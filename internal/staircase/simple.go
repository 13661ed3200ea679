package staircase

import (
	"math"

	"github.com/roach88/trialkit/internal/ir"
)

// SimpleConfig configures a transformed up/down staircase.
type SimpleConfig struct {
	Name     string
	StartVal float64

	// NUp incorrect responses in a row make the task easier (intensity up);
	// NDown correct responses in a row make it harder. Both default to 1.
	NUp   int
	NDown int

	// The staircase stops at whichever supplied bound is reached first.
	// At least one must be positive.
	NReversals int
	NTrials    int

	// StepType defaults to StepDB; Steps defaults to FixedStep(4).
	StepType StepType
	Steps    StepPolicy

	// Optional clamps on the proposed intensity.
	MinVal *float64
	MaxVal *float64
}

// Simple is the up/down staircase.
type Simple struct {
	protocol
	cfg SimpleConfig

	intensity float64
	counter   int // >0 run of correct, <0 run of incorrect
	direction int // +1 up, -1 down, 0 before the first change

	reversalIntensities []float64
}

// NewSimple validates cfg and returns a staircase at StartVal.
func NewSimple(cfg SimpleConfig) (*Simple, error) {
	if cfg.NUp == 0 {
		cfg.NUp = 1
	}
	if cfg.NDown == 0 {
		cfg.NDown = 1
	}
	if cfg.StepType == "" {
		cfg.StepType = StepDB
	}
	if cfg.Steps == nil {
		cfg.Steps = FixedStep(4)
	}

	switch {
	case cfg.NUp < 1:
		return nil, ir.Configf("staircase", cfg.Name, "nUp", "must be >= 1, got %d", cfg.NUp)
	case cfg.NDown < 1:
		return nil, ir.Configf("staircase", cfg.Name, "nDown", "must be >= 1, got %d", cfg.NDown)
	case cfg.NTrials < 0:
		return nil, ir.Configf("staircase", cfg.Name, "nTrials", "must not be negative, got %d", cfg.NTrials)
	case cfg.NReversals < 0:
		return nil, ir.Configf("staircase", cfg.Name, "nReversals", "must not be negative, got %d", cfg.NReversals)
	case cfg.NTrials == 0 && cfg.NReversals == 0:
		return nil, ir.Configf("staircase", cfg.Name, "nTrials", "a stop condition is required: set nTrials or nReversals")
	case math.IsNaN(cfg.StartVal) || math.IsInf(cfg.StartVal, 0):
		return nil, ir.Configf("staircase", cfg.Name, "startVal", "must be finite")
	}
	if _, err := ParseStepType(string(cfg.StepType)); err != nil {
		return nil, renameConfig(err, cfg.Name)
	}
	if cfg.StepType != StepLin && cfg.StartVal <= 0 {
		return nil, ir.Configf("staircase", cfg.Name, "startVal", "must be positive for %s steps, got %v", cfg.StepType, cfg.StartVal)
	}
	if cfg.MinVal != nil && cfg.MaxVal != nil && *cfg.MinVal > *cfg.MaxVal {
		return nil, ir.Configf("staircase", cfg.Name, "minVal", "minVal %v exceeds maxVal %v", *cfg.MinVal, *cfg.MaxVal)
	}

	s := &Simple{
		protocol:  protocol{name: cfg.Name},
		cfg:       cfg,
		intensity: clamp(cfg.StartVal, cfg.MinVal, cfg.MaxVal),
	}
	return s, nil
}

// Next implements Staircase.
func (s *Simple) Next() (float64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	return s.intensity, nil
}

// AddResponse implements Staircase.
func (s *Simple) AddResponse(correct bool) error {
	if err := s.respond(); err != nil {
		return err
	}

	step := Step{Intensity: s.intensity, Correct: correct}
	if correct {
		s.counter = max(s.counter, 0) + 1
	} else {
		s.counter = min(s.counter, 0) - 1
	}

	move := 0
	switch {
	case s.counter >= s.cfg.NDown:
		move = -1
	case s.counter <= -s.cfg.NUp:
		move = +1
	}
	if move != 0 {
		s.counter = 0
		if s.direction != 0 && s.direction != move {
			step.Reversal = true
			s.reversalIntensities = append(s.reversalIntensities, s.intensity)
		}
		s.direction = move
		size := s.cfg.Steps.StepSize(len(s.reversalIntensities))
		next := s.cfg.StepType.apply(s.intensity, size, move)
		s.intensity = clamp(next, s.cfg.MinVal, s.cfg.MaxVal)
	}

	s.history = append(s.history, step)
	s.trials++
	s.pending = false
	s.finished = s.stopReached()
	return nil
}

func (s *Simple) stopReached() bool {
	if s.cfg.NTrials > 0 && s.trials >= s.cfg.NTrials {
		return true
	}
	return s.cfg.NReversals > 0 && len(s.reversalIntensities) >= s.cfg.NReversals
}

// Finished implements Staircase.
func (s *Simple) Finished() bool { return s.finished }

// Intensity implements Staircase.
func (s *Simple) Intensity() float64 { return s.intensity }

// TrialCount implements Staircase.
func (s *Simple) TrialCount() int { return s.trials }

// History implements Staircase.
func (s *Simple) History() []Step { return s.historyCopy() }

// Reversals returns the number of reversals recorded so far.
func (s *Simple) Reversals() int { return len(s.reversalIntensities) }

// ReversalIntensities returns the intensities at which reversals occurred.
func (s *Simple) ReversalIntensities() []float64 {
	return append([]float64(nil), s.reversalIntensities...)
}

// StepSize returns the step size the next move will use.
func (s *Simple) StepSize() float64 {
	return s.cfg.Steps.StepSize(len(s.reversalIntensities))
}

// Snapshot implements Staircase.
func (s *Simple) Snapshot() Snapshot {
	return Snapshot{
		Type:                TypeSimple,
		Name:                s.name,
		Intensity:           s.intensity,
		TrialCount:          s.trials,
		Finished:            s.finished,
		History:             s.historyCopy(),
		Reversals:           len(s.reversalIntensities),
		ReversalIntensities: s.ReversalIntensities(),
		StepSize:            s.StepSize(),
	}
}

func clamp(v float64, lo, hi *float64) float64 {
	if lo != nil && v < *lo {
		v = *lo
	}
	if hi != nil && v > *hi {
		v = *hi
	}
	return v
}

func renameConfig(err error, name string) error {
	if ce, ok := err.(*ir.ConfigurationError); ok {
		ce.Name = name
	}
	return err
}
