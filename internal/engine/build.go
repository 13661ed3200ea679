package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/roach88/trialkit/internal/experiment"
	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/multistair"
	"github.com/roach88/trialkit/internal/schedule"
	"github.com/roach88/trialkit/internal/staircase"
	"github.com/roach88/trialkit/internal/trials"
)

// SeedFunc draws a seed for a loop whose spec leaves it unset.
type SeedFunc func() int64

// randomSeed draws from the runtime-seeded global generator. The drawn value
// is recorded in the stored spec, so the run stays replayable.
func randomSeed() int64 {
	return rand.Int64N(1 << 31)
}

// ResolveSeeds returns a copy of spec with every unset loop seed drawn from
// draw. The input spec is not modified.
func ResolveSeeds(spec ir.ExperimentSpec, draw SeedFunc) ir.ExperimentSpec {
	out := spec
	out.Loops = make([]ir.LoopSpec, len(spec.Loops))
	copy(out.Loops, spec.Loops)
	for i := range out.Loops {
		if out.Loops[i].Seed == nil {
			out.Loops[i].Seed = ir.Seed(draw())
		}
	}
	return out
}

// BuildLoop constructs the loop a LoopSpec describes: a *trials.Handler for
// LoopTrials, a *multistair.Coordinator for LoopStaircase. An unset seed
// builds with seed 0; Run resolves seeds before building.
func BuildLoop(spec ir.LoopSpec) (experiment.Summarizer, error) {
	switch spec.Kind {
	case ir.LoopTrials, "":
		return buildTrials(spec)
	case ir.LoopStaircase:
		return buildStaircase(spec)
	default:
		return nil, ir.Configf("engine", spec.Name, "kind", "unknown loop kind %q: must be %s or %s",
			spec.Kind, ir.LoopTrials, ir.LoopStaircase)
	}
}

func buildTrials(spec ir.LoopSpec) (*trials.Handler, error) {
	conditions, err := conditionSet(spec, true)
	if err != nil {
		return nil, err
	}
	method, err := schedule.ParseMethod(spec.Method)
	if err != nil {
		return nil, renameConfig(err, "trials", spec.Name)
	}
	return trials.New(trials.Config{
		Name:       spec.Name,
		Conditions: conditions,
		NReps:      spec.RepsValue(),
		Method:     method,
		Seed:       spec.SeedValue(),
		DataTypes:  spec.DataTypes,
	})
}

func buildStaircase(spec ir.LoopSpec) (*multistair.Coordinator, error) {
	conditions, err := conditionSet(spec, false)
	if err != nil {
		return nil, err
	}
	tpl, err := template(spec)
	if err != nil {
		return nil, renameConfig(err, "multistair", spec.Name)
	}
	return multistair.New(multistair.Config{
		Name:       spec.Name,
		StairType:  staircase.Type(spec.StairType),
		Method:     multistair.Method(spec.Method),
		Conditions: conditions,
		NTrials:    spec.NTrials,
		Seed:       spec.SeedValue(),
		Template:   tpl,
	})
}

// conditionSet builds the loop's ConditionSet. Trial loops without
// conditions run one blank trial type.
func conditionSet(spec ir.LoopSpec, allowBlank bool) (*ir.ConditionSet, error) {
	if len(spec.Conditions) == 0 && allowBlank {
		return ir.Blank(), nil
	}
	cs, err := ir.NewConditionSet(spec.Conditions)
	if err != nil {
		return nil, renameConfig(err, string(spec.Kind), spec.Name)
	}
	return cs, nil
}

// template maps loop-level staircase parameters onto staircase defaults.
// Condition columns still override them per staircase.
func template(spec ir.LoopSpec) (staircase.Template, error) {
	stepType, err := staircase.ParseStepType(spec.StepType)
	if err != nil {
		return staircase.Template{}, err
	}
	estimate, err := staircase.ParseEstimate(spec.Estimate)
	if err != nil {
		return staircase.Template{}, err
	}

	tpl := staircase.Template{
		Simple: staircase.SimpleConfig{
			NUp:        spec.NUp,
			NDown:      spec.NDown,
			NReversals: spec.NReversals,
			NTrials:    spec.NTrials,
			StepType:   stepType,
		},
		Quest: staircase.QuestConfig{
			PThreshold: spec.PThreshold,
			Beta:       spec.Beta,
			Delta:      spec.Delta,
			Gamma:      spec.Gamma,
			Grain:      spec.Grain,
			Range:      spec.Range,
			NTrials:    spec.NTrials,
			Estimate:   estimate,
		},
		StepPolicy: spec.StepPolicy,
		HalveEvery: spec.HalveEvery,
		MinStep:    spec.MinStep,
	}
	if len(spec.StepSizes) > 0 {
		policy, err := staircase.ParsePolicy(spec.StepPolicy, spec.StepSizes, spec.HalveEvery, spec.MinStep)
		if err != nil {
			return staircase.Template{}, err
		}
		tpl.Simple.Steps = policy
	}
	return tpl, nil
}

// renameConfig attributes a ConfigurationError to the loop being built.
func renameConfig(err error, component, name string) error {
	if ce, ok := err.(*ir.ConfigurationError); ok {
		ce.Component = component
		ce.Name = name
		return ce
	}
	return fmt.Errorf("loop %q: %w", name, err)
}
