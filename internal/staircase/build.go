package staircase

import (
	"github.com/roach88/trialkit/internal/ir"
)

// Template holds loop-level defaults that condition columns override.
type Template struct {
	Simple SimpleConfig
	Quest  QuestConfig

	// StepPolicy, HalveEvery, and MinStep shape the simple staircase's
	// StepPolicy when a condition supplies stepSizes.
	StepPolicy string
	HalveEvery int
	MinStep    float64
}

// Condition columns read by New.
const (
	ColLabel      = "label"
	ColStartVal   = "startVal"
	ColStartValSd = "startValSd"
	ColNUp        = "nUp"
	ColNDown      = "nDown"
	ColStepSizes  = "stepSizes"
	ColStepType   = "stepType"
	ColMinVal     = "minVal"
	ColMaxVal     = "maxVal"
	ColNReversals = "nReversals"
	ColNTrials    = "nTrials"
	ColPThreshold = "pThreshold"
	ColBeta       = "beta"
	ColDelta      = "delta"
	ColGamma      = "gamma"
	ColGrain      = "grain"
	ColRange      = "range"
)

// New builds a staircase of type t for one condition row. Columns present on
// the condition override the template; startVal must come from one of them.
func New(t Type, cond ir.Condition, tpl Template) (Staircase, error) {
	name := cond.Text(ColLabel)
	switch t {
	case TypeSimple:
		cfg := tpl.Simple
		if name != "" {
			cfg.Name = name
		}
		if err := overrideSimple(&cfg, cond, tpl); err != nil {
			return nil, renameConfig(err, cfg.Name)
		}
		return NewSimple(cfg)

	case TypeQuest:
		cfg := tpl.Quest
		if name != "" {
			cfg.Name = name
		}
		if err := overrideQuest(&cfg, cond); err != nil {
			return nil, renameConfig(err, cfg.Name)
		}
		return NewQuest(cfg)

	default:
		return nil, ir.Configf("staircase", name, "stairType", "unknown stair type %q", t)
	}
}

func overrideSimple(cfg *SimpleConfig, cond ir.Condition, tpl Template) error {
	if err := readFloat(cond, ColStartVal, &cfg.StartVal); err != nil {
		return err
	}
	for _, c := range []struct {
		col string
		dst *int
	}{
		{ColNUp, &cfg.NUp},
		{ColNDown, &cfg.NDown},
		{ColNReversals, &cfg.NReversals},
		{ColNTrials, &cfg.NTrials},
	} {
		if err := readInt(cond, c.col, c.dst); err != nil {
			return err
		}
	}
	if _, ok := cond.Get(ColStepType); ok {
		st, err := ParseStepType(cond.Text(ColStepType))
		if err != nil {
			return err
		}
		cfg.StepType = st
	}
	if _, ok := cond.Get(ColStepSizes); ok {
		sizes, ok := cond.FloatList(ColStepSizes)
		if !ok {
			return ir.Configf("staircase", "", ColStepSizes, "must be a number or a list of numbers")
		}
		policy, err := ParsePolicy(tpl.StepPolicy, sizes, tpl.HalveEvery, tpl.MinStep)
		if err != nil {
			return err
		}
		cfg.Steps = policy
	}
	if err := readBound(cond, ColMinVal, &cfg.MinVal); err != nil {
		return err
	}
	return readBound(cond, ColMaxVal, &cfg.MaxVal)
}

func overrideQuest(cfg *QuestConfig, cond ir.Condition) error {
	for _, c := range []struct {
		col string
		dst *float64
	}{
		{ColStartVal, &cfg.StartVal},
		{ColStartValSd, &cfg.StartValSd},
		{ColGrain, &cfg.Grain},
		{ColRange, &cfg.Range},
	} {
		if err := readFloat(cond, c.col, c.dst); err != nil {
			return err
		}
	}
	for _, c := range []struct {
		col string
		dst **float64
	}{
		{ColPThreshold, &cfg.PThreshold},
		{ColBeta, &cfg.Beta},
		{ColDelta, &cfg.Delta},
		{ColGamma, &cfg.Gamma},
	} {
		if err := readBound(cond, c.col, c.dst); err != nil {
			return err
		}
	}
	if err := readInt(cond, ColNTrials, &cfg.NTrials); err != nil {
		return err
	}
	if err := readBound(cond, ColMinVal, &cfg.MinVal); err != nil {
		return err
	}
	return readBound(cond, ColMaxVal, &cfg.MaxVal)
}

// readFloat overwrites dst when col is present and not Missing.
func readFloat(cond ir.Condition, col string, dst *float64) error {
	v, ok := cond.Get(col)
	if !ok || ir.IsMissing(v) {
		return nil
	}
	f, ok := ir.AsFloat(v)
	if !ok {
		return ir.Configf("staircase", "", col, "must be numeric, got %s", ir.FormatValue(v))
	}
	*dst = f
	return nil
}

func readInt(cond ir.Condition, col string, dst *int) error {
	v, ok := cond.Get(col)
	if !ok || ir.IsMissing(v) {
		return nil
	}
	n, ok := cond.Int(col)
	if !ok {
		return ir.Configf("staircase", "", col, "must be an integer, got %s", ir.FormatValue(v))
	}
	*dst = n
	return nil
}

// readBound sets *dst when col is present, so an explicit 0 survives.
func readBound(cond ir.Condition, col string, dst **float64) error {
	var f float64
	v, ok := cond.Get(col)
	if !ok || ir.IsMissing(v) {
		return nil
	}
	if err := readFloat(cond, col, &f); err != nil {
		return err
	}
	*dst = &f
	return nil
}
