// Package compiler turns CUE experiment definitions into ir.ExperimentSpec.
//
// An experiment is a CUE struct whose label is the experiment name:
//
//	experiment: contrast: {
//		observer: {seed: 100}
//		loop: practice: {
//			kind:   "trials"
//			method: "random"
//			n_reps: 2
//			conditions: [{ori: 0, sf: 2}, {ori: 90, sf: 4}]
//		}
//		loop: stairs: {
//			kind:       "staircase"
//			step_type:  "lin"
//			step_sizes: [0.1, 0.05]
//			n_trials:   20
//			conditions: [{label: "low", startVal: 0.3}, {label: "high", startVal: 0.8}]
//		}
//	}
//
// Loops run in declaration order. Condition fields keep the order they are
// written in, which is the column order of every export.
package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/trialkit/internal/ir"
)

// CompileExperiment parses a CUE value into an ExperimentSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the experiment struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`experiment: contrast: { ... }`)
//	spec, err := CompileExperiment(v.LookupPath(cue.ParsePath("experiment.contrast")))
func CompileExperiment(v cue.Value) (*ir.ExperimentSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ExperimentSpec{}

	// Experiment name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		switch iter.Label() {
		case "observer":
			obs, err := parseObserver(iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Observer = obs
		case "loop":
			loops, err := parseLoops(iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Loops = loops
		default:
			return nil, &CompileError{
				Field:   iter.Label(),
				Message: "unknown experiment field: must be observer or loop",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	if len(spec.Loops) == 0 {
		return nil, &CompileError{
			Field:   "loop",
			Message: "at least one loop is required",
			Pos:     v.Pos(),
		}
	}

	return spec, nil
}

// CompileAll compiles every experiment under the top-level "experiment"
// struct, in declaration order.
func CompileAll(v cue.Value) ([]ir.ExperimentSpec, error) {
	expVal := v.LookupPath(cue.ParsePath("experiment"))
	if !expVal.Exists() {
		return nil, &CompileError{
			Field:   "experiment",
			Message: "no experiment definitions found",
			Pos:     v.Pos(),
		}
	}

	iter, err := expVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []ir.ExperimentSpec
	for iter.Next() {
		spec, err := CompileExperiment(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// CompileFile compiles every experiment in a single CUE file.
func CompileFile(path string) ([]ir.ExperimentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileAll(v)
}

func parseObserver(v cue.Value) (ir.ObserverSpec, error) {
	var obs ir.ObserverSpec

	iter, err := v.Fields()
	if err != nil {
		return obs, formatCUEError(err)
	}
	for iter.Next() {
		path := "observer." + iter.Label()
		switch iter.Label() {
		case "seed":
			n, err := iter.Value().Int64()
			if err != nil {
				return obs, fieldError(path, iter.Value(), err)
			}
			obs.Seed = n
		case "field":
			s, err := iter.Value().String()
			if err != nil {
				return obs, fieldError(path, iter.Value(), err)
			}
			obs.Field = s
		default:
			return obs, &CompileError{
				Field:   path,
				Message: "unknown observer field: must be seed or field",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return obs, nil
}

// parseLoops extracts loop definitions, keyed by name, in declaration order.
func parseLoops(v cue.Value) ([]ir.LoopSpec, error) {
	var loops []ir.LoopSpec

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		loop, err := parseLoop(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		loops = append(loops, loop)
	}
	return loops, nil
}

// loopFields maps each accepted loop field to its destination in LoopSpec.
// The destination's type selects the decoder in decodeInto.
var loopFields = map[string]func(*ir.LoopSpec) any{
	"kind":        func(l *ir.LoopSpec) any { return (*string)(&l.Kind) },
	"method":      func(l *ir.LoopSpec) any { return &l.Method },
	"seed":        func(l *ir.LoopSpec) any { return &l.Seed },
	"data_types":  func(l *ir.LoopSpec) any { return &l.DataTypes },
	"n_reps":      func(l *ir.LoopSpec) any { return &l.NReps },
	"stair_type":  func(l *ir.LoopSpec) any { return &l.StairType },
	"n_trials":    func(l *ir.LoopSpec) any { return &l.NTrials },
	"n_reversals": func(l *ir.LoopSpec) any { return &l.NReversals },
	"n_up":        func(l *ir.LoopSpec) any { return &l.NUp },
	"n_down":      func(l *ir.LoopSpec) any { return &l.NDown },
	"step_type":   func(l *ir.LoopSpec) any { return &l.StepType },
	"step_sizes":  func(l *ir.LoopSpec) any { return &l.StepSizes },
	"step_policy": func(l *ir.LoopSpec) any { return &l.StepPolicy },
	"halve_every": func(l *ir.LoopSpec) any { return &l.HalveEvery },
	"min_step":    func(l *ir.LoopSpec) any { return &l.MinStep },
	"p_threshold": func(l *ir.LoopSpec) any { return &l.PThreshold },
	"beta":        func(l *ir.LoopSpec) any { return &l.Beta },
	"delta":       func(l *ir.LoopSpec) any { return &l.Delta },
	"gamma":       func(l *ir.LoopSpec) any { return &l.Gamma },
	"grain":       func(l *ir.LoopSpec) any { return &l.Grain },
	"range":       func(l *ir.LoopSpec) any { return &l.Range },
	"estimate":    func(l *ir.LoopSpec) any { return &l.Estimate },
}

func parseLoop(name string, v cue.Value) (ir.LoopSpec, error) {
	loop := ir.LoopSpec{Name: name}

	iter, err := v.Fields()
	if err != nil {
		return loop, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Label()
		path := fmt.Sprintf("loop.%s.%s", name, label)

		if label == "conditions" {
			conds, err := parseConditions(path, iter.Value())
			if err != nil {
				return loop, err
			}
			loop.Conditions = conds
			continue
		}

		dst, ok := loopFields[label]
		if !ok {
			return loop, &CompileError{
				Field:   path,
				Message: "unknown loop field",
				Pos:     iter.Value().Pos(),
			}
		}
		if err := decodeInto(path, iter.Value(), dst(&loop)); err != nil {
			return loop, err
		}
	}

	if loop.Kind == "" {
		loop.Kind = ir.LoopTrials
	}
	return loop, nil
}

func decodeInto(path string, v cue.Value, dst any) error {
	switch d := dst.(type) {
	case *string:
		s, err := v.String()
		if err != nil {
			return fieldError(path, v, err)
		}
		*d = s
	case *int:
		n, err := v.Int64()
		if err != nil {
			return fieldError(path, v, err)
		}
		*d = int(n)
	case **int:
		n, err := v.Int64()
		if err != nil {
			return fieldError(path, v, err)
		}
		*d = ir.Ptr(int(n))
	case **int64:
		n, err := v.Int64()
		if err != nil {
			return fieldError(path, v, err)
		}
		*d = ir.Seed(n)
	case *float64:
		f, err := v.Float64()
		if err != nil {
			return fieldError(path, v, err)
		}
		*d = f
	case **float64:
		f, err := v.Float64()
		if err != nil {
			return fieldError(path, v, err)
		}
		*d = &f
	case *[]string:
		iter, err := v.List()
		if err != nil {
			return fieldError(path, v, err)
		}
		for i := 0; iter.Next(); i++ {
			s, err := iter.Value().String()
			if err != nil {
				return fieldError(fmt.Sprintf("%s[%d]", path, i), iter.Value(), err)
			}
			*d = append(*d, s)
		}
	case *[]float64:
		// A single number is shorthand for a one-element schedule.
		if f, err := v.Float64(); err == nil {
			*d = []float64{f}
			return nil
		}
		iter, err := v.List()
		if err != nil {
			return fieldError(path, v, err)
		}
		for i := 0; iter.Next(); i++ {
			f, err := iter.Value().Float64()
			if err != nil {
				return fieldError(fmt.Sprintf("%s[%d]", path, i), iter.Value(), err)
			}
			*d = append(*d, f)
		}
	default:
		return fmt.Errorf("%s: unsupported destination %T", path, dst)
	}
	return nil
}

// parseConditions reads a list of flat structs. Each struct's field order
// becomes the condition's field order.
func parseConditions(path string, v cue.Value) ([]ir.Condition, error) {
	iter, err := v.List()
	if err != nil {
		return nil, fieldError(path, v, err)
	}

	var conds []ir.Condition
	for i := 0; iter.Next(); i++ {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		elem := iter.Value()
		if elem.IncompleteKind() != cue.StructKind {
			return nil, &CompileError{
				Field:   elemPath,
				Message: fmt.Sprintf("condition must be a struct, got %v", elem.IncompleteKind()),
				Pos:     elem.Pos(),
			}
		}

		fieldIter, err := elem.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var fields []ir.Field
		for fieldIter.Next() {
			val, err := toValue(elemPath+"."+fieldIter.Label(), fieldIter.Value())
			if err != nil {
				return nil, err
			}
			fields = append(fields, ir.Field{Name: fieldIter.Label(), Value: val})
		}
		conds = append(conds, ir.NewCondition(fields...))
	}
	return conds, nil
}

// toValue converts a concrete CUE scalar or list to an ir.Value.
// Structs are rejected: conditions are flat records.
func toValue(path string, v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Missing{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, fieldError(path, v, err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, fieldError(path, v, err)
		}
		return ir.Int(n), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, fieldError(path, v, err)
		}
		val, err := ir.ValueOf(f)
		if err != nil {
			return nil, fieldError(path, v, err)
		}
		return val, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, fieldError(path, v, err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, fieldError(path, v, err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(fmt.Sprintf("%s[%d]", path, i), iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		return nil, &CompileError{
			Field:   path,
			Message: "condition values must be scalars or lists, not structs",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// fieldError attributes a CUE decoding error to a field path.
func fieldError(path string, v cue.Value, err error) error {
	msg := err.Error()
	if errs := errors.Errors(err); len(errs) > 0 {
		msg = errs[0].Error()
	}
	return &CompileError{Field: path, Message: msg, Pos: v.Pos()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
