package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/ir"
)

func compileSource(t *testing.T, src, path string) (*ir.ExperimentSpec, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileExperiment(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileExperimentBasic(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: contrast: {
			observer: {seed: 100, field: "startVal"}

			loop: practice: {
				kind:       "trials"
				method:     "random"
				n_reps:     2
				seed:       100
				data_types: ["resp", "rt"]
				conditions: [
					{ori: 0, sf: 2.5, label: "a"},
					{ori: 90, sf: 4.0, label: "b"},
				]
			}

			loop: stairs: {
				kind:        "staircase"
				stair_type:  "simple"
				method:      "sequential"
				step_type:   "lin"
				step_sizes:  [0.1, 0.05]
				n_trials:    20
				conditions: [
					{label: "low", startVal: 0.3},
					{label: "high", startVal: 0.8},
				]
			}
		}
	`, "experiment.contrast")
	require.NoError(t, err)

	assert.Equal(t, "contrast", spec.Name)
	assert.Equal(t, ir.ObserverSpec{Seed: 100, Field: "startVal"}, spec.Observer)
	require.Len(t, spec.Loops, 2)

	practice := spec.Loops[0]
	assert.Equal(t, "practice", practice.Name)
	assert.Equal(t, ir.LoopTrials, practice.Kind)
	assert.Equal(t, "random", practice.Method)
	assert.Equal(t, ir.Ptr(2), practice.NReps)
	require.NotNil(t, practice.Seed)
	assert.Equal(t, int64(100), *practice.Seed)
	assert.Equal(t, []string{"resp", "rt"}, practice.DataTypes)
	require.Len(t, practice.Conditions, 2)

	stairs := spec.Loops[1]
	assert.Equal(t, "stairs", stairs.Name)
	assert.Equal(t, ir.LoopStaircase, stairs.Kind)
	assert.Equal(t, "sequential", stairs.Method)
	assert.Equal(t, "lin", stairs.StepType)
	assert.Equal(t, []float64{0.1, 0.05}, stairs.StepSizes)
	assert.Equal(t, 20, stairs.NTrials)
	assert.Nil(t, stairs.Seed, "unset seed stays unresolved")
}

func TestCompileExperimentPreservesFieldOrder(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: order: loop: main: conditions: [
			{zeta: 1, alpha: 2, mid: 3},
			{zeta: 4, alpha: 5, mid: 6},
		]
	`, "experiment.order")
	require.NoError(t, err)

	for _, cond := range spec.Loops[0].Conditions {
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, cond.Names())
	}
}

func TestCompileExperimentLoopOrder(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: order: {
			loop: zz: conditions: [{a: 1}]
			loop: aa: conditions: [{a: 1}]
			loop: mm: conditions: [{a: 1}]
		}
	`, "experiment.order")
	require.NoError(t, err)

	var names []string
	for _, l := range spec.Loops {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"zz", "aa", "mm"}, names)
}

func TestCompileExperimentValueKinds(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: kinds: loop: main: conditions: [{
			i:    3
			f:    0.5
			whole: 1.0
			s:    "left"
			b:    true
			n:    null
			l:    [0.1, 2, "x"]
		}]
	`, "experiment.kinds")
	require.NoError(t, err)

	cond := spec.Loops[0].Conditions[0]
	get := func(name string) ir.Value {
		v, ok := cond.Get(name)
		require.True(t, ok, name)
		return v
	}
	assert.Equal(t, ir.Int(3), get("i"))
	assert.Equal(t, ir.Float(0.5), get("f"))
	assert.Equal(t, ir.Float(1), get("whole"))
	assert.Equal(t, ir.String("left"), get("s"))
	assert.Equal(t, ir.Bool(true), get("b"))
	assert.True(t, ir.IsMissing(get("n")))
	assert.Equal(t, ir.List{ir.Float(0.1), ir.Int(2), ir.String("x")}, get("l"))
}

func TestCompileExperimentDefaultsKindToTrials(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: plain: loop: main: conditions: [{a: 1}]
	`, "experiment.plain")
	require.NoError(t, err)
	assert.Equal(t, ir.LoopTrials, spec.Loops[0].Kind)
}

func TestCompileExperimentStepSizesShorthand(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: s: loop: stairs: {
			kind:       "staircase"
			step_sizes: 2
			min_step:   1
			n_trials:   10
			conditions: [{startVal: 10}]
		}
	`, "experiment.s")
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, spec.Loops[0].StepSizes)
	assert.Equal(t, 1.0, spec.Loops[0].MinStep)
}

func TestCompileExperimentQuestParameters(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: q: loop: quest: {
			kind:        "staircase"
			stair_type:  "quest"
			n_trials:    30
			p_threshold: 0.82
			beta:        3.5
			delta:       0.01
			gamma:       0.5
			grain:       0.01
			range:       5
			estimate:    "mode"
			conditions: [{startVal: 0.5, startValSd: 0.2}]
		}
	`, "experiment.q")
	require.NoError(t, err)

	l := spec.Loops[0]
	assert.Equal(t, "quest", l.StairType)
	assert.Equal(t, ir.Ptr(0.82), l.PThreshold)
	assert.Equal(t, ir.Ptr(3.5), l.Beta)
	assert.Equal(t, ir.Ptr(0.01), l.Delta)
	assert.Equal(t, ir.Ptr(0.5), l.Gamma)
	assert.Equal(t, 0.01, l.Grain)
	assert.Equal(t, 5.0, l.Range)
	assert.Equal(t, "mode", l.Estimate)
}

func TestCompileExperimentExplicitZeros(t *testing.T) {
	spec, err := compileSource(t, `
		experiment: yn: {
			loop: quest: {
				kind:       "staircase"
				stair_type: "quest"
				n_trials:   10
				gamma:      0
				delta:      0
				conditions: [{startVal: 0.5}]
			}
			loop: practice: {
				n_reps: 0
				conditions: [{sf: 1}]
			}
		}
	`, "experiment.yn")
	require.NoError(t, err)

	quest := spec.Loops[0]
	assert.Equal(t, ir.Ptr(0.0), quest.Gamma)
	assert.Equal(t, ir.Ptr(0.0), quest.Delta)
	assert.Nil(t, quest.PThreshold, "omitted parameters stay unset")

	practice := spec.Loops[1]
	assert.Equal(t, ir.Ptr(0), practice.NReps)
	assert.Equal(t, []string{ErrNegativeCount}, codes(Validate(spec)))
}

func TestCompileExperimentErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "no loops",
			src:  `experiment: e: observer: seed: 1`,
			want: []string{"loop", "at least one loop is required"},
		},
		{
			name: "unknown experiment field",
			src:  `experiment: e: {trials: 3, loop: a: conditions: [{x: 1}]}`,
			want: []string{"trials", "unknown experiment field"},
		},
		{
			name: "unknown loop field",
			src:  `experiment: e: loop: a: {nreps: 3, conditions: [{x: 1}]}`,
			want: []string{"loop.a.nreps", "unknown loop field"},
		},
		{
			name: "unknown observer field",
			src:  `experiment: e: {observer: {rate: 2}, loop: a: conditions: [{x: 1}]}`,
			want: []string{"observer.rate", "unknown observer field"},
		},
		{
			name: "string where int expected",
			src:  `experiment: e: loop: a: {n_reps: "two", conditions: [{x: 1}]}`,
			want: []string{"loop.a.n_reps"},
		},
		{
			name: "float seed",
			src:  `experiment: e: loop: a: {seed: 1.5, conditions: [{x: 1}]}`,
			want: []string{"loop.a.seed"},
		},
		{
			name: "nested struct in condition",
			src:  `experiment: e: loop: a: conditions: [{x: {y: 1}}]`,
			want: []string{"loop.a.conditions[0].x", "not structs"},
		},
		{
			name: "condition is not a struct",
			src:  `experiment: e: loop: a: conditions: [1, 2]`,
			want: []string{"loop.a.conditions[0]", "must be a struct"},
		},
		{
			name: "incomplete value",
			src:  `experiment: e: loop: a: conditions: [{x: int}]`,
			want: []string{"loop.a.conditions[0].x", "concrete"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileSource(t, tt.src, "experiment.e")
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "expected *CompileError, got %T", err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestCompileAll(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		experiment: first: loop: a: conditions: [{x: 1}]
		experiment: second: loop: b: conditions: [{x: 2}]
	`)
	require.NoError(t, v.Err())

	specs, err := CompileAll(v)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "first", specs[0].Name)
	assert.Equal(t, "second", specs[1].Name)
}

func TestCompileAllMissingExperiment(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`stimuli: x: 1`)
	require.NoError(t, v.Err())

	_, err := CompileAll(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no experiment definitions found")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "loop.a.kind", Message: "bad kind"}
	assert.Equal(t, "loop.a.kind: bad kind", err.Error())
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
experiment: blank: loop: once: {
	n_reps: 1
	seed:   3
}
`), 0o644))

	specs, err := CompileFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "blank", specs[0].Name)
	assert.Empty(t, specs[0].Loops[0].Conditions)
}

func TestCompileFileSyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("experiment: {\n"), 0o644))

	_, err := CompileFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.cue")
}

func TestCompileFileMissing(t *testing.T) {
	_, err := CompileFile(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
