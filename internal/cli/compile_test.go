package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/ir"
)

// contrastSpec holds one experiment: a random trial loop over two
// conditions and two interleaved simple staircases.
const contrastSpec = `
package specs

experiment: contrast: {
	observer: {seed: 100, field: "startVal"}

	loop: practice: {
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
		kind:       "staircase"
		stair_type: "simple"
		method:     "sequential"
		seed:       7
		step_type:  "lin"
		step_sizes: [0.1, 0.05]
		n_trials:   4
		conditions: [
			{label: "low", startVal: 0.3},
			{label: "high", startVal: 0.8},
		]
	}
}
`

const blocksSpec = `
package specs

experiment: blocks: {
	loop: main: {
		method: "sequential"
		n_reps: 2
		conditions: [{sf: 1}, {sf: 2}, {sf: 4}]
	}
}
`

// writeSpec writes src to dir/name and returns the file path.
func writeSpec(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestCompileValidSpec(t *testing.T) {
	specPath := writeSpec(t, t.TempDir(), "contrast.cue", contrastSpec)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled 1 experiment(s), 2 loop(s), 4 condition(s)")
	assert.Contains(t, output, "contrast (spec ")
	assert.Contains(t, output, "practice: trials, 2 condition(s) × 2 rep(s), method=random, seed=100")
	assert.Contains(t, output, "stairs: staircase, 2 simple staircase(s), interleave=sequential, seed=7")
}

func TestCompileValidSpecJSON(t *testing.T) {
	specPath := writeSpec(t, t.TempDir(), "contrast.cue", contrastSpec)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Experiments, 1)

	exp := resp.Data.Experiments[0]
	assert.Equal(t, "contrast", exp.Spec.Name)
	require.Len(t, exp.Spec.Loops, 2)
	assert.Equal(t, ir.LoopStaircase, exp.Spec.Loops[1].Kind)

	want, err := ir.SpecHash(exp.Spec)
	require.NoError(t, err)
	assert.Equal(t, want, exp.SpecHash)
}

func TestCompileDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "contrast.cue", contrastSpec)
	writeSpec(t, dir, "blocks.cue", blocksSpec)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Compiled 2 experiment(s), 3 loop(s), 7 condition(s)")
	assert.Contains(t, buf.String(), "main: trials, 3 condition(s) × 2 rep(s), method=sequential, seed=unset")
}

func TestCompileOutputToFile(t *testing.T) {
	tmpDir := t.TempDir()
	specPath := writeSpec(t, tmpDir, "contrast.cue", contrastSpec)
	outputFile := filepath.Join(tmpDir, "compiled.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specPath, "--output", outputFile})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Wrote compiled experiments to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Experiments, 1)
	assert.Len(t, result.Experiments[0].SpecHash, 64)

	practice := result.Experiments[0].Spec.Loops[0]
	assert.Equal(t, []string{"resp", "rt"}, practice.DataTypes)
	require.Len(t, practice.Conditions, 2)
	assert.Equal(t, []string{"ori", "sf", "label"}, practice.Conditions[0].Names())
}

func TestCompileNonExistentPath(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005") // ErrCodeNotFound
	assert.Contains(t, buf.String(), "not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, buf.String(), "no CUE files found")
}

func TestCompileNotACUEFile(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "contrast.yaml", "name: contrast\n")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, buf.String(), "not a CUE file")
}

func TestCompileNoExperiments(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "empty.cue", "package specs\n\nname: \"nothing\"\n")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "E008")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileUnknownField(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "bad.cue", `
package specs

experiment: bad: {
	trials: {}
	loop: main: {conditions: [{sf: 1}]}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "✗ Compilation failed")
	assert.Contains(t, buf.String(), "E201")
	assert.Contains(t, err.Error(), "compilation failed with 1 error(s)")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileErrorsJSON(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "bad.cue", `
package specs

experiment: one: {
	trials: {}
	loop: main: {conditions: [{sf: 1}]}
}

experiment: two: {
	blocks: {}
	loop: main: {conditions: [{sf: 1}]}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Error  *CLIError  `json:"error"`
		Data   []CLIError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownField, resp.Error.Code)
	assert.Len(t, resp.Data, 2, "collect-all mode reports every experiment")
}

func TestCalculateStats(t *testing.T) {
	result := &CompilationResult{Experiments: []CompiledExperiment{
		{Spec: ir.ExperimentSpec{Name: "a", Loops: []ir.LoopSpec{
			{Name: "l1", Conditions: []ir.Condition{ir.NewCondition(), ir.NewCondition()}},
			{Name: "l2"},
		}}},
		{Spec: ir.ExperimentSpec{Name: "b", Loops: []ir.LoopSpec{
			{Name: "l1", Conditions: []ir.Condition{ir.NewCondition()}},
		}}},
	}}

	stats := calculateStats(result)
	assert.Equal(t, CompilationStats{ExperimentCount: 2, LoopCount: 3, ConditionCount: 3}, stats)
}

func TestDescribeLoopDefaults(t *testing.T) {
	assert.Equal(t, "trials, 1 condition(s) × 1 rep(s), method=random, seed=unset",
		describeLoop(ir.LoopSpec{Name: "blank"}))
	assert.Equal(t, "staircase, 0 simple staircase(s), interleave=random, seed=3",
		describeLoop(ir.LoopSpec{Kind: ir.LoopStaircase, Seed: ir.Seed(3)}))
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"loop", "E101"},
		{"loop.main.kind", "E103"},
		{"loop.main.method", "E104"},
		{"loop.main.conditions", "E105"},
		{"loop.main.conditions[2]", ErrCodeFieldValue},
		{"loop.stairs.step_type", "E108"},
		{"observer.seed", ErrCodeFieldValue},
		{"loop.main.n_reps", ErrCodeFieldValue},
		{"experiment", ErrCodeNoExperiments},
		{"cue", ErrCodeBuildFailed},
		{"", ErrCodeGeneric},
		{"trials", ErrCodeUnknownField},
		{"loop.main.nreps", ErrCodeUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}

func TestSelectExperiment(t *testing.T) {
	specs := []ir.ExperimentSpec{{Name: "blocks"}, {Name: "contrast"}}

	got, err := SelectExperiment(specs, "contrast")
	require.NoError(t, err)
	assert.Equal(t, "contrast", got.Name)

	_, err = SelectExperiment(specs, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choose one with --experiment")

	_, err = SelectExperiment(specs, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `experiment "missing" not found`)

	got, err = SelectExperiment(specs[:1], "")
	require.NoError(t, err)
	assert.Equal(t, "blocks", got.Name)
}
