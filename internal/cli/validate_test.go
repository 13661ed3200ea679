package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/compiler"
	"github.com/roach88/trialkit/internal/ir"
)

func TestValidateValidSpec(t *testing.T) {
	specPath := writeSpec(t, t.TempDir(), "contrast.cue", contrastSpec)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specPath})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ All experiments valid (1)")
}

func TestValidateValidSpecJSON(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "contrast.cue", contrastSpec)
	writeSpec(t, dir, "blocks.cue", blocksSpec)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.ElementsMatch(t, []string{"contrast", "blocks"}, resp.Data.Experiments)
}

func TestValidateInvalidMethod(t *testing.T) {
	specPath := writeSpec(t, t.TempDir(), "bad.cue", `
package specs

experiment: bad: {
	loop: main: {
		method: "shuffled"
		conditions: [{sf: 1}, {sf: 2}]
	}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), compiler.ErrInvalidMethod)
	assert.Contains(t, buf.String(), "loop.main.method")
}

func TestValidateStaircaseProblemsJSON(t *testing.T) {
	specPath := writeSpec(t, t.TempDir(), "bad.cue", `
package specs

experiment: bad: {
	loop: stairs: {
		kind:     "staircase"
		n_trials: 5
		conditions: [{label: "low"}]
	}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, compiler.ErrMissingStartVal)
}

func TestValidateReportsCompileErrors(t *testing.T) {
	specPath := writeSpec(t, t.TempDir(), "bad.cue", `
package specs

experiment: bad: {
	blocks: {}
	loop: main: {conditions: [{sf: 1}]}
}
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeUnknownField)
}

func TestValidateNonExistentPath(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/spec.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E005]")
}

func TestValidateExperimentCleanSpec(t *testing.T) {
	spec := &ir.ExperimentSpec{
		Name: "blocks",
		Loops: []ir.LoopSpec{{
			Name:       "main",
			Kind:       ir.LoopTrials,
			Method:     "fullRandom",
			NReps:      ir.Ptr(3),
			Conditions: []ir.Condition{ir.NewCondition(ir.F("sf", 1)), ir.NewCondition(ir.F("sf", 2))},
		}},
	}
	assert.Empty(t, validateExperiment(spec))
}

func TestValidateExperimentStopsAtRuleErrors(t *testing.T) {
	spec := &ir.ExperimentSpec{
		Name:  "empty",
		Loops: nil,
	}
	errs := validateExperiment(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, compiler.ErrNoLoops, errs[0].Code)
}
