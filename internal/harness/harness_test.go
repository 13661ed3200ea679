package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/testutil"
)

func conds(field string, values ...any) []ConditionDef {
	out := make([]ConditionDef, len(values))
	for i, v := range values {
		out[i] = ConditionDef{ir.NewCondition(ir.F(field, v))}
	}
	return out
}

func blockRandomScenario() *Scenario {
	return &Scenario{
		Name:        "five_by_three",
		Description: "5 conditions, 3 reps, random, seed 100",
		Experiment: &ExperimentDef{
			Observer: ObserverDef{Seed: 100},
			Loops: []LoopDef{{
				Name:       "main",
				Method:     "random",
				Seed:       ir.Seed(100),
				NReps:      ir.Ptr(3),
				Conditions: conds("ori", 0, 45, 90, 135, 180),
			}},
		},
		Assertions: []Assertion{
			{Type: AssertTrialCount, Loop: "main", Count: 15},
			{Type: AssertCoverage, Loop: "main", Count: 3},
			{Type: AssertFinished, Loop: "main"},
		},
	}
}

func stairScenario() *Scenario {
	return &Scenario{
		Name:        "stairs",
		Description: "Two interleaved simple staircases",
		Experiment: &ExperimentDef{
			Observer: ObserverDef{Seed: 4},
			Loops: []LoopDef{{
				Name:      "stairs",
				Kind:      string(ir.LoopStaircase),
				StairType: "simple",
				Method:    "random",
				Seed:      ir.Seed(7),
				StepType:  "lin",
				StepSizes: []float64{0.1},
				NTrials:   6,
				Conditions: []ConditionDef{
					{ir.NewCondition(ir.F("label", "low"), ir.F("startVal", 0.3))},
					{ir.NewCondition(ir.F("label", "high"), ir.F("startVal", 0.8))},
				},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertTrialCount, Loop: "stairs", Count: 12},
			{Type: AssertCoverage, Loop: "stairs", Count: 6},
			{Type: AssertFinished, Loop: "stairs"},
		},
	}
}

func TestRun_BlockRandom(t *testing.T) {
	testutil.DiscardLogs(t)

	result, err := Run(blockRandomScenario())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "test-run-default", result.RunID)
	assert.Equal(t, 15, result.TotalTrials())
	assert.Equal(t, 5, result.Conditions["main"])

	// Every repetition block is a permutation of the condition indices.
	seq := result.Sequences["main"]
	require.Len(t, seq, 15)
	for rep := 0; rep < 3; rep++ {
		assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, seq[rep*5:(rep+1)*5], "block %d", rep)
	}
}

func TestRun_Deterministic(t *testing.T) {
	testutil.DiscardLogs(t)

	first, err := Run(blockRandomScenario())
	require.NoError(t, err)
	second, err := Run(blockRandomScenario())
	require.NoError(t, err)

	assert.Equal(t, first.Sequences, second.Sequences)
	assert.Equal(t, first.Loops, second.Loops)
	assert.Equal(t, first.Tables, second.Tables)
}

func TestRun_Staircase(t *testing.T) {
	testutil.DiscardLogs(t)

	result, err := Run(stairScenario())
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.True(t, result.Finished["stairs"])
	require.Len(t, result.Loops, 1)
	assert.Equal(t, ir.LoopStaircase, result.Loops[0].Kind)
	assert.Equal(t, int64(7), result.Loops[0].Seed)

	assert.Equal(t,
		[]string{"loop", "thisRepN", "thisTrialN", "thisN", "label", "startVal", "intensity", "response"},
		result.Tables[TableWide].Columns)
	assert.Len(t, result.Tables[TableWide].Rows, 12)
	assert.Len(t, result.Tables[SummaryKey("stairs")].Rows, 2)
}

func TestRun_UnsetSeedIsZero(t *testing.T) {
	testutil.DiscardLogs(t)

	scenario := blockRandomScenario()
	scenario.Experiment.Loops[0].Seed = nil

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(0), result.Loops[0].Seed)

	again, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, result.Sequences, again.Sequences)
}

func TestRun_FixedRunID(t *testing.T) {
	testutil.DiscardLogs(t)

	scenario := blockRandomScenario()
	scenario.RunID = "run-fixed"

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", result.RunID)
}

func TestRun_TablesPerLoop(t *testing.T) {
	testutil.DiscardLogs(t)

	scenario := blockRandomScenario()
	scenario.Experiment.Loops = append(scenario.Experiment.Loops, LoopDef{
		Name:       "practice",
		Method:     "sequential",
		DataTypes:  []string{"rt"},
		Conditions: conds("sf", 2.5, 4.0),
	})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, []int{0, 1}, result.Sequences["practice"])
	assert.Equal(t, 17, result.TotalTrials())

	assert.Equal(t,
		[]string{"loop", "thisRepN", "thisTrialN", "thisN", "ori", "sf", "resp", "rand", "rt"},
		result.Tables[TableWide].Columns)
	assert.Equal(t,
		[]string{"TrialNumber", "sf", "rt", "resp", "rand"},
		result.Tables[WideKey("practice")].Columns)
	assert.Equal(t,
		[]string{"ori", "n", "resp_mean", "resp_raw", "resp_std", "rand_mean", "rand_raw", "rand_std", "order"},
		result.Tables[SummaryKey("main")].Columns)
}

func TestRun_FailedAssertion(t *testing.T) {
	testutil.DiscardLogs(t)

	scenario := blockRandomScenario()
	scenario.Assertions = []Assertion{
		{Type: AssertTrialCount, Loop: "main", Count: 14},
		{Type: AssertCoverage, Loop: "main", Count: 3},
	}

	result, err := Run(scenario)
	require.NoError(t, err, "assertion failures are reported in the result")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: trial_count (loop main)")
}

func TestRun_InvalidExperiment(t *testing.T) {
	testutil.DiscardLogs(t)

	scenario := blockRandomScenario()
	scenario.Experiment.Loops[0].Method = "shuffled"

	result, err := Run(scenario)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "shuffled")
}

func TestRun_MissingSpecFile(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing",
		Description: "Spec file does not exist",
		Spec:        "testdata/specs/nowhere.cue",
		Assertions:  []Assertion{{Type: AssertTrialCount, Count: 1}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load experiment")
}
