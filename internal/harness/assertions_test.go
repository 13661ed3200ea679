package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/engine"
	"github.com/roach88/trialkit/internal/experiment"
)

// testResult builds a result for a three-condition loop "main" presented
// twice in sequential order, plus a finished two-staircase loop "stairs".
func testResult() *Result {
	r := NewResult("run-test")
	r.Loops = []engine.LoopResult{
		{Name: "main", Sequence: []int{0, 1, 2, 0, 1, 2}, Trials: 6},
		{Name: "stairs", Sequence: []int{0, 1, 0, 1}, Trials: 4},
	}
	r.Sequences["main"] = []int{0, 1, 2, 0, 1, 2}
	r.Sequences["stairs"] = []int{0, 1, 0, 1}
	r.Conditions["main"] = 3
	r.Conditions["stairs"] = 2
	r.Finished["main"] = true
	r.Finished["stairs"] = false
	r.Tables[TableWide] = experiment.Table{Columns: []string{"loop", "thisRepN", "thisTrialN", "thisN", "ori"}}
	r.Tables[WideKey("main")] = experiment.Table{Columns: []string{"TrialNumber", "ori"}}
	r.Tables[SummaryKey("main")] = experiment.Table{Columns: []string{"ori", "n", "order"}}
	return r
}

func TestAssertTrialCount(t *testing.T) {
	r := testResult()

	assert.NoError(t, assertTrialCount(r, Assertion{Type: AssertTrialCount, Loop: "main", Count: 6}))
	assert.NoError(t, assertTrialCount(r, Assertion{Type: AssertTrialCount, Count: 10}), "no loop means the whole run")

	err := assertTrialCount(r, Assertion{Type: AssertTrialCount, Loop: "main", Count: 5})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "main", ae.Loop)
	assert.Equal(t, "5 trials", ae.Expected)
	assert.Equal(t, "6 trials", ae.Actual)
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, ae.Sequence)

	err = assertTrialCount(r, Assertion{Type: AssertTrialCount, Count: 11})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "11 trials in run")
}

func TestAssertTrialCount_UnknownLoop(t *testing.T) {
	err := assertTrialCount(testResult(), Assertion{Type: AssertTrialCount, Loop: "nope", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `loop "nope" in run`)
	assert.Contains(t, err.Error(), "[main stairs]")
}

func TestAssertCoverage(t *testing.T) {
	r := testResult()
	assert.NoError(t, assertCoverage(r, Assertion{Type: AssertCoverage, Loop: "main", Count: 2}))

	err := assertCoverage(r, Assertion{Type: AssertCoverage, Loop: "main", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "each of 3 conditions 3 times")
	assert.Contains(t, err.Error(), "condition 0 appears 2 times")
}

func TestAssertCoverage_Uneven(t *testing.T) {
	r := testResult()
	r.Sequences["main"] = []int{0, 0, 1, 2, 1, 1}

	err := assertCoverage(r, Assertion{Type: AssertCoverage, Loop: "main", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition 1 appears 3 times")
}

func TestAssertCoverage_IndexOutOfRange(t *testing.T) {
	r := testResult()
	r.Sequences["main"] = []int{0, 1, 3}

	err := assertCoverage(r, Assertion{Type: AssertCoverage, Loop: "main", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition indices in [0, 3)")
	assert.Contains(t, err.Error(), "index 3")
}

func TestAssertSequence(t *testing.T) {
	r := testResult()
	assert.NoError(t, assertSequence(r, Assertion{Type: AssertSequence, Loop: "stairs", Sequence: []int{0, 1, 0, 1}}))

	err := assertSequence(r, Assertion{Type: AssertSequence, Loop: "stairs", Sequence: []int{1, 0, 1, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: [1 0 1 0]")
	assert.Contains(t, err.Error(), "Actual: [0 1 0 1]")
}

func TestAssertFinished(t *testing.T) {
	r := testResult()
	assert.NoError(t, assertFinished(r, Assertion{Type: AssertFinished, Loop: "main"}))

	err := assertFinished(r, Assertion{Type: AssertFinished, Loop: "stairs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop still running")
	assert.Contains(t, err.Error(), "Sequence: [0 1 0 1]")
}

func TestAssertColumns(t *testing.T) {
	r := testResult()

	err := assertColumns(r, Assertion{Type: AssertHeader, Columns: []string{"loop", "thisRepN", "thisTrialN", "thisN", "ori"}}, TableWide)
	assert.NoError(t, err)

	err = assertColumns(r, Assertion{Type: AssertHeader, Columns: []string{"ori"}}, TableWide)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: [ori]")

	err = assertColumns(r, Assertion{Type: AssertSummaryHeader, Loop: "stairs", Columns: []string{"n"}}, SummaryKey("stairs"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table not built")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertSequence,
		Loop:     "main",
		Expected: "[0 1]",
		Actual:   "[1 0]",
	}
	assert.Equal(t, "Assertion failed: sequence (loop main)\n  Expected: [0 1]\n  Actual: [1 0]\n", err.Error())

	err = &AssertionError{Type: AssertTrialCount, Expected: "3 trials in run", Actual: "2 trials"}
	assert.Equal(t, "Assertion failed: trial_count\n  Expected: 3 trials in run\n  Actual: 2 trials\n", err.Error())
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	errs := EvaluateAssertions(testResult(), []Assertion{
		{Type: AssertTrialCount, Loop: "main", Count: 6},
		{Type: AssertCoverage, Loop: "main", Count: 2},
		{Type: AssertSequence, Loop: "main", Sequence: []int{0, 1, 2, 0, 1, 2}},
		{Type: AssertFinished, Loop: "main"},
		{Type: AssertHeader, Loop: "main", Columns: []string{"TrialNumber", "ori"}},
		{Type: AssertSummaryHeader, Loop: "main", Columns: []string{"ori", "n", "order"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	errs := EvaluateAssertions(testResult(), []Assertion{
		{Type: AssertTrialCount, Loop: "main", Count: 6},
		{Type: AssertFinished, Loop: "stairs"},
		{Type: "trace_order"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Assertion failed: finished (loop stairs)")
	assert.Contains(t, errs[1], `assertion[2]: unknown assertion type "trace_order"`)
}
