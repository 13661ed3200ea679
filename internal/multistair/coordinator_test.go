package multistair

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/staircase"
)

func stairConditions() *ir.ConditionSet {
	row := func(label string, start float64) ir.Condition {
		return ir.NewCondition(
			ir.F("label", label),
			ir.F("startVal", start),
			ir.F("stepType", "lin"),
			ir.F("stepSizes", []float64{0.1, 0.05, 0.025}),
			ir.F("minVal", 0.0),
			ir.F("maxVal", 1.0),
		)
	}
	return ir.MustConditionSet(row("low", 0.2), row("mid", 0.5), row("high", 0.8))
}

func newCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestSequential_RoundRobinWithRetirement(t *testing.T) {
	conds := ir.MustConditionSet(
		ir.NewCondition(ir.F("startVal", 1.0), ir.F("nTrials", 1)),
		ir.NewCondition(ir.F("startVal", 1.0), ir.F("nTrials", 2)),
		ir.NewCondition(ir.F("startVal", 1.0), ir.F("nTrials", 3)),
	)
	c := newCoordinator(t, Config{Name: "rr", Method: Sequential, Conditions: conds})

	var visited []int
	for {
		tr, err := c.Next()
		if ir.IsExhausted(err) {
			break
		}
		require.NoError(t, err)
		visited = append(visited, tr.Stair)
		require.NoError(t, c.AddData(true))
	}
	assert.Equal(t, []int{0, 1, 2, 1, 2, 2}, visited)
	assert.Equal(t, visited, c.Sequence())
	assert.True(t, c.Finished())
	assert.Empty(t, c.Active())

	_, err := c.Next()
	assert.ErrorIs(t, err, ir.ErrExhausted)
}

func TestRandom_DeterministicForSeed(t *testing.T) {
	run := func() []int {
		c := newCoordinator(t, Config{Method: Random, Conditions: stairConditions(), NTrials: 10, Seed: 11})
		i := 0
		for range c.All() {
			require.NoError(t, c.AddData(i%3 == 0))
			i++
		}
		require.NoError(t, c.Err())
		return c.Sequence()
	}
	a, b := run(), run()
	require.Len(t, a, 30)
	assert.Equal(t, a, b)

	counts := make([]int, 3)
	for _, id := range a {
		counts[id]++
	}
	assert.Equal(t, []int{10, 10, 10}, counts)
}

func TestExhaustionOnlyWhenAllFinished(t *testing.T) {
	conds := ir.MustConditionSet(
		ir.NewCondition(ir.F("startVal", 1.0), ir.F("nTrials", 2)),
		ir.NewCondition(ir.F("startVal", 1.0), ir.F("nTrials", 7)),
	)
	c := newCoordinator(t, Config{Conditions: conds, Seed: 3})
	for {
		allDone := true
		for _, sc := range c.Staircases() {
			allDone = allDone && sc.Finished()
		}
		assert.Equal(t, allDone, c.Finished())

		_, err := c.Next()
		if ir.IsExhausted(err) {
			require.True(t, allDone)
			break
		}
		require.NoError(t, err)
		require.NoError(t, c.AddData(false))
	}
	assert.Equal(t, 9, c.Presented())
}

func TestProtocolViolations(t *testing.T) {
	c := newCoordinator(t, Config{Name: "stairs", Conditions: stairConditions(), NTrials: 2})

	err := c.AddData(true)
	var ue *ir.UsageError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "stairs", ue.Name)
	assert.Equal(t, -1, ue.Stair)

	tr, err := c.Next()
	require.NoError(t, err)
	_, err = c.Next()
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, tr.Stair, ue.Stair)

	require.NoError(t, c.AddData(true))
	err = c.AddData(true)
	assert.True(t, ir.IsUsageError(err))
	assert.Equal(t, 1, c.Presented())
	assert.Equal(t, 1, c.Staircases()[tr.Stair].TrialCount())
}

func TestAll_StopsOnMissingResponse(t *testing.T) {
	c := newCoordinator(t, Config{Conditions: stairConditions(), NTrials: 2})
	n := 0
	for range c.All() {
		n++ // no AddData
	}
	assert.Equal(t, 1, n)
	assert.True(t, ir.IsUsageError(c.Err()))
}

// simulate mirrors an observer that answers correctly when a uniform draw
// exceeds the condition's startVal, so staircases finish at different times.
func simulate(t *testing.T, c *Coordinator, seed uint64) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 0))
	for _, cond := range c.All() {
		start, ok := cond.Float("startVal")
		require.True(t, ok)
		require.NoError(t, c.AddData(rng.Float64() > start))
	}
	require.NoError(t, c.Err())
}

func TestSimulatedObserver(t *testing.T) {
	for _, st := range []staircase.Type{staircase.TypeSimple, staircase.TypeQuest} {
		t.Run(string(st), func(t *testing.T) {
			c := newCoordinator(t, Config{
				Name: "stairs", StairType: st, Method: Random,
				Conditions: stairConditions(), NTrials: 20, Seed: 5,
			})
			simulate(t, c, 42)

			assert.True(t, c.Finished())
			entries := c.Entries()
			require.Len(t, entries, 60)

			perStair := map[int]int{}
			for _, e := range entries {
				assert.Equal(t, "stairs", e.Loop)
				assert.Equal(t, perStair[e.TrialInRep], e.Rep, "rep counts the staircase's own trials")
				perStair[e.TrialInRep]++
				assert.False(t, ir.IsMissing(e.Value(DataIntensity)))
				assert.False(t, ir.IsMissing(e.Value(DataResponse)))
			}
			assert.Equal(t, map[int]int{0: 20, 1: 20, 2: 20}, perStair)

			snap := c.Snapshot()
			assert.Equal(t, string(st), snap.StairType)
			assert.True(t, snap.Finished)
			require.Len(t, snap.Staircases, 3)
			assert.Equal(t, "low", snap.Staircases[0].Name)
		})
	}
}

func TestAddOtherDataAndSummary(t *testing.T) {
	c := newCoordinator(t, Config{Method: Sequential, Conditions: stairConditions(), NTrials: 2})
	for range c.All() {
		require.NoError(t, c.AddOtherData("rt", ir.Float(0.5)))
		require.NoError(t, c.AddData(true))
	}
	assert.Equal(t, []string{"intensity", "response", "rt"}, c.DataTypes())

	_, err := c.Next()
	require.ErrorIs(t, err, ir.ErrExhausted)
	assert.True(t, ir.IsUsageError(c.AddOtherData("rt", ir.Int(1))))

	rows := c.Summary()
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i, row.Index)
		assert.Equal(t, 2, row.N)
		assert.InDelta(t, 1.0, row.Stats[DataResponse].Mean, 1e-12)
		assert.InDelta(t, 0.5, row.Stats["rt"].Mean, 1e-12)
	}
}

func TestAddOtherData_RejectsReserved(t *testing.T) {
	c := newCoordinator(t, Config{Conditions: stairConditions(), NTrials: 2})
	_, err := c.Next()
	require.NoError(t, err)
	for _, name := range []string{"n", "order", DataResponse, ""} {
		assert.True(t, ir.IsUsageError(c.AddOtherData(name, ir.Int(1))), name)
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no conditions", Config{Name: "x"}},
		{"bad method", Config{Name: "x", Conditions: stairConditions(), NTrials: 1, Method: "interleaved"}},
		{"bad stair type", Config{Name: "x", Conditions: stairConditions(), NTrials: 1, StairType: "pest"}},
		{"no stop condition", Config{Name: "x", Conditions: stairConditions()}},
		{"negative trials", Config{Name: "x", Conditions: stairConditions(), NTrials: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, ir.IsConfigurationError(err), err.Error())
		})
	}
}
