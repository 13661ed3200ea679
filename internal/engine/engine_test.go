package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/metrics"
	"github.com/roach88/trialkit/internal/multistair"
	"github.com/roach88/trialkit/internal/observer"
	"github.com/roach88/trialkit/internal/testutil"
	"github.com/roach88/trialkit/internal/trials"
)

func TestRun_DrivesEveryLoopToExhaustion(t *testing.T) {
	e := newTestEngine(t)
	spec := testSpec()

	res, err := e.Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Loops, 2)

	practice := res.Loops[0]
	assert.Equal(t, ir.LoopTrials, practice.Kind)
	assert.Equal(t, 6, practice.Trials)
	assert.Equal(t, []int{2, 2, 2}, countIndices(practice.Sequence, 3))
	assert.Equal(t, ir.SequenceHash(practice.Sequence), practice.SequenceHash)

	stairs := res.Loops[1]
	assert.Equal(t, ir.LoopStaircase, stairs.Kind)
	assert.Equal(t, 60, stairs.Trials, "three staircases of 20 trials")
	assert.Equal(t, []int{20, 20, 20}, countIndices(stairs.Sequence, 3))

	loop, ok := res.Registry.Loop("stairs")
	require.True(t, ok)
	coord := loop.(*multistair.Coordinator)
	assert.True(t, coord.Finished())
	for _, sc := range coord.Staircases() {
		assert.Equal(t, 20, sc.TrialCount())
	}
}

func TestRun_RecordsResponderData(t *testing.T) {
	e := newTestEngine(t)
	spec := testSpec()

	res, err := e.Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)

	loop, ok := res.Registry.Loop("practice")
	require.True(t, ok)
	h := loop.(*trials.Handler)
	assert.Equal(t, []string{observer.DataResp, observer.DataRand}, h.DataTypes())
	for _, entry := range h.Entries() {
		want := "resp" + ir.FormatValue(entry.Condition.Fields()[0].Value)
		assert.Equal(t, ir.String(want), entry.Value(observer.DataResp))
		assert.False(t, ir.IsMissing(entry.Value(observer.DataRand)))
	}

	wide := res.Registry.Wide()
	assert.Len(t, wide.Rows, 66)
}

func TestRun_Deterministic(t *testing.T) {
	spec := testSpec()

	a, err := newTestEngine(t).Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)
	b, err := newTestEngine(t).Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)

	assert.Equal(t, a.SpecHash, b.SpecHash)
	for i := range a.Loops {
		assert.Equal(t, a.Loops[i].Sequence, b.Loops[i].Sequence)
	}
	assert.Equal(t, a.Registry.Wide(), b.Registry.Wide())
}

func TestRun_ResolvesUnsetSeeds(t *testing.T) {
	e := newTestEngine(t, WithSeedFunc(fixedSeed(99)))
	spec := testSpec()
	spec.Loops[0].Seed = nil

	res, err := e.Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)

	assert.Nil(t, spec.Loops[0].Seed, "input spec must not be modified")
	assert.Equal(t, int64(99), res.Spec.Loops[0].SeedValue())
	assert.Equal(t, int64(7), res.Spec.Loops[1].SeedValue())
	assert.Equal(t, int64(99), res.Loops[0].Seed)

	// The same explicit seed reproduces the same order.
	spec.Loops[0].Seed = ir.Seed(99)
	again, err := newTestEngine(t).Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)
	assert.Equal(t, res.Loops[0].Sequence, again.Loops[0].Sequence)
	assert.Equal(t, res.SpecHash, again.SpecHash)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.ExperimentSpec)
	}{
		{"no loops", func(s *ir.ExperimentSpec) { s.Loops = nil }},
		{"duplicate loop names", func(s *ir.ExperimentSpec) { s.Loops[1].Name = s.Loops[0].Name }},
		{"unknown kind", func(s *ir.ExperimentSpec) { s.Loops[0].Kind = "bogus" }},
		{"unknown method", func(s *ir.ExperimentSpec) { s.Loops[0].Method = "shuffled" }},
		{"negative reps", func(s *ir.ExperimentSpec) { s.Loops[0].NReps = ir.Ptr(-1) }},
		{"zero reps", func(s *ir.ExperimentSpec) { s.Loops[0].NReps = ir.Ptr(0) }},
		{"unknown stair type", func(s *ir.ExperimentSpec) { s.Loops[1].StairType = "pest" }},
		{"staircase without conditions", func(s *ir.ExperimentSpec) { s.Loops[1].Conditions = nil }},
		{"bad step type", func(s *ir.ExperimentSpec) { s.Loops[1].StepType = "cubic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			spec := testSpec()
			tt.mutate(&spec)

			_, err := newTestEngine(t, WithStore(s)).Run(context.Background(), spec, observer.FromSpec(spec.Observer))
			require.Error(t, err)
			assert.True(t, ir.IsConfigurationError(err), "got %v", err)

			// Nothing is written when construction fails.
			runs, err := s.ListRuns(context.Background())
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}

func TestRun_BlankTrialLoop(t *testing.T) {
	e := newTestEngine(t)
	spec := ir.ExperimentSpec{
		Name:  "blank",
		Loops: []ir.LoopSpec{{Name: "once", Kind: ir.LoopTrials, Seed: ir.Seed(1)}},
	}

	res, err := e.Run(context.Background(), spec, observer.NewSimulated(1, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loops[0].Trials)
	assert.Equal(t, []int{0}, res.Loops[0].Sequence)
}

type reservedResponder struct{ *observer.Simulated }

func (reservedResponder) TrialData(string, trials.Trial) []ir.Field {
	return []ir.Field{{Name: "n", Value: ir.Int(1)}}
}

func TestRun_ResponderError(t *testing.T) {
	e := newTestEngine(t)
	spec := testSpec()

	_, err := e.Run(context.Background(), spec, reservedResponder{observer.NewSimulated(1, "")})
	require.Error(t, err)

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrCodeResponder, re.Code)
	assert.Equal(t, "practice", re.Loop)
	assert.Equal(t, "0", re.Details["trial"])
}

func TestRun_TrialLimit(t *testing.T) {
	e := newTestEngine(t, WithMaxTrials(5))
	spec := testSpec()

	_, err := e.Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.Error(t, err)
	assert.True(t, IsTrialLimit(err))
	assert.Contains(t, err.Error(), "loop=practice")
}

func TestRun_ContextCancelled(t *testing.T) {
	e := newTestEngine(t)
	spec := testSpec()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, spec, observer.FromSpec(spec.Observer))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Metrics(t *testing.T) {
	m := metrics.New(nil)
	e := newTestEngine(t, WithMetrics(m))
	spec := testSpec()

	_, err := e.Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)

	assert.Equal(t, 6.0, counterSum(t, m, "trialkit_trials_total", "practice"))
	assert.Equal(t, 60.0, counterSum(t, m, "trialkit_trials_total", "stairs"))
	assert.Equal(t, 60.0, counterSum(t, m, "trialkit_responses_total", "stairs"))
	assert.Equal(t, 3.0, counterSum(t, m, "trialkit_staircases_finished_total", "stairs"))
}

func TestRun_ClockStampsEveryEvent(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	s := openTestStore(t)
	e := newTestEngine(t, WithStore(s), WithClock(clock))
	spec := testSpec()

	_, err := e.Run(context.Background(), spec, observer.FromSpec(spec.Observer))
	require.NoError(t, err)

	// run header + 6 trials + loop + 60 steps + loop
	assert.Equal(t, int64(1+6+1+60+1), clock.Current())
}

func countIndices(seq []int, n int) []int {
	counts := make([]int, n)
	for _, i := range seq {
		counts[i]++
	}
	return counts
}
