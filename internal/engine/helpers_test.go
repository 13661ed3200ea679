package engine

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/metrics"
	"github.com/roach88/trialkit/internal/store"
	"github.com/roach88/trialkit/internal/testutil"
)

func fixedSeed(seed int64) SeedFunc {
	return func() int64 { return seed }
}

// testSpec has a 3x2 trial loop followed by three simple staircases of 20
// trials each.
func testSpec() ir.ExperimentSpec {
	return ir.ExperimentSpec{
		Name: "testExp",
		Loops: []ir.LoopSpec{
			{
				Name:   "practice",
				Kind:   ir.LoopTrials,
				Method: "random",
				NReps:  ir.Ptr(2),
				Seed:   ir.Seed(100),
				Conditions: []ir.Condition{
					ir.NewCondition(ir.F("trialType", 0), ir.F("ori", 0)),
					ir.NewCondition(ir.F("trialType", 1), ir.F("ori", 45)),
					ir.NewCondition(ir.F("trialType", 2), ir.F("ori", 90)),
				},
			},
			{
				Name:      "stairs",
				Kind:      ir.LoopStaircase,
				StairType: "simple",
				Method:    "random",
				NTrials:   20,
				Seed:      ir.Seed(7),
				Conditions: []ir.Condition{
					ir.NewCondition(ir.F("label", "low"), ir.F("startVal", 0.3), ir.F("stepSizes", []float64{0.1, 0.05})),
					ir.NewCondition(ir.F("label", "mid"), ir.F("startVal", 0.6), ir.F("stepSizes", []float64{0.1, 0.05})),
					ir.NewCondition(ir.F("label", "high"), ir.F("startVal", 0.8), ir.F("stepSizes", []float64{0.1, 0.05})),
				},
				StepType: "lin",
			},
		},
		Observer: ir.ObserverSpec{Seed: 100},
	}
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	testutil.DiscardLogs(t)
	base := []EngineOption{
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
		WithSeedFunc(fixedSeed(1234)),
	}
	return New(append(base, opts...)...)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// counterSum adds every sample of a counter family whose labels include
// the given loop.
func counterSum(t *testing.T, m *metrics.Metrics, name, loop string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if hasLabel(metric, "loop", loop) {
				sum += metric.GetCounter().GetValue()
			}
		}
	}
	return sum
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
