package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/trialkit/internal/ir"
)

// createTestStore creates a new in-memory store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun builds a run with one trial loop and one staircase loop.
func createTestRun(id string, seq int64) Run {
	return Run{
		ID:   id,
		Name: "exp",
		Spec: ir.ExperimentSpec{
			Name: "exp",
			Loops: []ir.LoopSpec{
				{
					Name:   "practice",
					Kind:   ir.LoopTrials,
					Method: "random",
					NReps:  ir.Ptr(2),
					Seed:   ir.Seed(100),
					Conditions: []ir.Condition{
						ir.NewCondition(ir.F("ori", 0), ir.F("contrast", 0.5)),
						ir.NewCondition(ir.F("ori", 90), ir.F("contrast", 0.25)),
					},
				},
				{
					Name:      "stairs",
					Kind:      ir.LoopStaircase,
					StairType: "simple",
					NTrials:   10,
					Seed:      ir.Seed(7),
					Conditions: []ir.Condition{
						ir.NewCondition(ir.F("label", "low"), ir.F("startVal", 0.1)),
					},
				},
			},
			Observer: ir.ObserverSpec{Seed: 42},
		},
		SpecHash:      "test-hash",
		EngineVersion: ir.EngineVersion,
		SpecVersion:   ir.SpecVersion,
		Seq:           seq,
	}
}

// seedRun writes run into s and fails the test on error.
func seedRun(t *testing.T, s *Store, run Run) {
	t.Helper()
	require.NoError(t, s.WriteRun(context.Background(), run))
}
