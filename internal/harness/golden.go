package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/trialkit/internal/experiment"
	"github.com/roach88/trialkit/internal/ir"
)

// RunSnapshot captures what a scenario run produced.
// All fields use canonical JSON serialization for deterministic comparison.
type RunSnapshot struct {
	ScenarioName string
	RunID        string
	Loops        []LoopSnapshot
	Wide         experiment.Table
}

// LoopSnapshot is the golden view of one loop.
type LoopSnapshot struct {
	Name         string
	Kind         ir.LoopKind
	Seed         int64
	Trials       int
	Sequence     []int
	SequenceHash string
}

// NewRunSnapshot builds the snapshot of a result.
func NewRunSnapshot(scenarioName string, result *Result) RunSnapshot {
	snap := RunSnapshot{
		ScenarioName: scenarioName,
		RunID:        result.RunID,
		Wide:         result.Tables[TableWide],
	}
	for _, l := range result.Loops {
		snap.Loops = append(snap.Loops, LoopSnapshot{
			Name:         l.Name,
			Kind:         l.Kind,
			Seed:         l.Seed,
			Trials:       l.Trials,
			Sequence:     l.Sequence,
			SequenceHash: l.SequenceHash,
		})
	}
	return snap
}

// toCanonicalMap converts a RunSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
// The wide table is reduced to its header and row count.
func (s *RunSnapshot) toCanonicalMap() map[string]any {
	loops := make([]any, len(s.Loops))
	for i, l := range s.Loops {
		loops[i] = map[string]any{
			"name":          l.Name,
			"kind":          string(l.Kind),
			"seed":          l.Seed,
			"trials":        l.Trials,
			"sequence":      l.Sequence,
			"sequence_hash": l.SequenceHash,
		}
	}

	columns := make([]any, len(s.Wide.Columns))
	for i, c := range s.Wide.Columns {
		columns[i] = c
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"loops":         loops,
		"wide": map[string]any{
			"columns": columns,
			"rows":    len(s.Wide.Rows),
		},
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	// Run the scenario
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshotJSON, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	// Compare with golden file using goldie
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshotJSON)

	return nil
}

// SnapshotJSON returns the canonical JSON golden files hold for result.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	snapshot := NewRunSnapshot(scenarioName, result)
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}
