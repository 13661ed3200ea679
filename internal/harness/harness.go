package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/trialkit/internal/engine"
	"github.com/roach88/trialkit/internal/experiment"
	"github.com/roach88/trialkit/internal/multistair"
	"github.com/roach88/trialkit/internal/observer"
	"github.com/roach88/trialkit/internal/store"
	"github.com/roach88/trialkit/internal/testutil"
	"github.com/roach88/trialkit/internal/trials"
)

// Harness holds the per-scenario execution context: a private run log and
// the deterministic helpers every scenario runs with.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.DeterministicClock
	runIDs *testutil.FixedRunIDGenerator
	logger *slog.Logger
}

// unsetSeed is the seed a scenario loop gets when it does not set one, so
// scenarios stay reproducible without listing every seed.
func unsetSeed() int64 { return 0 }

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Compile the experiment (inline YAML or CUE file)
// 2. Create fresh in-memory database
// 3. Run the experiment against its simulated observer
// 4. Replay the stored run and check it matches
// 5. Evaluate assertions against sequences and tables
//
// A returned error means the scenario could not run at all; failed checks
// are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	spec, err := scenario.ExperimentSpec()
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}

	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	// Initialize deterministic helpers
	clock := testutil.NewDeterministicClock()
	runIDs := testutil.NewFixedRunIDGenerator(scenario.RunID)

	h := &Harness{
		store: st,
		engine: engine.New(
			engine.WithStore(st),
			engine.WithClock(clock),
			engine.WithRunIDGenerator(runIDs),
			engine.WithSeedFunc(unsetSeed),
		),
		clock:  clock,
		runIDs: runIDs,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	run, err := h.engine.Run(ctx, *spec, observer.FromSpec(spec.Observer))
	if err != nil {
		return nil, fmt.Errorf("failed to run experiment %q: %w", spec.Name, err)
	}

	result := collect(run)

	vr, err := engine.Verify(ctx, st, run.RunID)
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
	} else {
		h.logger.Info("scenario replayed", "scenario", scenario.Name, "run_id", vr.RunID, "trials", vr.Trials)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	h.logger.Info("scenario complete",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors),
		"last_seq", h.clock.Current(),
	)
	return result, nil
}

// collect builds the sequences and table views of a finished run.
func collect(run *engine.Result) *Result {
	result := NewResult(run.RunID)
	result.Loops = run.Loops
	result.Tables[TableWide] = run.Registry.Wide()

	for _, lr := range run.Loops {
		result.Sequences[lr.Name] = lr.Sequence

		loop, ok := run.Registry.Loop(lr.Name)
		if !ok {
			continue
		}
		result.Finished[lr.Name] = finished(loop)
		result.Tables[WideKey(lr.Name)] = experiment.WideTable(loop)
		if s, ok := loop.(experiment.Summarizer); ok {
			result.Conditions[lr.Name] = s.Conditions().Len()
			result.Tables[SummaryKey(lr.Name)] = experiment.SummaryTable(s, experiment.SummaryOptions{})
		}
	}
	return result
}

func finished(loop experiment.Loop) bool {
	switch l := loop.(type) {
	case *trials.Handler:
		return l.State() == trials.Exhausted
	case *multistair.Coordinator:
		return l.Finished()
	default:
		return false
	}
}
