package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/trialkit/internal/experiment"
	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/metrics"
	"github.com/roach88/trialkit/internal/multistair"
	"github.com/roach88/trialkit/internal/store"
	"github.com/roach88/trialkit/internal/trials"
)

// Responder supplies participant behaviour: the data recorded for each trial
// of a trial loop, and the answer to each staircase presentation.
// Implemented by observer.Simulated.
type Responder interface {
	TrialData(loop string, t trials.Trial) []ir.Field
	Correct(loop string, intensity float64, cond ir.Condition) bool
}

// Engine runs experiments. It is not safe for concurrent Run calls; create
// one Engine per goroutine.
type Engine struct {
	store     *store.Store
	metrics   *metrics.Metrics
	clock     Sequencer
	clockSet  bool
	runIDs    experiment.RunIDGenerator
	seeds     SeedFunc
	maxTrials int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithStore appends every run to the given run log.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithMetrics updates m while loops run.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock replaces the logical clock. Without it, a run against a store
// continues numbering after the highest seq already in the log.
func WithClock(c Sequencer) EngineOption {
	return func(e *Engine) {
		e.clock = c
		e.clockSet = true
	}
}

// WithRunIDGenerator replaces the default UUIDv7 run ids.
func WithRunIDGenerator(g experiment.RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithSeedFunc replaces the generator used for unset loop seeds.
func WithSeedFunc(f SeedFunc) EngineOption {
	return func(e *Engine) {
		e.seeds = f
	}
}

// WithMaxTrials caps the trials any single loop may present.
// Zero (the default) means no cap.
func WithMaxTrials(n int) EngineOption {
	return func(e *Engine) {
		e.maxTrials = n
	}
}

// New creates an Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		clock:  NewClock(),
		runIDs: experiment.UUIDv7Generator{},
		seeds:  randomSeed,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoopResult summarizes one finished loop.
type LoopResult struct {
	Name         string
	Kind         ir.LoopKind
	Seed         int64
	Sequence     []int
	SequenceHash string
	Trials       int
}

// Result is the outcome of a run.
type Result struct {
	RunID string

	// Spec is the resolved spec: every loop seed is set.
	Spec     ir.ExperimentSpec
	SpecHash string

	Registry *experiment.Registry
	Loops    []LoopResult
}

// Run executes spec against r and returns the populated registry.
//
// Every loop is built before anything is presented or stored, so a
// configuration error in the last loop leaves no partial run behind.
func (e *Engine) Run(ctx context.Context, spec ir.ExperimentSpec, r Responder) (*Result, error) {
	if len(spec.Loops) == 0 {
		return nil, ir.Configf("engine", spec.Name, "loops", "experiment must declare at least one loop")
	}

	resolved := ResolveSeeds(spec, e.seeds)
	for i, l := range spec.Loops {
		if l.Seed == nil {
			slog.Info("resolved seed", "loop", l.Name, "seed", resolved.Loops[i].SeedValue())
		}
	}

	specHash, err := ir.SpecHash(resolved)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", spec.Name, err)
	}

	runID := e.runIDs.Generate()
	registry := experiment.NewRegistry(spec.Name, runID)
	loops := make([]experiment.Summarizer, len(resolved.Loops))
	for i, ls := range resolved.Loops {
		loop, err := BuildLoop(ls)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(loop); err != nil {
			return nil, err
		}
		loops[i] = loop
	}

	if err := e.syncClock(ctx); err != nil {
		return nil, err
	}

	slog.Info("run starting", "run_id", runID, "experiment", spec.Name, "loops", len(loops), "spec_hash", specHash)

	if e.store != nil {
		err := e.store.WriteRun(ctx, store.Run{
			ID:            runID,
			Name:          spec.Name,
			Spec:          resolved,
			SpecHash:      specHash,
			EngineVersion: ir.EngineVersion,
			SpecVersion:   ir.SpecVersion,
			Seq:           e.clock.Next(),
		})
		if err != nil {
			return nil, err
		}
	}

	result := &Result{
		RunID:    runID,
		Spec:     resolved,
		SpecHash: specHash,
		Registry: registry,
	}
	for i, loop := range loops {
		lr, err := e.runLoop(ctx, runID, resolved.Loops[i], loop, r)
		if err != nil {
			return nil, err
		}
		result.Loops = append(result.Loops, lr)
	}

	if e.metrics != nil {
		e.metrics.ObserveRun()
	}
	slog.Info("run complete", "run_id", runID, "experiment", spec.Name, "loops", len(result.Loops))
	return result, nil
}

// syncClock moves the default clock past the highest seq in the store.
// A clock passed through WithClock is left alone.
func (e *Engine) syncClock(ctx context.Context) error {
	c, ok := e.clock.(*Clock)
	if e.store == nil || e.clockSet || !ok {
		return nil
	}
	last, err := e.store.GetLastSeq(ctx)
	if err != nil {
		return err
	}
	if c.ResumeAfter(last) {
		slog.Debug("clock resumed from run log", "last_seq", last)
	}
	return nil
}

func (e *Engine) runLoop(ctx context.Context, runID string, spec ir.LoopSpec, loop experiment.Summarizer, r Responder) (LoopResult, error) {
	slog.Debug("loop starting", "run_id", runID, "loop", spec.Name, "kind", spec.Kind, "seed", spec.SeedValue())

	var (
		seqs []int64
		err  error
		res  = LoopResult{Name: spec.Name, Kind: spec.Kind, Seed: spec.SeedValue()}
	)
	switch l := loop.(type) {
	case *trials.Handler:
		res.Kind = ir.LoopTrials
		seqs, err = e.driveTrials(ctx, runID, l, r)
		res.Sequence = l.Sequence()[:l.Presented()]
	case *multistair.Coordinator:
		res.Kind = ir.LoopStaircase
		seqs, err = e.driveStairs(ctx, runID, l, r)
		res.Sequence = l.Sequence()
	default:
		return LoopResult{}, fmt.Errorf("loop %q: unsupported loop type %T", spec.Name, loop)
	}
	if err != nil {
		return LoopResult{}, err
	}
	res.Trials = len(seqs)
	res.SequenceHash = ir.SequenceHash(res.Sequence)

	if e.store != nil {
		// Staircase entries are complete only after the loop ends; trial
		// loops were written as they ran.
		if res.Kind == ir.LoopStaircase {
			for i, entry := range loop.Entries() {
				if err := e.store.WriteTrial(ctx, store.TrialRecordFrom(runID, entry, seqs[i])); err != nil {
					return LoopResult{}, err
				}
			}
		}
		err := e.store.WriteLoop(ctx, store.LoopRecord{
			RunID:        runID,
			Name:         res.Name,
			Kind:         res.Kind,
			Seed:         res.Seed,
			SequenceHash: res.SequenceHash,
			Trials:       res.Trials,
			Seq:          e.clock.Next(),
		})
		if err != nil {
			return LoopResult{}, err
		}
	}

	slog.Info("loop finished", "run_id", runID, "loop", res.Name, "kind", res.Kind, "trials", res.Trials, "seed", res.Seed)
	return res, nil
}

func (e *Engine) driveTrials(ctx context.Context, runID string, h *trials.Handler, r Responder) ([]int64, error) {
	seqs := make([]int64, 0, h.TotalTrials())
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := h.Next()
		if ir.IsExhausted(err) {
			return seqs, nil
		}
		if err != nil {
			return nil, err
		}
		if err := e.checkLimit(runID, h.Name(), t.N+1); err != nil {
			return nil, err
		}

		for _, f := range r.TrialData(h.Name(), t) {
			if err := h.AddData(f.Name, f.Value); err != nil {
				return nil, &RuntimeError{
					Code:    ErrCodeResponder,
					Message: err.Error(),
					RunID:   runID,
					Loop:    h.Name(),
					Details: map[string]string{"trial": fmt.Sprintf("%d", t.N), "data_type": f.Name},
				}
			}
		}

		seq := e.clock.Next()
		seqs = append(seqs, seq)
		if e.metrics != nil {
			e.metrics.ObserveTrial(h.Name())
		}
		if e.store != nil {
			entry := ir.Entry{
				Loop:       h.Name(),
				N:          t.N,
				Rep:        t.Rep,
				TrialInRep: t.TrialInRep,
				Index:      t.Index,
				Condition:  t.Condition,
				Data:       h.Data().Row(t.N),
			}
			if err := e.store.WriteTrial(ctx, store.TrialRecordFrom(runID, entry, seq)); err != nil {
				return nil, err
			}
		}
		slog.Debug("trial", "loop", h.Name(), "n", t.N, "index", t.Index, "seq", seq)
	}
}

func (e *Engine) driveStairs(ctx context.Context, runID string, c *multistair.Coordinator, r Responder) ([]int64, error) {
	stairs := c.Staircases()
	var seqs []int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := c.Next()
		if ir.IsExhausted(err) {
			return seqs, nil
		}
		if err != nil {
			return nil, err
		}
		if err := e.checkLimit(runID, c.Name(), t.N+1); err != nil {
			return nil, err
		}

		correct := r.Correct(c.Name(), t.Intensity, t.Condition)
		if err := c.AddData(correct); err != nil {
			return nil, err
		}

		seq := e.clock.Next()
		seqs = append(seqs, seq)
		sc := stairs[t.Stair]
		if e.metrics != nil {
			e.metrics.ObserveTrial(c.Name())
			e.metrics.ObserveResponse(c.Name(), t.Stair, t.Intensity, correct)
			e.metrics.SetReversals(c.Name(), t.Stair, sc.Snapshot().Reversals)
			if sc.Finished() {
				e.metrics.ObserveStairFinished(c.Name())
			}
		}
		if e.store != nil {
			err := e.store.WriteStairStep(ctx, store.StairStep{
				RunID:      runID,
				Loop:       c.Name(),
				N:          t.N,
				Stair:      t.Stair,
				StairTrial: t.StairTrial,
				Intensity:  t.Intensity,
				Correct:    correct,
				Seq:        seq,
			})
			if err != nil {
				return nil, err
			}
		}
		slog.Debug("stair step", "loop", c.Name(), "n", t.N, "stair", t.Stair, "intensity", t.Intensity, "correct", correct, "seq", seq)
		if sc.Finished() {
			slog.Debug("staircase finished", "loop", c.Name(), "stair", t.Stair, "trials", sc.TrialCount())
		}
	}
}

func (e *Engine) checkLimit(runID, loop string, n int) error {
	if e.maxTrials > 0 && n > e.maxTrials {
		return NewTrialLimitError(runID, loop, n, e.maxTrials)
	}
	return nil
}
