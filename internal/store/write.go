package store

import (
	"context"
	"fmt"
)

// WriteRun inserts a run header.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: a duplicate run ID is
// silently ignored. Other constraint violations still return errors.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	specJSON, err := marshalSpec(run.Spec)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, name, spec, spec_hash, engine_version, spec_version, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Name,
		specJSON,
		run.SpecHash,
		run.EngineVersion,
		run.SpecVersion,
		run.Seq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	return nil
}

// WriteLoop inserts a loop summary. The run must exist.
func (s *Store) WriteLoop(ctx context.Context, loop LoopRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loops
		(run_id, name, kind, seed, sequence_hash, trials, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, name) DO NOTHING
	`,
		loop.RunID,
		loop.Name,
		string(loop.Kind),
		loop.Seed,
		loop.SequenceHash,
		loop.Trials,
		loop.Seq,
	)
	if err != nil {
		return fmt.Errorf("write loop %q: %w", loop.Name, err)
	}
	return nil
}

// WriteTrial inserts one presented trial. The run must exist.
func (s *Store) WriteTrial(ctx context.Context, rec TrialRecord) error {
	condJSON, err := marshalCondition(rec.Condition)
	if err != nil {
		return fmt.Errorf("write trial %s/%d: %w", rec.Loop, rec.N, err)
	}
	dataJSON, err := marshalFields(rec.Data)
	if err != nil {
		return fmt.Errorf("write trial %s/%d: %w", rec.Loop, rec.N, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trials
		(run_id, loop, n, rep, trial_in_rep, cond_index, condition, data, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, loop, n) DO NOTHING
	`,
		rec.RunID,
		rec.Loop,
		rec.N,
		rec.Rep,
		rec.TrialInRep,
		rec.Index,
		condJSON,
		dataJSON,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("write trial %s/%d: %w", rec.Loop, rec.N, err)
	}
	return nil
}

// WriteStairStep inserts one staircase response. The run must exist.
func (s *Store) WriteStairStep(ctx context.Context, step StairStep) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stair_steps
		(run_id, loop, n, stair, stair_trial, intensity, correct, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, loop, n) DO NOTHING
	`,
		step.RunID,
		step.Loop,
		step.N,
		step.Stair,
		step.StairTrial,
		step.Intensity,
		boolToInt(step.Correct),
		step.Seq,
	)
	if err != nil {
		return fmt.Errorf("write stair step %s/%d: %w", step.Loop, step.N, err)
	}
	return nil
}
