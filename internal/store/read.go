package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/trialkit/internal/ir"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// ReadRun retrieves a run header by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, spec, spec_hash, engine_version, spec_version, seq
		FROM runs
		WHERE id = ?
	`, id)

	return scanRun(row)
}

// ListRuns returns every run header, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, spec, spec_hash, engine_version, spec_version, seq
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadLoops returns the loop summaries of a run in completion order.
func (s *Store) ReadLoops(ctx context.Context, runID string) ([]LoopRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, kind, seed, sequence_hash, trials, seq
		FROM loops
		WHERE run_id = ?
		ORDER BY seq ASC, name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query loops: %w", err)
	}
	defer rows.Close()

	loops := []LoopRecord{}
	for rows.Next() {
		var (
			l    LoopRecord
			kind string
		)
		if err := rows.Scan(&l.RunID, &l.Name, &kind, &l.Seed, &l.SequenceHash, &l.Trials, &l.Seq); err != nil {
			return nil, fmt.Errorf("scan loop: %w", err)
		}
		l.Kind = ir.LoopKind(kind)
		loops = append(loops, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loops: %w", err)
	}
	return loops, nil
}

// ReadTrials returns the trials a loop presented, in presentation order.
// An empty loop name returns the trials of every loop in the run.
func (s *Store) ReadTrials(ctx context.Context, runID, loop string) ([]TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, loop, n, rep, trial_in_rep, cond_index, condition, data, seq
		FROM trials
		WHERE run_id = ? AND (? = '' OR loop = ?)
		ORDER BY seq ASC, loop COLLATE BINARY ASC, n ASC
	`, runID, loop, loop)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	trials := []TrialRecord{}
	for rows.Next() {
		var (
			rec      TrialRecord
			condJSON string
			dataJSON string
		)
		err := rows.Scan(&rec.RunID, &rec.Loop, &rec.N, &rec.Rep, &rec.TrialInRep, &rec.Index, &condJSON, &dataJSON, &rec.Seq)
		if err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if rec.Condition, err = unmarshalCondition(condJSON); err != nil {
			return nil, fmt.Errorf("trial %s/%d: %w", rec.Loop, rec.N, err)
		}
		if rec.Data, err = unmarshalFields(dataJSON); err != nil {
			return nil, fmt.Errorf("trial %s/%d: %w", rec.Loop, rec.N, err)
		}
		trials = append(trials, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return trials, nil
}

// ReadStairSteps returns the staircase responses of a loop in the order they
// were given.
func (s *Store) ReadStairSteps(ctx context.Context, runID, loop string) ([]StairStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, loop, n, stair, stair_trial, intensity, correct, seq
		FROM stair_steps
		WHERE run_id = ? AND loop = ?
		ORDER BY seq ASC, n ASC
	`, runID, loop)
	if err != nil {
		return nil, fmt.Errorf("query stair steps: %w", err)
	}
	defer rows.Close()

	steps := []StairStep{}
	for rows.Next() {
		var (
			st      StairStep
			correct int
		)
		if err := rows.Scan(&st.RunID, &st.Loop, &st.N, &st.Stair, &st.StairTrial, &st.Intensity, &correct, &st.Seq); err != nil {
			return nil, fmt.Errorf("scan stair step: %w", err)
		}
		st.Correct = correct == 1
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stair steps: %w", err)
	}
	return steps, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		specJSON string
	)
	err := row.Scan(&run.ID, &run.Name, &specJSON, &run.SpecHash, &run.EngineVersion, &run.SpecVersion, &run.Seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if run.Spec, err = unmarshalSpec(specJSON); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return run, nil
}
