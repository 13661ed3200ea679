package store

import (
	"context"
	"fmt"
)

// RunLog is everything stored for one run, in log order.
type RunLog struct {
	Run    Run
	Loops  []LoopRecord
	Trials []TrialRecord

	// Steps holds staircase responses keyed by loop name.
	Steps map[string][]StairStep
}

// ReadRunLog loads a complete run for replay.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) ReadRunLog(ctx context.Context, runID string) (RunLog, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunLog{}, err
	}
	loops, err := s.ReadLoops(ctx, runID)
	if err != nil {
		return RunLog{}, err
	}
	trials, err := s.ReadTrials(ctx, runID, "")
	if err != nil {
		return RunLog{}, err
	}

	log := RunLog{Run: run, Loops: loops, Trials: trials, Steps: make(map[string][]StairStep)}
	for _, l := range loops {
		steps, err := s.ReadStairSteps(ctx, runID, l.Name)
		if err != nil {
			return RunLog{}, err
		}
		if len(steps) > 0 {
			log.Steps[l.Name] = steps
		}
	}
	return log, nil
}

// GetLastSeq returns the highest seq number used in the store.
// The engine resumes its logical clock from here so runs sharing a database
// never interleave seq values.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	for _, table := range []string{"runs", "loops", "trials", "stair_steps"} {
		var seq int64
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) FROM %s", table)).Scan(&seq)
		if err != nil {
			return 0, fmt.Errorf("get last seq from %s: %w", table, err)
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq, nil
}
