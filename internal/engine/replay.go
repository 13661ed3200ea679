package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/multistair"
	"github.com/roach88/trialkit/internal/store"
	"github.com/roach88/trialkit/internal/trials"
)

// VerifyResult counts what a successful Verify checked.
type VerifyResult struct {
	RunID  string
	Loops  int
	Trials int
	Steps  int
}

// Verify replays a stored run and checks it against its log.
//
// Loops are rebuilt from the stored spec, whose seeds are all resolved.
// Trial loops must regenerate the logged condition order. Staircase loops
// are driven with the logged answers and must present the logged staircase
// and intensity at every step, then finish exactly when the log ends.
//
// Any divergence is returned as a RuntimeError with ErrCodeReplayMismatch.
func Verify(ctx context.Context, s *store.Store, runID string) (VerifyResult, error) {
	log, err := s.ReadRunLog(ctx, runID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", runID, err)
	}

	hash, err := ir.SpecHash(log.Run.Spec)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", runID, err)
	}
	if hash != log.Run.SpecHash {
		return VerifyResult{}, NewReplayMismatch(runID, "", "stored spec does not match its hash",
			map[string]string{"stored": log.Run.SpecHash, "computed": hash})
	}
	if log.Run.EngineVersion != ir.EngineVersion {
		slog.Warn("replaying run from a different engine version",
			"run_id", runID, "recorded", log.Run.EngineVersion, "current", ir.EngineVersion)
	}

	records := make(map[string]store.LoopRecord, len(log.Loops))
	for _, l := range log.Loops {
		records[l.Name] = l
	}
	trialsByLoop := make(map[string][]store.TrialRecord)
	for _, t := range log.Trials {
		trialsByLoop[t.Loop] = append(trialsByLoop[t.Loop], t)
	}

	res := VerifyResult{RunID: runID}
	for _, ls := range log.Run.Spec.Loops {
		if err := ctx.Err(); err != nil {
			return VerifyResult{}, err
		}
		rec, ok := records[ls.Name]
		if !ok {
			return VerifyResult{}, NewReplayMismatch(runID, ls.Name, "loop missing from log", nil)
		}
		loop, err := BuildLoop(ls)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("verify %s: %w", runID, err)
		}

		var seq []int
		switch l := loop.(type) {
		case *trials.Handler:
			seq, err = verifyTrials(runID, l, trialsByLoop[ls.Name])
		case *multistair.Coordinator:
			steps := log.Steps[ls.Name]
			seq, err = verifyStairs(runID, l, steps)
			res.Steps += len(steps)
		}
		if err != nil {
			return VerifyResult{}, err
		}

		if len(seq) != rec.Trials {
			return VerifyResult{}, NewReplayMismatch(runID, ls.Name, "trial count differs from log",
				map[string]string{"logged": fmt.Sprintf("%d", rec.Trials), "replayed": fmt.Sprintf("%d", len(seq))})
		}
		if h := ir.SequenceHash(seq); h != rec.SequenceHash {
			return VerifyResult{}, NewReplayMismatch(runID, ls.Name, "sequence hash differs from log",
				map[string]string{"logged": rec.SequenceHash, "replayed": h})
		}
		res.Loops++
		res.Trials += len(seq)
		slog.Debug("loop verified", "run_id", runID, "loop", ls.Name, "trials", len(seq))
	}

	slog.Info("run verified", "run_id", runID, "loops", res.Loops, "trials", res.Trials, "steps", res.Steps)
	return res, nil
}

// verifyTrials regenerates the handler's order and compares it with the
// logged trials. A loop may have stopped early, so the log may be a prefix.
func verifyTrials(runID string, h *trials.Handler, logged []store.TrialRecord) ([]int, error) {
	seq := h.Sequence()
	if len(logged) > len(seq) {
		return nil, NewReplayMismatch(runID, h.Name(), "log holds more trials than the loop schedules",
			map[string]string{"logged": fmt.Sprintf("%d", len(logged)), "scheduled": fmt.Sprintf("%d", len(seq))})
	}
	for i, t := range logged {
		if t.N != i || t.Index != seq[i] {
			return nil, NewReplayMismatch(runID, h.Name(), "condition order differs from log",
				map[string]string{
					"trial":    fmt.Sprintf("%d", i),
					"logged":   fmt.Sprintf("%d", t.Index),
					"replayed": fmt.Sprintf("%d", seq[i]),
				})
		}
	}
	return seq[:len(logged)], nil
}

// verifyStairs drives the coordinator with the logged answers.
func verifyStairs(runID string, c *multistair.Coordinator, steps []store.StairStep) ([]int, error) {
	for i, step := range steps {
		t, err := c.Next()
		if ir.IsExhausted(err) {
			return nil, NewReplayMismatch(runID, c.Name(), "staircases finished before the log ended",
				map[string]string{"step": fmt.Sprintf("%d", i), "logged_steps": fmt.Sprintf("%d", len(steps))})
		}
		if err != nil {
			return nil, err
		}
		if t.Stair != step.Stair || t.Intensity != step.Intensity {
			return nil, NewReplayMismatch(runID, c.Name(), "staircase step differs from log",
				map[string]string{
					"step":               fmt.Sprintf("%d", i),
					"logged_stair":       fmt.Sprintf("%d", step.Stair),
					"replayed_stair":     fmt.Sprintf("%d", t.Stair),
					"logged_intensity":   fmt.Sprintf("%g", step.Intensity),
					"replayed_intensity": fmt.Sprintf("%g", t.Intensity),
				})
		}
		if err := c.AddData(step.Correct); err != nil {
			return nil, err
		}
	}
	if !c.Finished() {
		return nil, NewReplayMismatch(runID, c.Name(), "log ended before the staircases finished",
			map[string]string{"logged_steps": fmt.Sprintf("%d", len(steps)), "active": fmt.Sprintf("%v", c.Active())})
	}
	return c.Sequence(), nil
}
