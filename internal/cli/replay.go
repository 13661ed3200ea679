package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/trialkit/internal/engine"
	"github.com/roach88/trialkit/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID      string `json:"run_id"`
	Experiment string `json:"experiment"`
	Loops      int    `json:"loops"`
	Trials     int    `json:"trials"`
	Steps      int    `json:"steps"`
	Verified   bool   `json:"verified"`
	Mismatch   string `json:"mismatch,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs        []ReplayRunResult `json:"runs"`
	TotalRuns   int               `json:"total_runs"`
	AllVerified bool              `json:"all_verified"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Replay stored runs and verify they regenerate exactly",
		Long: `Rebuild every loop of a stored run from its recorded spec and seeds and
check it against the run log: trial loops must regenerate the logged
condition order, and staircase loops, driven with the logged answers, must
present the logged staircase and intensity at every step.

Without a run id every run in the database is verified.

Exit codes:
  0 - All runs verified
  1 - Replay mismatch (a run did not regenerate)
  2 - Command error (database not found, unknown run, etc.)

Examples:
  trialkit replay --db ./runs.db
  trialkit replay --db ./runs.db 0190a1b2-...
  trialkit replay --db ./runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReplay(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, runID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Opening would create an empty log, which hides a mistyped path.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	names := make(map[string]string, len(runs))
	runIDs := make([]string, 0, len(runs))
	for _, r := range runs {
		names[r.ID] = r.Name
		runIDs = append(runIDs, r.ID)
	}
	if runID != "" {
		if _, ok := names[runID]; !ok {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", runID))
		}
		runIDs = []string{runID}
	}

	if len(runIDs) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(formatter, ReplayResult{Runs: []ReplayRunResult{}, AllVerified: true})
		}
		fmt.Fprintln(formatter.Writer, "No runs found in database.")
		return nil
	}

	result := ReplayResult{
		Runs:        make([]ReplayRunResult, 0, len(runIDs)),
		TotalRuns:   len(runIDs),
		AllVerified: true,
	}
	for _, id := range runIDs {
		formatter.VerboseLog("Replaying run %s", id)
		runResult, err := replayRun(ctx, st, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
		}
		runResult.Experiment = names[id]
		result.Runs = append(result.Runs, runResult)
		if !runResult.Verified {
			result.AllVerified = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// replayRun verifies one run. A mismatch is a result, not an error; any
// other failure is returned.
func replayRun(ctx context.Context, st *store.Store, runID string) (ReplayRunResult, error) {
	vr, err := engine.Verify(ctx, st, runID)
	if err != nil {
		if engine.IsReplayMismatch(err) {
			res := ReplayRunResult{RunID: runID, Mismatch: err.Error()}
			var re *engine.RuntimeError
			if errors.As(err, &re) {
				res.Mismatch = re.Message
				if re.Loop != "" {
					res.Mismatch = fmt.Sprintf("loop %s: %s", re.Loop, re.Message)
				}
			}
			return res, nil
		}
		return ReplayRunResult{}, err
	}
	return ReplayRunResult{
		RunID:    runID,
		Loops:    vr.Loops,
		Trials:   vr.Trials,
		Steps:    vr.Steps,
		Verified: true,
	}, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllVerified {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    string(engine.ErrCodeReplayMismatch),
			Message: "replay verification failed",
		}
	}

	if err := formatter.JSON(response); err != nil {
		return err
	}

	if !result.AllVerified {
		// Replay mismatch = exit code 1
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		if !run.Verified {
			fmt.Fprintf(w, "✗ Run: %s (%s)\n", run.RunID, run.Experiment)
			fmt.Fprintf(w, "  Mismatch: %s\n\n", run.Mismatch)
			continue
		}
		fmt.Fprintf(w, "✓ Run: %s (%s)\n", run.RunID, run.Experiment)
		if formatter.Verbose {
			fmt.Fprintf(w, "  Loops: %d\n", run.Loops)
			fmt.Fprintf(w, "  Trials: %d\n", run.Trials)
			fmt.Fprintf(w, "  Staircase steps: %d\n", run.Steps)
		} else {
			fmt.Fprintf(w, "  %d loop(s), %d trial(s), %d staircase step(s)\n", run.Loops, run.Trials, run.Steps)
		}
		fmt.Fprintln(w)
	}

	if result.AllVerified {
		fmt.Fprintln(w, "✓ All runs verified")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	// Replay mismatch = exit code 1
	return NewExitError(ExitFailure, "replay verification failed")
}
