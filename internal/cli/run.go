package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/trialkit/internal/engine"
	"github.com/roach88/trialkit/internal/experiment"
	"github.com/roach88/trialkit/internal/export"
	"github.com/roach88/trialkit/internal/metrics"
	"github.com/roach88/trialkit/internal/multistair"
	"github.com/roach88/trialkit/internal/observer"
	"github.com/roach88/trialkit/internal/store"
	"github.com/roach88/trialkit/internal/trials"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	OutDir     string
	Experiment string
	Database   string
	Delimiter  string
	Collision  string
	Metrics    string
	MaxTrials  int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs experiment.RunIDGenerator
}

// RunOutput lists what a run wrote.
type RunOutput struct {
	RunID      string            `json:"run_id"`
	Experiment string            `json:"experiment"`
	SpecHash   string            `json:"spec_hash"`
	Loops      []RunLoopOutput   `json:"loops"`
	Files      map[string]string `json:"files"`
}

// RunLoopOutput summarizes one loop of a run.
type RunLoopOutput struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Seed         int64  `json:"seed"`
	Trials       int    `json:"trials"`
	SequenceHash string `json:"sequence_hash"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <spec>",
		Short: "Run an experiment against the simulated observer",
		Long: `Run an experiment unattended, answering every trial with the seeded
simulated observer declared in the spec, and export the results.

Written to --out:
  <experiment>.<csv|tsv|txt>           wide table, one row per trial
  <experiment>_<loop>_summary.<...>    per-condition summary per loop
  <experiment>_<loop>.psydat           loop snapshot (JSON)

With --db the run is appended to a SQLite run log that "trialkit replay"
can verify. With --metrics the run's Prometheus collectors are written in
the text exposition format.

Example:
  trialkit run ./contrast.cue --out ./data --db ./runs.db
  trialkit run ./specs --experiment contrast --out ./data --delim , --collision overwrite`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OutDir, "out", "", "directory for exported data (required)")
	cmd.Flags().StringVar(&opts.Experiment, "experiment", "", "experiment to run (required when the spec defines several)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log")
	cmd.Flags().StringVar(&opts.Delimiter, "delim", "tab", "table delimiter: tab, comma, or a single character")
	cmd.Flags().StringVar(&opts.Collision, "collision", "rename", "when a file exists: rename, overwrite or fail")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "write Prometheus metrics to this file")
	cmd.Flags().IntVar(&opts.MaxTrials, "max-trials", 0, "abort a loop presenting more trials than this (0 = no limit)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runExperiment(opts *RunOptions, specPath string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	delim, err := parseDelimiter(opts.Delimiter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --delim", err)
	}
	collision, err := export.ParseCollisionPolicy(opts.Collision)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --collision", err)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	slog.Info("loading spec", "path", specPath)
	spec, err := loadExperiment(specPath, opts.Experiment)
	if err != nil {
		return outputLoadFailure(formatter, err)
	}

	m := metrics.New(prometheus.NewRegistry())
	engineOpts := []engine.EngineOption{
		engine.WithMetrics(m),
		engine.WithMaxTrials(opts.MaxTrials),
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}

	if opts.Database != "" {
		slog.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithStore(st))
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := engine.New(engineOpts...).Run(ctx, *spec, observer.FromSpec(spec.Observer))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "run interrupted", err)
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "run failed", err)
	}

	out := RunOutput{
		RunID:      result.RunID,
		Experiment: spec.Name,
		SpecHash:   result.SpecHash,
		Files:      make(map[string]string),
	}
	for _, l := range result.Loops {
		out.Loops = append(out.Loops, RunLoopOutput{
			Name:         l.Name,
			Kind:         string(l.Kind),
			Seed:         l.Seed,
			Trials:       l.Trials,
			SequenceHash: l.SequenceHash,
		})
	}

	exportOpts := export.Options{Delimiter: delim, Collision: collision}
	if err := exportResult(result, opts.OutDir, exportOpts, out.Files); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to export results", err)
	}

	if opts.Metrics != "" {
		if err := m.WriteTextfile(opts.Metrics); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		out.Files["metrics"] = opts.Metrics
	}

	slog.Info("run exported", "run_id", result.RunID, "out", opts.OutDir, "files", len(out.Files))
	return outputRunSuccess(formatter, out)
}

// exportResult writes the wide table, one summary table per loop, and one
// snapshot per loop. Written paths are recorded in files.
func exportResult(result *engine.Result, dir string, opts export.Options, files map[string]string) error {
	name := result.Registry.Name
	path, err := export.WriteTable(filepath.Join(dir, name), result.Registry.Wide(), opts)
	if err != nil {
		return err
	}
	files["wide"] = path

	for _, loop := range result.Registry.Loops() {
		base := filepath.Join(dir, name+"_"+loop.Name())

		if s, ok := loop.(experiment.Summarizer); ok {
			path, err := export.WriteTable(base+"_summary", experiment.SummaryTable(s, experiment.SummaryOptions{}), opts)
			if err != nil {
				return err
			}
			files[loop.Name()+"_summary"] = path
		}

		var snapshot any
		switch l := loop.(type) {
		case *trials.Handler:
			snapshot = l.Snapshot()
		case *multistair.Coordinator:
			snapshot = l.Snapshot()
		default:
			continue
		}
		path, err := export.WriteSnapshot(base, snapshot, opts)
		if err != nil {
			return err
		}
		files[loop.Name()+"_snapshot"] = path
	}
	return nil
}

// parseDelimiter accepts "tab", "comma", or a single character.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "", "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter %q must be tab, comma, or a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func outputRunSuccess(formatter *OutputFormatter, out RunOutput) error {
	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: out, RunID: out.RunID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Run %s (%s)\n\n", out.RunID, out.Experiment)
	for _, l := range out.Loops {
		fmt.Fprintf(w, "  %s: %d trial(s), seed %d\n", l.Name, l.Trials, l.Seed)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Wide table: %s\n", out.Files["wide"])
	return nil
}
