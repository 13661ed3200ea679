package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/trialkit/internal/engine"
	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/trials"
)

// SequenceOptions holds flags for the sequence command.
type SequenceOptions struct {
	*RootOptions
	Experiment string
	Loop       string
	Seed       int64
}

// LoopSequence is the previewed order of one loop.
// Sequence is empty for staircase loops, whose order depends on responses.
type LoopSequence struct {
	Name         string      `json:"name"`
	Kind         ir.LoopKind `json:"kind"`
	Method       string      `json:"method"`
	Seed         int64       `json:"seed"`
	SeedSet      bool        `json:"seed_set"`
	Sequence     []int       `json:"sequence,omitempty"`
	SequenceHash string      `json:"sequence_hash,omitempty"`
}

// SequenceResult is the output of the sequence command.
type SequenceResult struct {
	Experiment string         `json:"experiment"`
	Loops      []LoopSequence `json:"loops"`
}

// NewSequenceCommand creates the sequence command.
func NewSequenceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SequenceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sequence <spec>",
		Short: "Preview the trial order of an experiment",
		Long: `Print the condition index order every trial loop will present.

A loop with no seed previews with seed 0. --seed overrides the seed of every
loop. Staircase loops are listed without a sequence: their interleaving is
only decided as responses arrive.

Example:
  trialkit sequence ./contrast.cue --loop practice --seed 100`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSequence(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Experiment, "experiment", "", "experiment to preview (required when the spec defines several)")
	cmd.Flags().StringVar(&opts.Loop, "loop", "", "preview only this loop")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "seed for every loop, overriding the spec")

	return cmd
}

func runSequence(opts *SequenceOptions, specPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	spec, err := loadExperiment(specPath, opts.Experiment)
	if err != nil {
		return outputLoadFailure(formatter, err)
	}

	seedOverride := cmd.Flags().Changed("seed")
	result := SequenceResult{Experiment: spec.Name}
	found := false
	for _, ls := range spec.Loops {
		if opts.Loop != "" && ls.Name != opts.Loop {
			continue
		}
		found = true
		if seedOverride {
			ls.Seed = ir.Seed(opts.Seed)
		}

		preview, err := previewLoop(ls)
		if err != nil {
			_ = formatter.Error(ErrCodeFieldValue, err.Error(), nil)
			return WrapExitError(ExitFailure, fmt.Sprintf("loop %s", ls.Name), err)
		}
		formatter.VerboseLog("Loop %s: %d trial(s)", ls.Name, len(preview.Sequence))
		result.Loops = append(result.Loops, preview)
	}
	if !found {
		msg := fmt.Sprintf("loop %q not found in experiment %s", opts.Loop, spec.Name)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s\n\n", result.Experiment)
	for _, l := range result.Loops {
		seed := fmt.Sprint(l.Seed)
		if !l.SeedSet {
			seed += " (unset)"
		}
		fmt.Fprintf(w, "%s [%s, method=%s, seed=%s]\n", l.Name, l.Kind, l.Method, seed)
		if l.Kind == ir.LoopStaircase {
			fmt.Fprintln(w, "  order depends on responses")
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintf(w, "  sequence: %s\n", formatSequence(l.Sequence))
		fmt.Fprintf(w, "  hash:     %s\n\n", l.SequenceHash)
	}
	return nil
}

// previewLoop builds ls and reads its order without presenting anything.
func previewLoop(ls ir.LoopSpec) (LoopSequence, error) {
	built, err := engine.BuildLoop(ls)
	if err != nil {
		return LoopSequence{}, err
	}

	out := LoopSequence{
		Name:    ls.Name,
		Kind:    ls.Kind,
		Method:  ls.Method,
		Seed:    ls.SeedValue(),
		SeedSet: ls.Seed != nil,
	}
	if out.Kind == "" {
		out.Kind = ir.LoopTrials
	}

	if h, ok := built.(*trials.Handler); ok {
		out.Method = string(h.Method())
		out.Sequence = h.Sequence()
		out.SequenceHash = ir.SequenceHash(out.Sequence)
	}
	return out, nil
}

func formatSequence(seq []int) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// outputLoadFailure reports a spec that could not be loaded or selected.
func outputLoadFailure(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, "failed to load spec", err)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load spec", err)
}
