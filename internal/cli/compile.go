package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/trialkit/internal/compiler"
	"github.com/roach88/trialkit/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled experiments.
type CompilationResult struct {
	Experiments []CompiledExperiment `json:"experiments"`
}

// CompiledExperiment pairs a compiled experiment with its content hash.
type CompiledExperiment struct {
	Spec     ir.ExperimentSpec `json:"spec"`
	SpecHash string            `json:"spec_hash"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ExperimentCount int
	LoopCount       int
	ConditionCount  int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <spec>",
		Short: "Compile CUE experiment definitions to JSON",
		Long: `Compile CUE experiment definitions to their JSON form.

<spec> is a .cue file or a directory holding one CUE package. Every
experiment under the top-level "experiment" struct is compiled and
reported with its spec hash, the identity stored with each run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Use shared loader with collect-all mode
	loadResult, loadErrors := LoadSpecs(specPath, LoadModeCollectAll)

	// Handle load errors (path not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specPath)
	for _, exp := range loadResult.Experiments {
		formatter.VerboseLog("Compiled experiment: %s", exp.Name)
	}

	// Handle compilation errors
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{}
	for _, exp := range loadResult.Experiments {
		hash, err := ir.SpecHash(exp)
		if err != nil {
			return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("hashing %s: %v", exp.Name, err), nil)
		}
		result.Experiments = append(result.Experiments, CompiledExperiment{Spec: exp, SpecHash: hash})
	}

	stats := calculateStats(result)

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{ExperimentCount: len(result.Experiments)}
	for _, exp := range result.Experiments {
		stats.LoopCount += len(exp.Spec.Loops)
		for _, loop := range exp.Spec.Loops {
			stats.ConditionCount += len(loop.Conditions)
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d experiment(s), %d loop(s), %d condition(s)\n\n",
		stats.ExperimentCount, stats.LoopCount, stats.ConditionCount)

	for _, exp := range result.Experiments {
		fmt.Fprintf(w, "%s (spec %s)\n", exp.Spec.Name, shortHash(exp.SpecHash))
		for _, loop := range exp.Spec.Loops {
			fmt.Fprintf(w, "  %s: %s\n", loop.Name, describeLoop(loop))
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled experiments to %s\n", outputFile)
	}

	return nil
}

// describeLoop renders the settings that decide a loop's sequence.
func describeLoop(loop ir.LoopSpec) string {
	method := loop.Method
	if method == "" {
		method = "random"
	}
	seed := "unset"
	if loop.Seed != nil {
		seed = fmt.Sprint(*loop.Seed)
	}

	if loop.Kind == ir.LoopStaircase {
		stairType := loop.StairType
		if stairType == "" {
			stairType = "simple"
		}
		return fmt.Sprintf("staircase, %d %s staircase(s), interleave=%s, seed=%s",
			len(loop.Conditions), stairType, method, seed)
	}

	nReps := loop.RepsValue()
	conditions := len(loop.Conditions)
	if conditions == 0 {
		conditions = 1
	}
	return fmt.Sprintf("trials, %d condition(s) × %d rep(s), method=%s, seed=%s",
		conditions, nReps, method, seed)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		if err := formatter.JSON(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compilation result to a file.
func writeIRToFile(result *CompilationResult, filename string) error {
	// Use standard JSON with indentation for readability
	// (canonical JSON without indentation is used only for hashing)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling experiments: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
