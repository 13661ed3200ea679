package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/trialkit/internal/compiler"
	"github.com/roach88/trialkit/internal/ir"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the experiments found at a spec path.
type LoadResult struct {
	Experiments []ir.ExperimentSpec
	CUEValue    cue.Value // The raw CUE value for additional processing
	FileCount   int       // Number of CUE files found
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads and compiles the experiments at path, which is either a
// single .cue file or a directory holding one CUE package.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadSpecs(path string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("spec path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing spec path: %v", err)}}
	}

	dir, args := path, []string{"."}
	cueFiles := []string{path}
	if info.IsDir() {
		cueFiles, err = FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}}
		}
		dir, args = filepath.Dir(path), []string{"./" + filepath.Base(path)}
	}

	// Load CUE instances
	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	// Check for load errors
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	// Build value from instance
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	expVal := value.LookupPath(cue.ParsePath("experiment"))
	if !expVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoExperiments, Message: "no experiment definitions found in specs"}}
	}

	iter, iterErr := expVal.Fields()
	if iterErr != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating experiments: %v", iterErr)}}
	}
	for iter.Next() {
		spec, compileErr := compiler.CompileExperiment(iter.Value())
		if compileErr != nil {
			errs = append(errs, convertCompileError(compileErr, "experiment."+iter.Label()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Experiments = append(result.Experiments, *spec)
	}

	if len(result.Experiments) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoExperiments, Message: "no experiment definitions found in specs"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// SelectExperiment picks the experiment called name, or the only one when
// name is empty.
func SelectExperiment(specs []ir.ExperimentSpec, name string) (*ir.ExperimentSpec, error) {
	if name == "" {
		if len(specs) != 1 {
			names := make([]string, len(specs))
			for i, s := range specs {
				names[i] = s.Name
			}
			return nil, fmt.Errorf("spec defines %d experiments %v: choose one with --experiment", len(specs), names)
		}
		return &specs[0], nil
	}
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i], nil
		}
	}
	return nil, fmt.Errorf("experiment %q not found", name)
}

// loadExperiment loads the spec at path in fail-fast mode and selects one
// experiment.
func loadExperiment(path, name string) (*ir.ExperimentSpec, error) {
	loadResult, loadErrors := LoadSpecs(path, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	return SelectExperiment(loadResult.Experiments, name)
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// E101-E110 are the compiler's validation codes.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeNoExperiments = "E008" // No experiment definitions

	ErrCodeUnknownField = "E201" // Field not part of the experiment schema
	ErrCodeFieldValue   = "E202" // Field has the wrong type or is not concrete
)

// MapFieldToErrorCode maps a compiler error field to an error code.
// Fields are paths such as "loop.main.method" or "observer.seed"; the last
// segment decides.
func MapFieldToErrorCode(field string) string {
	if strings.Contains(field, "conditions[") {
		return ErrCodeFieldValue
	}
	last := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		last = field[i+1:]
	}
	if i := strings.Index(last, "["); i >= 0 {
		last = last[:i]
	}

	switch last {
	case "loop":
		return compiler.ErrNoLoops
	case "kind":
		return compiler.ErrUnknownKind
	case "method":
		return compiler.ErrInvalidMethod
	case "conditions":
		return compiler.ErrNoConditions
	case "stair_type", "step_type", "step_policy", "estimate":
		return compiler.ErrInvalidOption
	case "seed", "field", "n_reps", "n_trials", "n_reversals", "n_up", "n_down",
		"halve_every", "min_step", "p_threshold", "beta", "delta", "gamma",
		"grain", "range", "step_sizes", "data_types":
		return ErrCodeFieldValue
	case "experiment":
		return ErrCodeNoExperiments
	case "cue":
		return ErrCodeBuildFailed
	case "":
		return ErrCodeGeneric
	default:
		return ErrCodeUnknownField
	}
}
