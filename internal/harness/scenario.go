package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/trialkit/internal/compiler"
	"github.com/roach88/trialkit/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario runs one experiment against its seeded simulated observer and
// asserts on the resulting sequences and tables.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Experiment is an inline experiment definition. Exactly one of
	// Experiment and Spec must be set.
	Experiment *ExperimentDef `yaml:"experiment,omitempty"`

	// Spec is a path to a CUE experiment file, relative to the scenario file.
	Spec string `yaml:"spec,omitempty"`

	// ExperimentName selects one experiment when Spec defines several.
	ExperimentName string `yaml:"experiment_name,omitempty"`

	// RunID is an optional fixed run id.
	// If empty, defaults to "test-run-default" for deterministic golden file comparison.
	RunID string `yaml:"run_id,omitempty"`

	// Assertions validate the final sequences and tables.
	// Supported types: trial_count, coverage, sequence, finished, header, summary_header
	Assertions []Assertion `yaml:"assertions"`
}

// ExperimentDef is the YAML form of ir.ExperimentSpec. Field names match the
// CUE definitions accepted by the compiler.
type ExperimentDef struct {
	Name     string      `yaml:"name,omitempty"`
	Observer ObserverDef `yaml:"observer,omitempty"`
	Loops    []LoopDef   `yaml:"loops"`
}

// ObserverDef configures the simulated observer.
type ObserverDef struct {
	Seed  int64  `yaml:"seed"`
	Field string `yaml:"field,omitempty"`
}

// LoopDef is the YAML form of ir.LoopSpec.
type LoopDef struct {
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"kind,omitempty"`
	Method     string         `yaml:"method,omitempty"`
	Seed       *int64         `yaml:"seed,omitempty"`
	DataTypes  []string       `yaml:"data_types,omitempty"`
	NReps      *int           `yaml:"n_reps,omitempty"`
	Conditions []ConditionDef `yaml:"conditions,omitempty"`

	StairType  string    `yaml:"stair_type,omitempty"`
	NTrials    int       `yaml:"n_trials,omitempty"`
	NReversals int       `yaml:"n_reversals,omitempty"`
	NUp        int       `yaml:"n_up,omitempty"`
	NDown      int       `yaml:"n_down,omitempty"`
	StepType   string    `yaml:"step_type,omitempty"`
	StepSizes  []float64 `yaml:"step_sizes,omitempty"`
	StepPolicy string    `yaml:"step_policy,omitempty"`
	HalveEvery int       `yaml:"halve_every,omitempty"`
	MinStep    float64   `yaml:"min_step,omitempty"`
	PThreshold *float64  `yaml:"p_threshold,omitempty"`
	Beta       *float64  `yaml:"beta,omitempty"`
	Delta      *float64  `yaml:"delta,omitempty"`
	Gamma      *float64  `yaml:"gamma,omitempty"`
	Grain      float64   `yaml:"grain,omitempty"`
	Range      float64   `yaml:"range,omitempty"`
	Estimate   string    `yaml:"estimate,omitempty"`
}

// ConditionDef is one condition row. It decodes from a YAML mapping and
// keeps the keys in document order, which a map would lose.
type ConditionDef struct {
	ir.Condition
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ConditionDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: condition must be a mapping", node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	fields := make([]ir.Field, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, valNode := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate condition field %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		var raw any
		if err := valNode.Decode(&raw); err != nil {
			return fmt.Errorf("line %d: condition field %q: %w", valNode.Line, key.Value, err)
		}
		v, err := ir.ValueOf(raw)
		if err != nil {
			return fmt.Errorf("line %d: condition field %q: %w", valNode.Line, key.Value, err)
		}
		fields = append(fields, ir.Field{Name: key.Value, Value: v})
	}
	c.Condition = ir.NewCondition(fields...)
	return nil
}

// Assertion validates a sequence or table of the finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trial_count": Check a loop (or the whole run) presented N trials
	// - "coverage": Check every condition of a loop appears exactly N times
	// - "sequence": Check a loop's condition index order
	// - "finished": Check a loop ran to exhaustion
	// - "header": Check the wide table columns
	// - "summary_header": Check a loop's summary table columns
	Type string `yaml:"type"`

	// Loop names the loop under test. Optional for trial_count and header,
	// where an empty loop means the whole run.
	Loop string `yaml:"loop,omitempty"`

	// Count is the expected number of trials (trial_count) or of
	// occurrences per condition (coverage).
	Count int `yaml:"count,omitempty"`

	// Sequence is the expected condition index order (used by sequence).
	Sequence []int `yaml:"sequence,omitempty"`

	// Columns is the expected header (used by header and summary_header).
	Columns []string `yaml:"columns,omitempty"`
}

// Assertion type constants.
const (
	AssertTrialCount    = "trial_count"
	AssertCoverage      = "coverage"
	AssertSequence      = "sequence"
	AssertFinished      = "finished"
	AssertHeader        = "header"
	AssertSummaryHeader = "summary_header"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Spec path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve spec path relative to the scenario BEFORE validation
	if scenario.Spec != "" && !filepath.IsAbs(scenario.Spec) {
		scenario.Spec = filepath.Join(filepath.Dir(path), scenario.Spec)
	}

	// Validate required fields (now with resolved paths)
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// ExperimentSpec returns the experiment the scenario runs, compiling the CUE
// file when the scenario references one.
func (s *Scenario) ExperimentSpec() (*ir.ExperimentSpec, error) {
	if s.Experiment != nil {
		spec := s.Experiment.Spec()
		if spec.Name == "" {
			spec.Name = s.Name
		}
		return &spec, nil
	}

	specs, err := compiler.CompileFile(s.Spec)
	if err != nil {
		return nil, err
	}
	if s.ExperimentName == "" {
		if len(specs) != 1 {
			return nil, fmt.Errorf("%s defines %d experiments: set experiment_name", s.Spec, len(specs))
		}
		return &specs[0], nil
	}
	for i := range specs {
		if specs[i].Name == s.ExperimentName {
			return &specs[i], nil
		}
	}
	return nil, fmt.Errorf("experiment %q not found in %s", s.ExperimentName, s.Spec)
}

// Spec converts the definition to an ir.ExperimentSpec.
func (d *ExperimentDef) Spec() ir.ExperimentSpec {
	spec := ir.ExperimentSpec{
		Name:     d.Name,
		Observer: ir.ObserverSpec{Seed: d.Observer.Seed, Field: d.Observer.Field},
	}
	for _, l := range d.Loops {
		spec.Loops = append(spec.Loops, l.Spec())
	}
	return spec
}

// Spec converts the definition to an ir.LoopSpec.
func (l LoopDef) Spec() ir.LoopSpec {
	kind := ir.LoopKind(l.Kind)
	if kind == "" {
		kind = ir.LoopTrials
	}
	var conds []ir.Condition
	for _, c := range l.Conditions {
		conds = append(conds, c.Condition)
	}
	return ir.LoopSpec{
		Name:       l.Name,
		Kind:       kind,
		Conditions: conds,
		Method:     l.Method,
		Seed:       l.Seed,
		DataTypes:  l.DataTypes,
		NReps:      l.NReps,
		StairType:  l.StairType,
		NTrials:    l.NTrials,
		NReversals: l.NReversals,
		NUp:        l.NUp,
		NDown:      l.NDown,
		StepType:   l.StepType,
		StepSizes:  l.StepSizes,
		StepPolicy: l.StepPolicy,
		HalveEvery: l.HalveEvery,
		MinStep:    l.MinStep,
		PThreshold: l.PThreshold,
		Beta:       l.Beta,
		Delta:      l.Delta,
		Gamma:      l.Gamma,
		Grain:      l.Grain,
		Range:      l.Range,
		Estimate:   l.Estimate,
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Experiment == nil && s.Spec == "":
		return fmt.Errorf("one of experiment or spec is required")
	case s.Experiment != nil && s.Spec != "":
		return fmt.Errorf("experiment and spec are mutually exclusive")
	}

	if s.Experiment != nil {
		if len(s.Experiment.Loops) == 0 {
			return fmt.Errorf("experiment.loops is required and must be non-empty")
		}
		for i, l := range s.Experiment.Loops {
			if l.Name == "" {
				return fmt.Errorf("experiment.loops[%d]: name is required", i)
			}
		}
	}

	// Validate spec path exists
	if s.Spec != "" {
		if _, err := os.Stat(s.Spec); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", s.Spec)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	// Validate assertions
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTrialCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trial_count", index)
		}
	case AssertCoverage:
		if a.Loop == "" {
			return fmt.Errorf("assertions[%d]: loop is required for coverage", index)
		}
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be positive for coverage", index)
		}
	case AssertSequence:
		if a.Loop == "" {
			return fmt.Errorf("assertions[%d]: loop is required for sequence", index)
		}
		if len(a.Sequence) == 0 {
			return fmt.Errorf("assertions[%d]: sequence is required for sequence", index)
		}
	case AssertFinished:
		if a.Loop == "" {
			return fmt.Errorf("assertions[%d]: loop is required for finished", index)
		}
	case AssertHeader:
		if len(a.Columns) == 0 {
			return fmt.Errorf("assertions[%d]: columns is required for header", index)
		}
	case AssertSummaryHeader:
		if a.Loop == "" {
			return fmt.Errorf("assertions[%d]: loop is required for summary_header", index)
		}
		if len(a.Columns) == 0 {
			return fmt.Errorf("assertions[%d]: columns is required for summary_header", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
