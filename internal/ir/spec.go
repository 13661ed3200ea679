package ir

// LoopKind selects which engine component drives a loop.
type LoopKind string

const (
	// LoopTrials is a simple trial handler over a condition set.
	LoopTrials LoopKind = "trials"

	// LoopStaircase is a multi-staircase coordinator with one staircase per
	// condition.
	LoopStaircase LoopKind = "staircase"
)

// ExperimentSpec is the declarative description of one experiment: an
// ordered list of loops plus the simulated observer used for unattended runs.
// Produced by the CUE compiler and by harness scenarios.
type ExperimentSpec struct {
	Name     string       `json:"name"`
	Loops    []LoopSpec   `json:"loops"`
	Observer ObserverSpec `json:"observer"`
}

// LoopSpec describes one loop. Fields that do not apply to Kind are ignored.
type LoopSpec struct {
	Name       string      `json:"name"`
	Kind       LoopKind    `json:"kind"`
	Conditions []Condition `json:"conditions"`

	// Method is the sequencing method for trial loops
	// (sequential|random|fullRandom) or the interleaving policy for
	// staircase loops (random|sequential).
	Method string `json:"method"`

	// Seed seeds the loop's exclusively owned PRNG. nil means "draw one";
	// the engine resolves and records it before building the loop.
	Seed *int64 `json:"seed,omitempty"`

	// DataTypes are pre-declared so their columns exist even when empty.
	DataTypes []string `json:"data_types,omitempty"`

	// NReps is the repetition count for trial loops. nil means 1; an
	// explicit value below 1 is a configuration error.
	NReps *int `json:"n_reps,omitempty"`

	// Staircase parameters. Per-condition columns with the same names
	// (startVal, nUp, stepSizes, ...) override these defaults.
	StairType  string    `json:"stair_type,omitempty"`
	NTrials    int       `json:"n_trials,omitempty"`
	NReversals int       `json:"n_reversals,omitempty"`
	NUp        int       `json:"n_up,omitempty"`
	NDown      int       `json:"n_down,omitempty"`
	StepType   string    `json:"step_type,omitempty"`
	StepSizes  []float64 `json:"step_sizes,omitempty"`
	StepPolicy string    `json:"step_policy,omitempty"`
	HalveEvery int       `json:"halve_every,omitempty"`
	MinStep    float64   `json:"min_step,omitempty"`
	Grain      float64   `json:"grain,omitempty"`
	Range      float64   `json:"range,omitempty"`
	Estimate   string    `json:"estimate,omitempty"`

	// Quest's Weibull parameters. nil takes the staircase default; 0 is a
	// valid setting (gamma 0 is a yes/no task).
	PThreshold *float64 `json:"p_threshold,omitempty"`
	Beta       *float64 `json:"beta,omitempty"`
	Delta      *float64 `json:"delta,omitempty"`
	Gamma      *float64 `json:"gamma,omitempty"`
}

// ObserverSpec configures the seeded simulated observer.
type ObserverSpec struct {
	Seed int64 `json:"seed"`

	// Field is the condition column compared against a uniform draw to
	// decide correctness. Defaults to "startVal".
	Field string `json:"field,omitempty"`
}

// SeedValue returns the loop's seed, or 0 when unresolved.
func (l LoopSpec) SeedValue() int64 {
	if l.Seed == nil {
		return 0
	}
	return *l.Seed
}

// RepsValue returns the loop's repetition count, 1 when unset.
func (l LoopSpec) RepsValue() int {
	if l.NReps == nil {
		return 1
	}
	return *l.NReps
}

// Seed returns a pointer to s, for building specs in code.
func Seed(s int64) *int64 {
	return &s
}

// Ptr returns a pointer to v, for optional spec fields set in code.
func Ptr[T any](v T) *T {
	return &v
}
