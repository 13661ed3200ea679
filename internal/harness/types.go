package harness

import (
	"github.com/roach88/trialkit/internal/engine"
	"github.com/roach88/trialkit/internal/experiment"
)

// TableWide keys the run-level wide table in Result.Tables.
const TableWide = "wide"

// WideKey keys a loop's own wide table in Result.Tables.
func WideKey(loop string) string { return "wide:" + loop }

// SummaryKey keys a loop's summary table in Result.Tables.
func SummaryKey(loop string) string { return "summary:" + loop }

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the run replays cleanly and every assertion holds.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Loops holds the engine's per-loop results in run order.
	Loops []engine.LoopResult `json:"loops"`

	// Sequences maps loop name to the condition index order it presented.
	Sequences map[string][]int `json:"sequences"`

	// Finished maps loop name to whether the loop ran to exhaustion.
	Finished map[string]bool `json:"finished"`

	// Conditions maps loop name to the size of its condition set.
	Conditions map[string]int `json:"conditions"`

	// Tables holds the wide and summary views; see TableWide, WideKey and
	// SummaryKey.
	Tables map[string]experiment.Table `json:"-"`

	// Errors contains replay and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(runID string) *Result {
	return &Result{
		Pass:       true,
		RunID:      runID,
		Sequences:  make(map[string][]int),
		Finished:   make(map[string]bool),
		Conditions: make(map[string]int),
		Tables:     make(map[string]experiment.Table),
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TotalTrials returns the trials presented across every loop.
func (r *Result) TotalTrials() int {
	n := 0
	for _, seq := range r.Sequences {
		n += len(seq)
	}
	return n
}
