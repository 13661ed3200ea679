package experiment

import (
	"slices"

	"github.com/roach88/trialkit/internal/datastore"
	"github.com/roach88/trialkit/internal/ir"
)

// Loop is anything the registry can export: trial handlers and staircase
// coordinators.
type Loop interface {
	Name() string
	Entries() []ir.Entry
	ConditionFields() []string
	DataTypes() []string
}

// Summarizer is a loop that can aggregate its trials per condition.
type Summarizer interface {
	Loop
	Conditions() *ir.ConditionSet
	Summary() []datastore.ConditionSummary
}

// Registry holds the loops of one experiment run in registration order.
type Registry struct {
	Name  string
	RunID string

	loops  []Loop
	byName map[string]Loop
}

// NewRegistry creates an empty registry.
func NewRegistry(name, runID string) *Registry {
	return &Registry{
		Name:   name,
		RunID:  runID,
		byName: make(map[string]Loop),
	}
}

// Add registers loop. Names must be non-empty and unique.
func (r *Registry) Add(loop Loop) error {
	name := loop.Name()
	if name == "" {
		return ir.Configf("experiment", r.Name, "loop", "loop name must not be empty")
	}
	if _, dup := r.byName[name]; dup {
		return ir.Configf("experiment", r.Name, "loop", "duplicate loop name %q", name)
	}
	r.loops = append(r.loops, loop)
	r.byName[name] = loop
	return nil
}

// Loops returns registered loops in registration order.
func (r *Registry) Loops() []Loop {
	return slices.Clone(r.loops)
}

// Loop looks a loop up by name.
func (r *Registry) Loop(name string) (Loop, bool) {
	l, ok := r.byName[name]
	return l, ok
}

// ConditionFields returns the union of condition fields across loops, in
// first-seen order.
func (r *Registry) ConditionFields() []string {
	return r.union(Loop.ConditionFields)
}

// DataTypes returns the union of data types across loops, in first-seen
// order.
func (r *Registry) DataTypes() []string {
	return r.union(Loop.DataTypes)
}

func (r *Registry) union(names func(Loop) []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range r.loops {
		for _, n := range names(l) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// Wide column names that identify a row's loop and position.
const (
	ColLoop       = "loop"
	ColThisRepN   = "thisRepN"
	ColThisTrialN = "thisTrialN"
	ColThisN      = "thisN"
)

// Wide builds one table over every registered loop. Columns are the loop
// identifiers, then the union of condition fields, then the union of data
// types. Cells a loop does not have are Missing.
func (r *Registry) Wide() Table {
	fields := r.ConditionFields()
	types := r.DataTypes()

	cols := []string{ColLoop, ColThisRepN, ColThisTrialN, ColThisN}
	cols = append(cols, fields...)
	cols = append(cols, types...)

	t := Table{Columns: cols}
	for _, l := range r.loops {
		for _, e := range l.Entries() {
			row := make([]ir.Value, 0, len(cols))
			row = append(row, ir.String(e.Loop), ir.Int(e.Rep), ir.Int(e.TrialInRep), ir.Int(e.N))
			row = appendConditionCells(row, e.Condition, fields)
			row = appendDataCells(row, e, types)
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}
