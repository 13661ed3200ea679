package trials

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/trialkit/internal/datastore"
	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/schedule"
)

// State is the handler's lifecycle state.
type State int

const (
	NotStarted State = iota
	Running
	Exhausted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds construction parameters for a Handler.
type Config struct {
	// Name identifies the handler in errors and exports.
	Name string

	Conditions *ir.ConditionSet
	NReps      int

	// Method defaults to schedule.Random when empty.
	Method schedule.Method
	Seed   int64

	// DataTypes are declared up front so their columns exist in exports.
	DataTypes []string
}

// Trial is one scheduled presentation.
type Trial struct {
	// N is the zero-based position in the sequence.
	N int

	// Rep is the repetition block, TrialInRep the position inside it.
	Rep        int
	TrialInRep int

	// Index is the condition's position in the ConditionSet.
	Index     int
	Condition ir.Condition
}

// Handler drives one loop over a ConditionSet.
type Handler struct {
	name       string
	conditions *ir.ConditionSet
	nReps      int
	method     schedule.Method
	seed       int64
	declared   []string

	sequence []int
	cursor   int // position of the current trial, -1 when none
	state    State
	data     *datastore.Store
}

// New builds a handler and generates its trial index sequence.
// Fails with a ConfigurationError for an empty or nil condition set,
// nReps < 1, an unknown method, or a reserved data type name.
func New(cfg Config) (*Handler, error) {
	if cfg.Conditions == nil || cfg.Conditions.Len() == 0 {
		return nil, ir.Configf("trials", cfg.Name, "conditions", "condition set must not be empty")
	}
	method := cfg.Method
	if method == "" {
		method = schedule.Random
	}

	seq, err := schedule.Generate(cfg.Conditions.Len(), cfg.NReps, method, cfg.Seed)
	if err != nil {
		var ce *ir.ConfigurationError
		if errors.As(err, &ce) {
			ce.Component = "trials"
			ce.Name = cfg.Name
		}
		return nil, err
	}

	h := &Handler{
		name:       cfg.Name,
		conditions: cfg.Conditions,
		nReps:      cfg.NReps,
		method:     method,
		seed:       cfg.Seed,
		declared:   slices.Clone(cfg.DataTypes),
		sequence:   seq,
	}
	if err := h.reset(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) reset() error {
	h.cursor = -1
	h.state = NotStarted
	h.data = datastore.New(len(h.sequence))
	for _, name := range h.declared {
		if _, err := h.data.Declare(name); err != nil {
			return ir.Configf("trials", h.name, "dataTypes", "%v", err)
		}
	}
	return nil
}

// Next advances to the next trial. After the last trial it moves to
// Exhausted and returns ir.ErrExhausted, and keeps returning it.
func (h *Handler) Next() (Trial, error) {
	if h.state == Exhausted {
		return Trial{}, ir.ErrExhausted
	}
	if h.cursor+1 >= len(h.sequence) {
		h.state = Exhausted
		return Trial{}, ir.ErrExhausted
	}
	h.cursor++
	h.state = Running
	return h.trialAt(h.cursor), nil
}

func (h *Handler) trialAt(pos int) Trial {
	n := h.conditions.Len()
	idx := h.sequence[pos]
	return Trial{
		N:          pos,
		Rep:        pos / n,
		TrialInRep: pos % n,
		Index:      idx,
		Condition:  h.conditions.At(idx),
	}
}

// All yields trials until the handler is exhausted.
// Breaking out of the loop leaves the handler Running at the last yielded trial.
func (h *Handler) All() iter.Seq[Trial] {
	return func(yield func(Trial) bool) {
		for {
			t, err := h.Next()
			if err != nil {
				return
			}
			if !yield(t) {
				return
			}
		}
	}
}

// AddDataType declares a data type so its column exists even when no value
// is ever recorded. Reserved names (n, order) are rejected.
func (h *Handler) AddDataType(name string) error {
	if _, err := h.data.Declare(name); err != nil {
		return h.usage("AddDataType", err)
	}
	if !slices.Contains(h.declared, name) {
		h.declared = append(h.declared, name)
	}
	return nil
}

// AddData records value for the current trial, declaring name if unseen.
// Fails with a UsageError when no trial is current: before the first Next,
// after Reset, or once the handler is exhausted.
func (h *Handler) AddData(name string, value ir.Value) error {
	if h.state != Running {
		return &ir.UsageError{
			Component: "trials", Name: h.name, Op: "AddData",
			Trial: h.cursor, Stair: -1,
			Message: fmt.Sprintf("no current trial (state=%s)", h.state),
		}
	}
	dt, err := h.data.Declare(name)
	if err != nil {
		return h.usage("AddData", err)
	}
	return h.data.Set(dt, h.cursor, value)
}

func (h *Handler) usage(op string, err error) error {
	var ue *ir.UsageError
	if errors.As(err, &ue) {
		return &ir.UsageError{
			Component: "trials", Name: h.name, Op: op,
			Trial: h.cursor, Stair: -1,
			Message: ue.Message,
		}
	}
	return err
}

// Reset returns the handler to NotStarted with the identical sequence and a
// fresh data store. Data types declared so far are declared again.
func (h *Handler) Reset() {
	// declared names were validated when first added
	_ = h.reset()
}

// Equal reports structural equality: same conditions, repetition count,
// method, sequence, position, state, and recorded data. The name is ignored.
func (h *Handler) Equal(o *Handler) bool {
	if h == o {
		return true
	}
	if h == nil || o == nil {
		return false
	}
	return h.nReps == o.nReps &&
		h.method == o.method &&
		h.cursor == o.cursor &&
		h.state == o.state &&
		slices.Equal(h.sequence, o.sequence) &&
		h.conditions.Equal(o.conditions) &&
		h.data.Equal(o.data)
}

// Name returns the handler's name.
func (h *Handler) Name() string { return h.name }

// State returns the lifecycle state.
func (h *Handler) State() State { return h.state }

// Method returns the sequencing method.
func (h *Handler) Method() schedule.Method { return h.method }

// Seed returns the seed the sequence was generated from.
func (h *Handler) Seed() int64 { return h.seed }

// NReps returns the repetition count.
func (h *Handler) NReps() int { return h.nReps }

// Conditions returns the shared, read-only condition set.
func (h *Handler) Conditions() *ir.ConditionSet { return h.conditions }

// Sequence returns a copy of the trial index sequence.
func (h *Handler) Sequence() []int { return slices.Clone(h.sequence) }

// TotalTrials returns the sequence length.
func (h *Handler) TotalTrials() int { return len(h.sequence) }

// Current returns the current trial, if any.
func (h *Handler) Current() (Trial, bool) {
	if h.cursor < 0 {
		return Trial{}, false
	}
	return h.trialAt(h.cursor), true
}

// Presented returns how many trials have been handed out.
func (h *Handler) Presented() int { return h.cursor + 1 }

// Remaining returns how many trials are left after the current one.
func (h *Handler) Remaining() int { return len(h.sequence) - h.cursor - 1 }

// ConditionFields returns the condition column names in export order.
func (h *Handler) ConditionFields() []string { return h.conditions.Fields() }

// DataTypes returns declared data type names in declaration order.
func (h *Handler) DataTypes() []string { return h.data.Names() }

// Data returns the handler's data store. The store stays owned by the handler.
func (h *Handler) Data() *datastore.Store { return h.data }

// Entries returns one row per presented trial.
func (h *Handler) Entries() []ir.Entry {
	out := make([]ir.Entry, 0, h.Presented())
	for pos := 0; pos <= h.cursor; pos++ {
		t := h.trialAt(pos)
		out = append(out, ir.Entry{
			Loop:       h.name,
			N:          t.N,
			Rep:        t.Rep,
			TrialInRep: t.TrialInRep,
			Index:      t.Index,
			Condition:  t.Condition,
			Data:       h.data.Row(pos),
		})
	}
	return out
}

// Summary aggregates presented trials per condition.
func (h *Handler) Summary() []datastore.ConditionSummary {
	return h.data.Summarize(h.sequence, h.Presented())
}
