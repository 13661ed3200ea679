package multistair

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/roach88/trialkit/internal/datastore"
	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/schedule"
	"github.com/roach88/trialkit/internal/staircase"
)

// Method is the interleaving policy.
type Method string

const (
	// Random draws uniformly among active staircases on every trial.
	Random Method = "random"

	// Sequential visits active staircases round-robin in condition order.
	Sequential Method = "sequential"
)

// ParseMethod converts an interleaving policy name. "" defaults to Random.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", string(Random):
		return Random, nil
	case string(Sequential):
		return Sequential, nil
	default:
		return "", ir.Configf("multistair", "", "method", "unknown interleave method %q: must be random or sequential", s)
	}
}

// Data types every coordinator records.
const (
	DataIntensity = "intensity"
	DataResponse  = "response"
)

// Config holds construction parameters for a Coordinator.
type Config struct {
	Name      string
	StairType staircase.Type
	Method    Method

	// Conditions has one row per staircase; see staircase.New for the
	// columns it reads.
	Conditions *ir.ConditionSet

	// NTrials is the per-staircase trial bound used when neither the
	// condition nor the template sets one.
	NTrials int
	Seed    int64

	Template staircase.Template
}

// Trial is one interleaved presentation.
type Trial struct {
	// N is the zero-based position in the coordinator's stream.
	N int

	// Stair is the staircase id (its condition index); StairTrial is the
	// staircase's own trial count before this trial.
	Stair      int
	StairTrial int

	Intensity float64
	Condition ir.Condition
}

type record struct {
	trial  Trial
	values map[string]ir.Value
}

// Coordinator drives a set of staircases as one loop.
type Coordinator struct {
	name       string
	stairType  staircase.Type
	method     Method
	seed       int64
	conditions *ir.ConditionSet

	stairs []staircase.Staircase
	active []int // ids of unfinished staircases, ascending
	rr     int   // round-robin position in active
	rng    *rand.Rand

	pending       *Trial
	pendingValues map[string]ir.Value
	records       []record
	dataTypes     []string
	err           error
}

// New builds one staircase per condition.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Conditions == nil || cfg.Conditions.Len() == 0 {
		return nil, ir.Configf("multistair", cfg.Name, "conditions", "condition set must not be empty")
	}
	if cfg.NTrials < 0 {
		return nil, ir.Configf("multistair", cfg.Name, "nTrials", "must not be negative, got %d", cfg.NTrials)
	}
	method, err := ParseMethod(string(cfg.Method))
	if err != nil {
		return nil, rename(err, cfg.Name)
	}
	stairType, err := staircase.ParseType(string(cfg.StairType))
	if err != nil {
		return nil, rename(err, cfg.Name)
	}

	tpl := cfg.Template
	if tpl.Simple.NTrials == 0 {
		tpl.Simple.NTrials = cfg.NTrials
	}
	if tpl.Quest.NTrials == 0 {
		tpl.Quest.NTrials = cfg.NTrials
	}

	c := &Coordinator{
		name:       cfg.Name,
		stairType:  stairType,
		method:     method,
		seed:       cfg.Seed,
		conditions: cfg.Conditions,
		stairs:     make([]staircase.Staircase, cfg.Conditions.Len()),
		active:     make([]int, cfg.Conditions.Len()),
		rng:        schedule.NewSource(cfg.Seed),
		dataTypes:  []string{DataIntensity, DataResponse},
	}
	for i := range c.stairs {
		sc, err := staircase.New(stairType, cfg.Conditions.At(i), tpl)
		if err != nil {
			return nil, fmt.Errorf("multistair %q: staircase %d: %w", cfg.Name, i, err)
		}
		c.stairs[i] = sc
		c.active[i] = i
	}
	return c, nil
}

func rename(err error, name string) error {
	if ce, ok := err.(*ir.ConfigurationError); ok {
		ce.Component = "multistair"
		ce.Name = name
	}
	return err
}

// Next selects an active staircase and returns its intensity. It fails with
// a UsageError while a response is pending and returns ir.ErrExhausted once
// every staircase has finished.
func (c *Coordinator) Next() (Trial, error) {
	if c.pending != nil {
		return Trial{}, c.usage("Next", c.pending.Stair, "response pending for the previous trial")
	}
	if len(c.active) == 0 {
		return Trial{}, ir.ErrExhausted
	}

	var pos int
	switch c.method {
	case Sequential:
		pos = c.rr % len(c.active)
	default:
		pos = c.rng.IntN(len(c.active))
	}
	id := c.active[pos]
	sc := c.stairs[id]

	intensity, err := sc.Next()
	if err != nil {
		return Trial{}, fmt.Errorf("multistair %q: staircase %d: %w", c.name, id, err)
	}
	t := Trial{
		N:          len(c.records),
		Stair:      id,
		StairTrial: sc.TrialCount(),
		Intensity:  intensity,
		Condition:  c.conditions.At(id),
	}
	c.pending = &t
	c.rr = pos
	return t, nil
}

// AddData routes the response for the pending trial to its staircase and
// retires the staircase if it finished.
func (c *Coordinator) AddData(correct bool) error {
	if c.pending == nil {
		return c.usage("AddData", -1, "no pending trial; call Next first")
	}
	t := *c.pending
	if err := c.stairs[t.Stair].AddResponse(correct); err != nil {
		return fmt.Errorf("multistair %q: staircase %d: %w", c.name, t.Stair, err)
	}

	resp := ir.Int(0)
	if correct {
		resp = 1
	}
	values := map[string]ir.Value{
		DataIntensity: ir.Float(t.Intensity),
		DataResponse:  resp,
	}
	for k, v := range c.pendingValues {
		values[k] = v
	}
	c.records = append(c.records, record{trial: t, values: values})
	c.pending = nil
	c.pendingValues = nil

	pos := slices.Index(c.active, t.Stair)
	if c.stairs[t.Stair].Finished() {
		c.active = slices.Delete(c.active, pos, pos+1)
		c.rr = pos // the next staircase slid into this slot
	} else {
		c.rr = pos + 1
	}
	return nil
}

// AddOtherData records an extra value against the pending trial, declaring
// the data type if unseen.
func (c *Coordinator) AddOtherData(name string, v ir.Value) error {
	if c.pending == nil {
		return c.usage("AddOtherData", -1, "no pending trial; call Next first")
	}
	if datastore.IsReserved(name) || name == DataIntensity || name == DataResponse || name == "" {
		return c.usage("AddOtherData", c.pending.Stair, fmt.Sprintf("data type name %q is reserved", name))
	}
	if !slices.Contains(c.dataTypes, name) {
		c.dataTypes = append(c.dataTypes, name)
	}
	if c.pendingValues == nil {
		c.pendingValues = make(map[string]ir.Value)
	}
	c.pendingValues[name] = v
	return nil
}

// All yields (intensity, condition) pairs until every staircase finishes.
// The loop body must call AddData once per pair. Iteration also stops on a
// protocol error, which Err reports.
func (c *Coordinator) All() iter.Seq2[float64, ir.Condition] {
	return func(yield func(float64, ir.Condition) bool) {
		for {
			t, err := c.Next()
			if err != nil {
				if !ir.IsExhausted(err) {
					c.err = err
				}
				return
			}
			if !yield(t.Intensity, t.Condition) {
				return
			}
		}
	}
}

// Err returns the error that ended the last All iteration, if any.
func (c *Coordinator) Err() error { return c.err }

func (c *Coordinator) usage(op string, stair int, msg string) error {
	return &ir.UsageError{
		Component: "multistair",
		Name:      c.name,
		Op:        op,
		Trial:     len(c.records),
		Stair:     stair,
		Message:   msg,
	}
}

// Finished reports whether every staircase has reached its stop condition.
func (c *Coordinator) Finished() bool { return len(c.active) == 0 }

// Active returns the ids of unfinished staircases.
func (c *Coordinator) Active() []int { return slices.Clone(c.active) }

// Staircases returns the arena in condition order.
func (c *Coordinator) Staircases() []staircase.Staircase { return slices.Clone(c.stairs) }

// Current returns the pending trial, if any.
func (c *Coordinator) Current() (Trial, bool) {
	if c.pending == nil {
		return Trial{}, false
	}
	return *c.pending, true
}

// Name returns the coordinator's name.
func (c *Coordinator) Name() string { return c.name }

// Method returns the interleaving policy.
func (c *Coordinator) Method() Method { return c.method }

// StairType returns the staircase variant.
func (c *Coordinator) StairType() staircase.Type { return c.stairType }

// Seed returns the interleaving seed.
func (c *Coordinator) Seed() int64 { return c.seed }

// Conditions returns the shared condition set.
func (c *Coordinator) Conditions() *ir.ConditionSet { return c.conditions }

// ConditionFields returns the condition column names in export order.
func (c *Coordinator) ConditionFields() []string { return c.conditions.Fields() }

// DataTypes returns recorded data type names in declaration order.
func (c *Coordinator) DataTypes() []string { return slices.Clone(c.dataTypes) }

// Presented returns the number of completed trials.
func (c *Coordinator) Presented() int { return len(c.records) }

// Sequence returns the staircase id visited on every completed trial.
func (c *Coordinator) Sequence() []int {
	out := make([]int, len(c.records))
	for i, r := range c.records {
		out[i] = r.trial.Stair
	}
	return out
}

// Entries returns one row per completed trial. Rep carries the staircase's
// own trial count and TrialInRep the staircase id.
func (c *Coordinator) Entries() []ir.Entry {
	out := make([]ir.Entry, len(c.records))
	for i, r := range c.records {
		data := make([]ir.Field, len(c.dataTypes))
		for j, name := range c.dataTypes {
			v, ok := r.values[name]
			if !ok {
				v = ir.Missing{}
			}
			data[j] = ir.Field{Name: name, Value: v}
		}
		out[i] = ir.Entry{
			Loop:       c.name,
			N:          r.trial.N,
			Rep:        r.trial.StairTrial,
			TrialInRep: r.trial.Stair,
			Index:      r.trial.Stair,
			Condition:  r.trial.Condition,
			Data:       data,
		}
	}
	return out
}

// Summary aggregates completed trials per staircase.
func (c *Coordinator) Summary() []datastore.ConditionSummary {
	store := datastore.New(len(c.records))
	for _, name := range c.dataTypes {
		dt, err := store.Declare(name)
		if err != nil {
			continue
		}
		for i, r := range c.records {
			if v, ok := r.values[name]; ok {
				_ = store.Set(dt, i, v)
			}
		}
	}
	return store.Summarize(c.Sequence(), len(c.records))
}
