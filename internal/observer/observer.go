// Package observer provides seeded simulated participants for unattended
// runs and scenario tests.
package observer

import (
	"math/rand/v2"

	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/schedule"
	"github.com/roach88/trialkit/internal/trials"
)

// DefaultField is the condition column compared against each draw.
const DefaultField = "startVal"

// Data types written by TrialData.
const (
	DataResp = "resp"
	DataRand = "rand"
)

// Simulated answers from a single seeded generator. Every call consumes
// draws in call order, so a run is reproducible from the observer seed and
// the loop seeds alone.
type Simulated struct {
	rng   *rand.Rand
	field string
}

// NewSimulated builds an observer. An empty field selects DefaultField.
func NewSimulated(seed int64, field string) *Simulated {
	if field == "" {
		field = DefaultField
	}
	return &Simulated{rng: schedule.NewSource(seed), field: field}
}

// FromSpec builds the observer an ExperimentSpec describes.
func FromSpec(spec ir.ObserverSpec) *Simulated {
	return NewSimulated(spec.Seed, spec.Field)
}

// Field returns the compared condition column.
func (s *Simulated) Field() string { return s.field }

// TrialData answers a trial-loop trial with a response label built from the
// condition's first attribute and a uniform random value.
func (s *Simulated) TrialData(loop string, t trials.Trial) []ir.Field {
	resp := DataResp
	if fields := t.Condition.Fields(); len(fields) > 0 {
		resp += ir.FormatValue(fields[0].Value)
	}
	return []ir.Field{
		{Name: DataResp, Value: ir.String(resp)},
		{Name: DataRand, Value: ir.Float(s.rng.Float64())},
	}
}

// Correct reports a correct answer when a uniform draw exceeds the
// condition's field value. Conditions without a numeric field compare
// against the presented intensity instead.
func (s *Simulated) Correct(loop string, intensity float64, cond ir.Condition) bool {
	threshold, ok := cond.Float(s.field)
	if !ok {
		threshold = intensity
	}
	return s.rng.Float64() > threshold
}
