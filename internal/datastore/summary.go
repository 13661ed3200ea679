package datastore

import (
	"math"

	"github.com/roach88/trialkit/internal/ir"
)

// Stat aggregates one data type over the presentations of one condition.
type Stat struct {
	// Raw holds every presented slot in presentation order, Missing included.
	Raw ir.List

	// Recorded counts the non-Missing slots in Raw.
	Recorded int

	// Numeric is true when every recorded value is numeric and at least one
	// value was recorded. Mean and Std are only meaningful when Numeric.
	Numeric bool

	Mean float64

	// Std is the population standard deviation (divisor n).
	Std float64
}

// MeanValue returns Mean as a Value, or Missing when not Numeric.
func (s Stat) MeanValue() ir.Value {
	if !s.Numeric {
		return ir.Missing{}
	}
	return ir.Float(s.Mean)
}

// StdValue returns Std as a Value, or Missing when not Numeric.
func (s Stat) StdValue() ir.Value {
	if !s.Numeric {
		return ir.Missing{}
	}
	return ir.Float(s.Std)
}

// ConditionSummary is one summary row: a condition and its per-type stats.
type ConditionSummary struct {
	// Index is the condition's position in the ConditionSet.
	Index int

	// N is the number of presented trials for the condition.
	N int

	// Order is the trial position at which the condition was first presented.
	Order int

	Stats map[string]Stat
}

// Summarize groups the first presented trials of sequence by condition
// index, in first-encountered order, and aggregates every declared data type.
// presented is clamped to [0, len(sequence)].
func (s *Store) Summarize(sequence []int, presented int) []ConditionSummary {
	presented = max(0, min(presented, len(sequence), s.nTrials))

	var out []ConditionSummary
	pos := make(map[int]int)
	for t := 0; t < presented; t++ {
		idx := sequence[t]
		i, ok := pos[idx]
		if !ok {
			i = len(out)
			pos[idx] = i
			out = append(out, ConditionSummary{
				Index: idx,
				Order: t,
				Stats: make(map[string]Stat, len(s.names)),
			})
		}
		out[i].N++
		for c, name := range s.names {
			st := out[i].Stats[name]
			st.Raw = append(st.Raw, s.columns[c][t])
			out[i].Stats[name] = st
		}
	}

	for i := range out {
		for name, st := range out[i].Stats {
			out[i].Stats[name] = finish(st)
		}
	}
	return out
}

func finish(st Stat) Stat {
	var vals []float64
	numeric := true
	for _, v := range st.Raw {
		if ir.IsMissing(v) {
			continue
		}
		st.Recorded++
		f, ok := ir.AsFloat(v)
		if !ok {
			numeric = false
			continue
		}
		vals = append(vals, f)
	}
	if !numeric || len(vals) == 0 {
		return st
	}
	st.Numeric = true
	st.Mean, st.Std = meanStd(vals)
	return st
}

// meanStd returns the arithmetic mean and population standard deviation.
func meanStd(vals []float64) (float64, float64) {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(vals)))
}
