package store

import "github.com/roach88/trialkit/internal/ir"

// Run is the header record of one experiment run.
type Run struct {
	ID   string
	Name string

	// Spec is the resolved experiment: every loop seed is set, so the spec
	// alone regenerates the run.
	Spec ir.ExperimentSpec

	SpecHash      string
	EngineVersion string
	SpecVersion   string
	Seq           int64
}

// LoopRecord summarizes one loop after it finished.
type LoopRecord struct {
	RunID        string
	Name         string
	Kind         ir.LoopKind
	Seed         int64
	SequenceHash string

	// Trials is the number of trials the loop presented.
	Trials int
	Seq    int64
}

// TrialRecord is one presented trial of a loop.
type TrialRecord struct {
	RunID      string
	Loop       string
	N          int
	Rep        int
	TrialInRep int
	Index      int
	Condition  ir.Condition
	Data       []ir.Field
	Seq        int64
}

// Entry converts the record back to the export shape.
func (r TrialRecord) Entry() ir.Entry {
	return ir.Entry{
		Loop:       r.Loop,
		N:          r.N,
		Rep:        r.Rep,
		TrialInRep: r.TrialInRep,
		Index:      r.Index,
		Condition:  r.Condition,
		Data:       r.Data,
	}
}

// TrialRecordFrom builds a record from an entry.
func TrialRecordFrom(runID string, e ir.Entry, seq int64) TrialRecord {
	return TrialRecord{
		RunID:      runID,
		Loop:       e.Loop,
		N:          e.N,
		Rep:        e.Rep,
		TrialInRep: e.TrialInRep,
		Index:      e.Index,
		Condition:  e.Condition,
		Data:       e.Data,
		Seq:        seq,
	}
}

// StairStep is one staircase response.
type StairStep struct {
	RunID      string
	Loop       string
	N          int
	Stair      int
	StairTrial int
	Intensity  float64
	Correct    bool
	Seq        int64
}
