package experiment

import (
	"slices"

	"github.com/roach88/trialkit/internal/datastore"
	"github.com/roach88/trialkit/internal/ir"
)

// Table is an ordered tabular view: column names plus rows of cells in
// column order.
type Table struct {
	Columns []string
	Rows    [][]ir.Value
}

// Column returns every cell of the named column, or nil if absent.
func (t Table) Column(name string) []ir.Value {
	i := slices.Index(t.Columns, name)
	if i < 0 {
		return nil
	}
	out := make([]ir.Value, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// ColTrialNumber heads the wide table. Trial numbers are 1-based.
const ColTrialNumber = "TrialNumber"

// WideTable builds one row per presented trial of loop: TrialNumber, the
// condition fields in declaration order, then data types in declaration
// order.
func WideTable(loop Loop) Table {
	fields := loop.ConditionFields()
	types := loop.DataTypes()

	cols := append([]string{ColTrialNumber}, fields...)
	cols = append(cols, types...)

	t := Table{Columns: cols}
	for _, e := range loop.Entries() {
		row := make([]ir.Value, 0, len(cols))
		row = append(row, ir.Int(e.N+1))
		row = appendConditionCells(row, e.Condition, fields)
		row = appendDataCells(row, e, types)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// SummaryOptions selects the condition columns of a summary table.
type SummaryOptions struct {
	// StimOut lists condition fields to lead each row with. nil means every
	// field; an empty non-nil slice means none.
	StimOut []string
}

// Summary column names and suffixes.
const (
	ColN       = datastore.ColumnN
	ColOrder   = datastore.ColumnOrder
	SuffixMean = "_mean"
	SuffixRaw  = "_raw"
	SuffixStd  = "_std"
)

// SummaryHeader returns the summary columns for the given stimulus fields
// and data types.
func SummaryHeader(stimOut, types []string) []string {
	cols := append(slices.Clone(stimOut), ColN)
	for _, name := range types {
		cols = append(cols, name+SuffixMean, name+SuffixRaw, name+SuffixStd)
	}
	return append(cols, ColOrder)
}

// SummaryTable builds one row per presented condition, in first-encountered
// order.
func SummaryTable(s Summarizer, opts SummaryOptions) Table {
	stim := opts.StimOut
	if stim == nil {
		stim = s.ConditionFields()
	}
	types := s.DataTypes()
	conds := s.Conditions()

	t := Table{Columns: SummaryHeader(stim, types)}
	for _, cs := range s.Summary() {
		row := make([]ir.Value, 0, len(t.Columns))
		row = appendConditionCells(row, conds.At(cs.Index), stim)
		row = append(row, ir.Int(cs.N))
		for _, name := range types {
			st := cs.Stats[name]
			row = append(row, st.MeanValue(), st.Raw, st.StdValue())
		}
		row = append(row, ir.Int(cs.Order))
		t.Rows = append(t.Rows, row)
	}
	return t
}

func appendConditionCells(row []ir.Value, cond ir.Condition, fields []string) []ir.Value {
	for _, f := range fields {
		v, ok := cond.Get(f)
		if !ok {
			v = ir.Missing{}
		}
		row = append(row, v)
	}
	return row
}

func appendDataCells(row []ir.Value, e ir.Entry, types []string) []ir.Value {
	for _, name := range types {
		row = append(row, e.Value(name))
	}
	return row
}
