package datastore

import (
	"fmt"
	"slices"

	"github.com/roach88/trialkit/internal/ir"
)

// Reserved column names. They are produced by summary export and cannot be
// declared as data types.
const (
	ColumnN     = "n"
	ColumnOrder = "order"
)

// IsReserved reports whether name collides with a reserved summary column.
func IsReserved(name string) bool {
	return name == ColumnN || name == ColumnOrder
}

// DataType is a stable handle to a declared column.
type DataType struct {
	name  string
	index int
}

// Name returns the data type's name.
func (d DataType) Name() string { return d.name }

// Index returns the declaration position of the data type.
func (d DataType) Index() int { return d.index }

// Store maps data type names to per-trial value slots.
// Exclusively owned by its trial handler or coordinator.
type Store struct {
	nTrials int
	names   []string
	columns [][]ir.Value
	byName  map[string]int
}

// New creates a store with nTrials slots per column.
func New(nTrials int) *Store {
	return &Store{
		nTrials: nTrials,
		byName:  make(map[string]int),
	}
}

// Declare returns the handle for name, creating the column if unseen.
// Fails with a UsageError for empty or reserved names.
func (s *Store) Declare(name string) (DataType, error) {
	if name == "" {
		return DataType{}, &ir.UsageError{
			Component: "datastore", Op: "Declare", Trial: -1, Stair: -1,
			Message: "data type name must not be empty",
		}
	}
	if IsReserved(name) {
		return DataType{}, &ir.UsageError{
			Component: "datastore", Op: "Declare", Trial: -1, Stair: -1,
			Message: fmt.Sprintf("data type name %q is reserved", name),
		}
	}
	if i, ok := s.byName[name]; ok {
		return DataType{name: name, index: i}, nil
	}

	col := make([]ir.Value, s.nTrials)
	for i := range col {
		col[i] = ir.Missing{}
	}
	s.byName[name] = len(s.names)
	s.names = append(s.names, name)
	s.columns = append(s.columns, col)
	return DataType{name: name, index: len(s.names) - 1}, nil
}

// Lookup returns the handle for an already declared name.
func (s *Store) Lookup(name string) (DataType, bool) {
	i, ok := s.byName[name]
	if !ok {
		return DataType{}, false
	}
	return DataType{name: name, index: i}, true
}

// Set writes v into the slot for trial. Later writes for the same trial
// overwrite earlier ones. Out-of-range trials are a UsageError.
func (s *Store) Set(dt DataType, trial int, v ir.Value) error {
	if dt.index < 0 || dt.index >= len(s.columns) || s.names[dt.index] != dt.name {
		return &ir.UsageError{
			Component: "datastore", Op: "Set", Trial: trial, Stair: -1,
			Message: fmt.Sprintf("unknown data type handle %q", dt.name),
		}
	}
	if trial < 0 || trial >= s.nTrials {
		return &ir.UsageError{
			Component: "datastore", Op: "Set", Trial: trial, Stair: -1,
			Message: "trial index out of range",
		}
	}
	if v == nil {
		v = ir.Missing{}
	}
	s.columns[dt.index][trial] = v
	return nil
}

// Get returns the value recorded for name at trial, or Missing.
func (s *Store) Get(name string, trial int) ir.Value {
	i, ok := s.byName[name]
	if !ok || trial < 0 || trial >= s.nTrials {
		return ir.Missing{}
	}
	return s.columns[i][trial]
}

// Names returns data type names in declaration order.
func (s *Store) Names() []string {
	return slices.Clone(s.names)
}

// Column returns a copy of the named column, or nil if undeclared.
func (s *Store) Column(name string) []ir.Value {
	i, ok := s.byName[name]
	if !ok {
		return nil
	}
	return slices.Clone(s.columns[i])
}

// Len returns the number of trial slots per column.
func (s *Store) Len() int {
	return s.nTrials
}

// Row returns the fields recorded for trial in declaration order.
func (s *Store) Row(trial int) []ir.Field {
	row := make([]ir.Field, len(s.names))
	for i, name := range s.names {
		var v ir.Value = ir.Missing{}
		if trial >= 0 && trial < s.nTrials {
			v = s.columns[i][trial]
		}
		row[i] = ir.Field{Name: name, Value: v}
	}
	return row
}

// Equal compares declared names and every slot.
func (s *Store) Equal(o *Store) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.nTrials != o.nTrials || !slices.Equal(s.names, o.names) {
		return false
	}
	for i := range s.columns {
		for t := range s.columns[i] {
			if !ir.EqualValues(s.columns[i][t], o.columns[i][t]) {
				return false
			}
		}
	}
	return true
}
