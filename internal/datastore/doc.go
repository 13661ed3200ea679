// Package datastore records per-trial outcome values keyed by data type.
//
// A Store holds one column per declared data type. Every column has exactly
// one slot per trial, initialized to ir.Missing. Declaring a type is an
// explicit declare-or-create operation that returns a stable DataType handle;
// writing to a handle overwrites the slot for that trial.
//
// Summarize groups presented trials by condition, in first-encountered order,
// and reports the raw values, arithmetic mean, and population standard
// deviation for every data type.
package datastore
