// Package trials implements the trial handler: a restartable sequence
// producer that combines a ConditionSet, a scheduled trial index sequence,
// and a data store.
//
// A Handler moves through NotStarted, Running, and Exhausted. Next advances
// the cursor and returns the scheduled condition; once the sequence is
// consumed it returns ir.ErrExhausted on every call without touching state.
// AddData writes into the slot of the current trial.
//
// Handlers are single-threaded: a caller pulls one trial, does its own
// work, records outcomes, and pulls the next.
package trials
