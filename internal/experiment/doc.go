// Package experiment ties loops into a named registry and builds the
// tabular views exporters consume.
//
// The Registry is pure bookkeeping: it keeps registered loops in order under
// unique names and unions their condition fields and data types. Table
// builders turn a loop or the whole registry into ordered rows:
//
//   - WideTable: one row per trial of a loop, TrialNumber first.
//   - SummaryTable: one row per condition with <name>_mean, <name>_raw,
//     <name>_std columns and a trailing order column.
//   - Registry.Wide: every loop's trials with loop-identifying columns.
package experiment
