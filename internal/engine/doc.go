// Package engine runs experiments.
//
// An ir.ExperimentSpec lists loops. The engine resolves every unset seed,
// builds each loop (a trials.Handler or a multistair.Coordinator), registers
// it with an experiment.Registry, and drives it to exhaustion against a
// Responder: a simulated observer in unattended runs and scenario tests.
//
// Loops run one after another on the calling goroutine. Each presented trial
// and each staircase response is stamped with the next value of the logical
// clock and, when a store is configured, appended to the SQLite run log.
//
// Because every random draw comes from a seed recorded in the stored spec,
// Verify can rebuild a stored run and check that the regenerated trial
// orders and staircase intensities match the log exactly.
package engine
