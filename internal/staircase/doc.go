// Package staircase implements adaptive staircase procedures.
//
// A Staircase proposes an intensity with Next and is told the outcome with
// AddResponse. The two calls must alternate: two Next calls without a
// response, or a response without a pending Next, are usage errors and leave
// the staircase unchanged. Once a stop condition is reached, Finished
// reports true and Next returns ir.ErrExhausted.
//
// Two variants exist. Simple is the transformed up/down staircase with a
// configurable StepPolicy controlling when the step size shrinks. Quest keeps
// a discretized posterior over threshold and proposes its mean, mode, or a
// quantile.
package staircase
