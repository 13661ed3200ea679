// Package multistair interleaves several staircases into one trial stream.
//
// A Coordinator owns one staircase per condition in an arena and keeps an
// active pool of indices into it. Each step selects an active staircase
// (uniformly at random from a seeded source, or round-robin), returns its
// intensity with the originating condition, and routes the following
// AddData call back to it. Staircases leave the pool when they finish; the
// coordinator is exhausted once the pool is empty.
package multistair
