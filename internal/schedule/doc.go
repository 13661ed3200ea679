// Package schedule produces trial index sequences for simple trial handlers.
//
// Given N conditions, a repetition count R, a method, and a seed, Generate
// returns the ordered list of condition indices to visit:
//
//   - sequential: [0..N-1] repeated R times, no shuffling
//   - random:     R independent permutations of [0..N-1], block r uses the
//     r-th draw from the seeded generator
//   - fullRandom: the multiset [0..N-1]×R shuffled once as a whole
//
// # Determinism
//
// The PRNG is a PCG (math/rand/v2) seeded with (uint64(seed), 0) and owned by
// a single Generate call. The permutation is an explicit Fisher–Yates shuffle
// so the algorithm is pinned here, not delegated to library internals:
//
//	for i := n-1; i > 0; i-- { j := rng.IntN(i+1); swap(i, j) }
//
// Identical seed and parameters always yield a byte-identical sequence.
package schedule
