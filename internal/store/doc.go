// Package store provides SQLite-backed durable storage for trialkit run logs.
//
// A run log records everything needed to audit and replay an experiment run:
//   - Runs: the resolved ExperimentSpec (every seed filled in), its hash, and
//     the engine version that executed it
//   - Loops: one row per loop with its seed and the hash of the order it
//     presented
//   - Trials: one row per presented trial with its condition and recorded data
//   - Stair Steps: one row per staircase response (intensity shown, answer)
//
// # Ordering
//
// All ordering uses seq INTEGER (the engine's logical clock), never
// timestamps, and every read query ends in ORDER BY seq ASC plus a stable
// tiebreaker. Reads return empty slices rather than nil.
//
// # Idempotency
//
// Writes use INSERT ... ON CONFLICT DO NOTHING on the natural key, so a
// replayed write of the same record is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: Trials and steps must belong to a stored run
package store
