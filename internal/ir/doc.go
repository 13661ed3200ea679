// Package ir provides the foundational types shared by every trialkit package.
//
// This package contains value, condition, and experiment description types plus
// the error taxonomy. All other internal packages import ir; ir imports nothing
// internal. This keeps ir the bottom layer with no circular dependencies.
//
// Key design constraints:
//   - Conditions are ordered field lists, never maps. Column order in every
//     export derives from field declaration order, resolved once when a
//     ConditionSet is built.
//   - Missing is the explicit "not yet recorded" sentinel. A data slot is never
//     nil.
//   - Canonical JSON (sorted keys, NFC strings, shortest round-trip floats) is the
//     only serialization used for content hashes.
//   - Logical sequence numbers only, never wall-clock timestamps, for ordering
//     persisted events.
package ir
