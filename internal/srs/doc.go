// Package srs provides the canonical domain types for torii.
//
// This package contains value types and pure helpers only. All other
// internal packages import srs; srs imports nothing internal. This keeps
// it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Card and note identifiers are opaque int64 values owned by the
//     host collection; torii never mints them.
//   - Everything here is either immutable after construction or a pure
//     function. Mutation of collection state happens only in the engine's
//     apply step.
//   - All JSON tags use snake_case.
package srs
