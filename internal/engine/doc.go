// Package engine implements the torii gating and readiness engine.
//
// The engine is the heart of torii - it evaluates stability readiness,
// resolves stage chains, family priority dependencies and component
// aggregation, merges the resolvers' verdicts and applies suspend or
// unsuspend deltas to the collection.
//
// ARCHITECTURE:
//
// Pass As The Unit Of Atomicity:
// A pass reads one consistent snapshot (notes, cards, queue states,
// oracle stabilities), computes every decision from that snapshot, and
// applies only the deltas. This ensures:
// - No read-after-write hazards inside one evaluation
// - Idempotence: a second pass over unchanged data applies nothing
// - No cross-pass mutable state; staleness cannot accumulate
//
// Pass Processing Flow:
// 1. Load configuration (immutable for the pass)
// 2. Build the snapshot (single consistent read, oracle consulted once per card)
// 3. Resolve: stage chains + family graph, component scopes, example scopes
// 4. Merge decisions (a card stays suspended if any resolver says so)
// 5. Apply the queue delta in one batch, then sticky marks
//
// Passes are serialized: one in flight at a time, requests arriving
// mid-pass coalesce into a single pending re-run (see Runner). The
// engine is designed for correctness and determinism, not throughput.
//
// CRITICAL PATTERNS:
//
// Resolvers are pure functions over the snapshot. Only the apply step
// has side effects, and it writes already-computed, self-consistent
// deltas, so cancellation before apply is a no-op and cancellation
// during a batched apply rolls back cleanly.
//
// Evaluation order is deterministic: notes, units and cards are visited
// in sorted order, and every emitted plan is sorted by card id.
package engine
