// Package store provides SQLite-backed access to a flashcard collection
// for gating passes.
//
// The store implements the engine's collaborator surfaces:
//   - Snapshotter: one-transaction point-in-time reads of notes and cards
//   - BatchApplier: atomic queue writes, counted for partial-apply recovery
//   - NoteTagger: sticky unlock marks merged into note tags
//   - QueueVerifier: post-apply read-back of queue states
//   - RelationLookup: query-backed member search with quoting fallbacks
//   - StabilityOracle: frozen per-pass stability readings
//
// Storage follows the host collection's conventions so exported decks
// round-trip unchanged: note fields are packed with the ASCII unit
// separator, tags are space-delimited, queue -1 means suspended and a
// NULL stability marks a never-rated card. Notetype configs carry the
// positional field and template names used to unpack them.
//
// All multi-row reads are ordered (notes by id, cards by nid, ord, id)
// so passes and golden plans are reproducible.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
