package srs

import "fmt"

// CardID identifies one reviewable card in the host collection.
type CardID int64

// NoteID identifies one note in the host collection.
// A note owns an ordered set of cards via template ordinals.
type NoteID int64

// QueueState is the scheduling queue a card sits in. torii only
// distinguishes suspended from everything else; the numeric values match
// the host collection's queue column so snapshots and writes round-trip
// without translation.
type QueueState int

const (
	// QueueActive covers every non-suspended queue value.
	QueueActive QueueState = 0
	// QueueSuspended is the host convention for a suspended card.
	QueueSuspended QueueState = -1
)

// Suspended reports whether the state counts as suspended.
func (q QueueState) Suspended() bool {
	return q == QueueSuspended
}

// String returns "active" or "suspended".
func (q QueueState) String() string {
	if q.Suspended() {
		return "suspended"
	}
	return "active"
}

// Normalize collapses any non-suspended queue value to QueueActive.
// Snapshot rows keep the raw host value; decisions compare normalized
// states so moving a card between active queues never looks like a delta.
func (q QueueState) Normalize() QueueState {
	if q.Suspended() {
		return QueueSuspended
	}
	return QueueActive
}

func (q QueueState) GoString() string {
	return fmt.Sprintf("srs.QueueState(%d)", int(q))
}
