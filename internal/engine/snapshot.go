package engine

import (
	"context"
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// StabilityOracle supplies the mastery metric. It is a read-only
// collaborator owned by the host review system: torii never computes
// stability, it only compares it against thresholds.
//
// StabilityOf returns the card's stability in days and true, or
// (0, false) when the card has no review history ("unrated"). A card the
// oracle has never heard of is unrated.
type StabilityOracle interface {
	StabilityOf(id srs.CardID) (float64, bool)
}

// SnapshotScope restricts a snapshot read to the note-types a pass needs.
type SnapshotScope struct {
	NoteTypes []string
}

// CollectionData is the raw result of one consistent snapshot read.
type CollectionData struct {
	Notes []srs.Note
	Cards []srs.Card
}

// Snapshotter reads one consistent view of the collection. Implementations
// must return data from a single point in time (the store uses one read
// transaction); the engine never re-reads mid-pass.
type Snapshotter interface {
	ReadSnapshot(ctx context.Context, scope SnapshotScope) (CollectionData, error)
}

// QueueChange moves one card to a target queue state.
type QueueChange struct {
	Card srs.CardID     `json:"card"`
	To   srs.QueueState `json:"to"`
	// Reasons carries the suspending resolvers for report and golden
	// output. Appliers ignore it.
	Reasons []Provenance `json:"reasons,omitempty"`
}

// BatchApplier applies queue changes. A single atomic batch where the
// store supports it; the returned count is the number of changes that
// actually landed (equal to len(changes) on full success).
type BatchApplier interface {
	ApplyQueueBatch(ctx context.Context, changes []QueueChange) (int, error)
}

// NoteTagger persists sticky unlock marks as note tags. Adding a tag a
// note already carries is a no-op; the returned count is the number of
// notes actually modified.
type NoteTagger interface {
	AddNoteTags(ctx context.Context, tags map[srs.NoteID][]string) (int, error)
}

// QueueVerifier re-reads current queue states; used by the optional
// post-apply verification.
type QueueVerifier interface {
	QueueStates(ctx context.Context, ids []srs.CardID) (map[srs.CardID]srs.QueueState, error)
}

// Collection is the full card-store surface the engine consumes.
// Verification is optional: the executor upgrades via type assertion to
// QueueVerifier when configured to verify.
type Collection interface {
	Snapshotter
	BatchApplier
	NoteTagger
}

// stabilityReading is one oracle answer, recorded at snapshot time.
type stabilityReading struct {
	days  float64
	rated bool
}

// Snapshot is the pass-local, immutable view of the collection. All
// resolvers read from here; none of them touch the store. Oracle answers
// are recorded once at build time so a pass is deterministic even if the
// oracle's backing data moves underneath it.
type Snapshot struct {
	notes       map[srs.NoteID]srs.Note
	noteOrder   []srs.NoteID
	byType      map[string][]srs.NoteID
	cardsByNote map[srs.NoteID][]srs.Card
	queue       map[srs.CardID]srs.QueueState
	stability   map[srs.CardID]stabilityReading
}

// BuildSnapshot reads the collection once and records every oracle answer
// the pass could need. ctx cancellation during the read aborts the pass
// before anything is computed or written.
func BuildSnapshot(ctx context.Context, src Snapshotter, oracle StabilityOracle, scope SnapshotScope) (*Snapshot, error) {
	data, err := src.ReadSnapshot(ctx, scope)
	if err != nil {
		return nil, NewSnapshotError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Snapshot{
		notes:       make(map[srs.NoteID]srs.Note, len(data.Notes)),
		byType:      make(map[string][]srs.NoteID),
		cardsByNote: make(map[srs.NoteID][]srs.Card),
		queue:       make(map[srs.CardID]srs.QueueState, len(data.Cards)),
		stability:   make(map[srs.CardID]stabilityReading, len(data.Cards)),
	}

	for _, n := range data.Notes {
		if _, dup := s.notes[n.ID]; dup {
			continue
		}
		s.notes[n.ID] = n
		s.noteOrder = append(s.noteOrder, n.ID)
		s.byType[n.NoteType] = append(s.byType[n.NoteType], n.ID)
	}
	sort.Slice(s.noteOrder, func(i, j int) bool { return s.noteOrder[i] < s.noteOrder[j] })
	for _, ids := range s.byType {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	for _, c := range data.Cards {
		s.cardsByNote[c.Note] = append(s.cardsByNote[c.Note], c)
		s.queue[c.ID] = c.Queue.Normalize()
		days, rated := oracle.StabilityOf(c.ID)
		s.stability[c.ID] = stabilityReading{days: days, rated: rated}
	}
	for _, cards := range s.cardsByNote {
		sort.Slice(cards, func(i, j int) bool {
			if cards[i].Ord != cards[j].Ord {
				return cards[i].Ord < cards[j].Ord
			}
			return cards[i].ID < cards[j].ID
		})
	}

	return s, nil
}

// Note returns the snapshot row for id.
func (s *Snapshot) Note(id srs.NoteID) (srs.Note, bool) {
	n, ok := s.notes[id]
	return n, ok
}

// Notes returns every snapshot note id in ascending order.
func (s *Snapshot) Notes() []srs.NoteID {
	return s.noteOrder
}

// NotesOfType returns the note ids of one note-type, ascending.
func (s *Snapshot) NotesOfType(noteType string) []srs.NoteID {
	return s.byType[noteType]
}

// Cards returns a note's cards ordered by template ordinal.
func (s *Snapshot) Cards(note srs.NoteID) []srs.Card {
	return s.cardsByNote[note]
}

// CardsByTemplate returns the ids of a note's cards whose template name
// is in templates, preserving ordinal order. Empty templates selects all
// of the note's cards.
func (s *Snapshot) CardsByTemplate(note srs.NoteID, templates []string) []srs.CardID {
	cards := s.cardsByNote[note]
	if len(cards) == 0 {
		return nil
	}
	var out []srs.CardID
	for _, c := range cards {
		if len(templates) == 0 || containsString(templates, c.Template) {
			out = append(out, c.ID)
		}
	}
	return out
}

// Queue returns the normalized queue state observed at snapshot time.
// Unknown cards read as active, which makes a suspend decision for them
// a visible delta rather than a silent no-op.
func (s *Snapshot) Queue(card srs.CardID) srs.QueueState {
	return s.queue[card]
}

// Stability returns the oracle reading recorded at snapshot time.
func (s *Snapshot) Stability(card srs.CardID) (float64, bool) {
	r := s.stability[card]
	return r.days, r.rated
}

// HasCard reports whether the snapshot saw the card at all.
func (s *Snapshot) HasCard(card srs.CardID) bool {
	_, ok := s.queue[card]
	return ok
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
