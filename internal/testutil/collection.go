// Package testutil provides in-memory test doubles for the engine's
// collaborator interfaces. Tests assemble a FakeCollection note by note,
// rate cards through a StaticOracle, and hand both to engine.New; no
// database is involved.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

// FakeCollection is an in-memory engine.Collection. It records every
// apply and supports targeted failure injection:
//
//   - SnapshotErr fails every snapshot read.
//   - BatchLimit > 0 rejects batches larger than the limit, which forces
//     the executor into chunked mode.
//   - FailCard fails any batch containing that card, atomically: the
//     failing batch applies nothing.
//
// All methods are safe for concurrent use.
type FakeCollection struct {
	mu    sync.Mutex
	notes map[srs.NoteID]*srs.Note
	cards map[srs.CardID]*srs.Card

	SnapshotErr error
	BatchLimit  int
	FailCard    srs.CardID

	// Batches records every ApplyQueueBatch call, including failed ones.
	Batches [][]engine.QueueChange
	// TagWrites counts AddNoteTags calls.
	TagWrites int
}

var _ engine.Collection = (*FakeCollection)(nil)
var _ engine.QueueVerifier = (*FakeCollection)(nil)

func NewFakeCollection() *FakeCollection {
	return &FakeCollection{
		notes: make(map[srs.NoteID]*srs.Note),
		cards: make(map[srs.CardID]*srs.Card),
	}
}

// AddNote inserts or replaces a note.
func (c *FakeCollection) AddNote(n srs.Note) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := n
	copied.Tags = append([]string(nil), n.Tags...)
	c.notes[n.ID] = &copied
}

// AddCard inserts or replaces a card.
func (c *FakeCollection) AddCard(card srs.Card) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := card
	c.cards[card.ID] = &copied
}

// Queue returns a card's current queue state, active for unknown cards.
func (c *FakeCollection) Queue(id srs.CardID) srs.QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if card, ok := c.cards[id]; ok {
		return card.Queue.Normalize()
	}
	return srs.QueueActive
}

// Tags returns a copy of a note's tags, sorted.
func (c *FakeCollection) Tags(id srs.NoteID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	note, ok := c.notes[id]
	if !ok {
		return nil
	}
	out := append([]string(nil), note.Tags...)
	sort.Strings(out)
	return out
}

func (c *FakeCollection) ReadSnapshot(_ context.Context, scope engine.SnapshotScope) (engine.CollectionData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SnapshotErr != nil {
		return engine.CollectionData{}, c.SnapshotErr
	}

	wanted := make(map[string]bool, len(scope.NoteTypes))
	for _, nt := range scope.NoteTypes {
		wanted[nt] = true
	}

	var data engine.CollectionData
	included := make(map[srs.NoteID]bool)
	for _, note := range c.notes {
		if len(wanted) > 0 && !wanted[note.NoteType] {
			continue
		}
		copied := *note
		copied.Tags = append([]string(nil), note.Tags...)
		data.Notes = append(data.Notes, copied)
		included[note.ID] = true
	}
	for _, card := range c.cards {
		if !included[card.Note] {
			continue
		}
		data.Cards = append(data.Cards, *card)
	}
	return data, nil
}

func (c *FakeCollection) ApplyQueueBatch(_ context.Context, changes []engine.QueueChange) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Batches = append(c.Batches, append([]engine.QueueChange(nil), changes...))

	if c.BatchLimit > 0 && len(changes) > c.BatchLimit {
		return 0, fmt.Errorf("batch of %d exceeds limit %d", len(changes), c.BatchLimit)
	}
	if c.FailCard != 0 {
		for _, ch := range changes {
			if ch.Card == c.FailCard {
				return 0, fmt.Errorf("injected failure on card %d", c.FailCard)
			}
		}
	}

	for _, ch := range changes {
		card, ok := c.cards[ch.Card]
		if !ok {
			return 0, fmt.Errorf("unknown card %d", ch.Card)
		}
		card.Queue = ch.To
	}
	return len(changes), nil
}

func (c *FakeCollection) AddNoteTags(_ context.Context, tags map[srs.NoteID][]string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.TagWrites++
	modified := 0
	for id, add := range tags {
		note, ok := c.notes[id]
		if !ok {
			continue
		}
		changed := false
		for _, tag := range add {
			if !note.HasTag(tag) {
				note.Tags = append(note.Tags, tag)
				changed = true
			}
		}
		if changed {
			sort.Strings(note.Tags)
			modified++
		}
	}
	return modified, nil
}

func (c *FakeCollection) QueueStates(_ context.Context, ids []srs.CardID) (map[srs.CardID]srs.QueueState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[srs.CardID]srs.QueueState, len(ids))
	for _, id := range ids {
		if card, ok := c.cards[id]; ok {
			out[id] = card.Queue.Normalize()
		}
	}
	return out, nil
}
