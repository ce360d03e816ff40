package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

func TestReadSnapshot_MapsFieldsAndTemplates(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)

	data, err := s.ReadSnapshot(context.Background(), engine.SnapshotScope{NoteTypes: []string{"vocab", "kanji"}})
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	if len(data.Notes) != 3 {
		t.Fatalf("got %d notes, want 3", len(data.Notes))
	}

	north := data.Notes[0]
	if north.ID != 1 || north.NoteType != "vocab" {
		t.Errorf("first note = %d (%s), want 1 (vocab)", north.ID, north.NoteType)
	}
	wantFields := map[string]string{"Expression": "北口", "Meaning": "north exit", "Links": "北;〜口@1"}
	if !reflect.DeepEqual(north.Fields, wantFields) {
		t.Errorf("note 1 fields = %v, want %v", north.Fields, wantFields)
	}
	if !reflect.DeepEqual(north.Tags, []string{"lesson1"}) {
		t.Errorf("note 1 tags = %v, want [lesson1]", north.Tags)
	}

	// The kanji note omitted Components; it reads back as "".
	character := data.Notes[2]
	if got := character.Field("Components"); got != "" {
		t.Errorf("note 3 Components = %q, want \"\"", got)
	}

	if len(data.Cards) != 4 {
		t.Fatalf("got %d cards, want 4", len(data.Cards))
	}
	wantCards := []struct {
		id       srs.CardID
		template string
		queue    srs.QueueState
	}{
		{101, "recognition", srs.QueueActive},
		{102, "recall", srs.QueueSuspended},
		{201, "recognition", srs.QueueActive},
		{301, "reading", srs.QueueActive},
	}
	for i, want := range wantCards {
		card := data.Cards[i]
		if card.ID != want.id || card.Template != want.template || card.Queue != want.queue {
			t.Errorf("card[%d] = %d %q %v, want %d %q %v",
				i, card.ID, card.Template, card.Queue, want.id, want.template, want.queue)
		}
	}
}

func TestReadSnapshot_ScopeFiltersNoteTypes(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)

	data, err := s.ReadSnapshot(context.Background(), engine.SnapshotScope{NoteTypes: []string{"kanji"}})
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	if len(data.Notes) != 1 || data.Notes[0].ID != 3 {
		t.Errorf("notes = %v, want just note 3", data.Notes)
	}
	if len(data.Cards) != 1 || data.Cards[0].ID != 301 {
		t.Errorf("cards = %v, want just card 301", data.Cards)
	}
}

func TestReadSnapshot_EmptyScopeReadsAll(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)

	data, err := s.ReadSnapshot(context.Background(), engine.SnapshotScope{})
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	if len(data.Notes) != 3 || len(data.Cards) != 4 {
		t.Errorf("got %d notes / %d cards, want 3 / 4", len(data.Notes), len(data.Cards))
	}
}

func TestReadSnapshot_UnknownScopeReturnsEmptySlices(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)

	data, err := s.ReadSnapshot(context.Background(), engine.SnapshotScope{NoteTypes: []string{"cloze"}})
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	if data.Notes == nil || data.Cards == nil {
		t.Fatal("snapshot slices are nil, want empty")
	}
	if len(data.Notes) != 0 || len(data.Cards) != 0 {
		t.Errorf("got %d notes / %d cards, want 0 / 0", len(data.Notes), len(data.Cards))
	}
}

func TestReadSnapshot_UnknownTemplateOrdinal(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)
	ctx := context.Background()

	// Ordinal 7 is beyond the vocab notetype's two templates.
	if err := s.AddCard(ctx, srs.Card{ID: 109, Note: 1, Ord: 7}); err != nil {
		t.Fatalf("AddCard() failed: %v", err)
	}

	data, err := s.ReadSnapshot(ctx, engine.SnapshotScope{NoteTypes: []string{"vocab"}})
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	for _, card := range data.Cards {
		if card.ID == 109 {
			if card.Template != "" {
				t.Errorf("card 109 template = %q, want \"\"", card.Template)
			}
			return
		}
	}
	t.Fatal("card 109 missing from snapshot")
}

func TestQueueStates_ReadsCurrent(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)

	states, err := s.QueueStates(context.Background(), []srs.CardID{101, 102, 9999})
	if err != nil {
		t.Fatalf("QueueStates() failed: %v", err)
	}

	if got := states[101]; got != srs.QueueActive {
		t.Errorf("card 101 = %v, want active", got)
	}
	if got := states[102]; got != srs.QueueSuspended {
		t.Errorf("card 102 = %v, want suspended", got)
	}
	if _, present := states[9999]; present {
		t.Error("card 9999 present, want absent")
	}
}

func TestQueueStates_ChunksLargeReads(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)
	ctx := context.Background()

	// Enough cards to span two read chunks.
	total := queueReadChunk + 20
	ids := make([]srs.CardID, 0, total)
	for i := 0; i < total; i++ {
		id := srs.CardID(1000 + i)
		if err := s.AddCard(ctx, srs.Card{ID: id, Note: 1, Ord: 0}); err != nil {
			t.Fatalf("AddCard(%d) failed: %v", id, err)
		}
		ids = append(ids, id)
	}

	states, err := s.QueueStates(ctx, ids)
	if err != nil {
		t.Fatalf("QueueStates() failed: %v", err)
	}
	if len(states) != total {
		t.Fatalf("got %d states, want %d", len(states), total)
	}
	for _, id := range ids {
		if got := states[id]; got != srs.QueueActive {
			t.Fatalf("card %d = %v, want active", id, got)
		}
	}
}

func TestReadSnapshot_FeedsEngineSnapshot(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)
	ctx := context.Background()

	oracle, err := s.MemoryOracle(ctx)
	if err != nil {
		t.Fatalf("MemoryOracle() failed: %v", err)
	}

	snap, err := engine.BuildSnapshot(ctx, s, oracle, engine.SnapshotScope{NoteTypes: []string{"vocab"}})
	if err != nil {
		t.Fatalf("BuildSnapshot() failed: %v", err)
	}

	if got := snap.Queue(102); got != srs.QueueSuspended {
		t.Errorf("Queue(102) = %v, want suspended", got)
	}
	days, rated := snap.Stability(101)
	if !rated || days != 21.5 {
		t.Errorf("Stability(101) = (%v, %v), want (21.5, true)", days, rated)
	}
	if _, rated := snap.Stability(201); rated {
		t.Error("Stability(201) rated, want unrated")
	}
}
