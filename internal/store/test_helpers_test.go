package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yamadera/torii/internal/srs"
)

// createTestStore creates a file-backed store under the test temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedCollection loads a small vocab/kanji collection through the write
// API: two vocab notes sharing the 〜口 relation, one kanji note, four
// cards, two of them rated.
func seedCollection(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	notetypes := []NoteType{
		{ID: 1, Name: "vocab", Fields: []string{"Expression", "Meaning", "Links"}, Templates: []string{"recognition", "recall"}},
		{ID: 2, Name: "kanji", Fields: []string{"Character", "Components"}, Templates: []string{"reading"}},
	}
	for _, nt := range notetypes {
		if err := s.AddNoteType(ctx, nt); err != nil {
			t.Fatalf("AddNoteType(%q) failed: %v", nt.Name, err)
		}
	}

	notes := []srs.Note{
		{ID: 1, NoteType: "vocab", Fields: map[string]string{"Expression": "北口", "Meaning": "north exit", "Links": "北;〜口@1"}, Tags: []string{"lesson1"}},
		{ID: 2, NoteType: "vocab", Fields: map[string]string{"Expression": "出口", "Meaning": "exit", "Links": "〜口"}},
		{ID: 3, NoteType: "kanji", Fields: map[string]string{"Character": "北"}},
	}
	for _, note := range notes {
		if err := s.AddNote(ctx, note); err != nil {
			t.Fatalf("AddNote(%d) failed: %v", note.ID, err)
		}
	}

	cards := []srs.Card{
		{ID: 101, Note: 1, Ord: 0},
		{ID: 102, Note: 1, Ord: 1, Queue: srs.QueueSuspended},
		{ID: 201, Note: 2, Ord: 0},
		{ID: 301, Note: 3, Ord: 0},
	}
	for _, card := range cards {
		if err := s.AddCard(ctx, card); err != nil {
			t.Fatalf("AddCard(%d) failed: %v", card.ID, err)
		}
	}

	if err := s.SetStability(ctx, 101, 21.5); err != nil {
		t.Fatalf("SetStability(101) failed: %v", err)
	}
	if err := s.SetStability(ctx, 301, 3.0); err != nil {
		t.Fatalf("SetStability(301) failed: %v", err)
	}
}
