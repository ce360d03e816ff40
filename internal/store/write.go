package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

// NoteType describes one notetypes row for collection writes. Field and
// template names are positional; they name the note's flds values and
// the cards' ordinals.
type NoteType struct {
	ID        int64
	Name      string
	Fields    []string
	Templates []string
}

// AddNoteType inserts a notetype record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored. Other constraint violations (e.g. a reused name)
// still return errors.
func (s *Store) AddNoteType(ctx context.Context, nt NoteType) error {
	config, err := encodeNotetypeConfig(notetypeConfig{
		Fields:    nt.Fields,
		Templates: nt.Templates,
	})
	if err != nil {
		return fmt.Errorf("add notetype: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notetypes (id, name, config)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, nt.ID, nt.Name, config)
	if err != nil {
		return fmt.Errorf("add notetype: %w", err)
	}

	return nil
}

// AddNote inserts a note record, ordering its field values by the
// notetype's configured field names. A field name the notetype does not
// declare is an error; declared fields the note omits store as "".
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
//
// Field values are NFC-normalized at rest, following the host collection
// convention, so substring prefilters see the same bytes parsed links
// produce.
func (s *Store) AddNote(ctx context.Context, note srs.Note) error {
	nt, err := s.notetypeByName(ctx, note.NoteType)
	if err != nil {
		return fmt.Errorf("add note %d: %w", note.ID, err)
	}

	values := make([]string, len(nt.Config.Fields))
	named := make(map[string]bool, len(nt.Config.Fields))
	for i, name := range nt.Config.Fields {
		values[i] = norm.NFC.String(note.Fields[name])
		named[name] = true
	}
	for name := range note.Fields {
		if !named[name] {
			return fmt.Errorf("add note %d: notetype %q has no field %q", note.ID, note.NoteType, name)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, ntid, flds, tags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, int64(note.ID), nt.ID, joinFields(values), joinTags(note.Tags))
	if err != nil {
		return fmt.Errorf("add note %d: %w", note.ID, err)
	}

	return nil
}

// AddCard inserts a card record with no stability (never rated). The
// template name is derived from the ordinal on read and ignored here.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) AddCard(ctx context.Context, card srs.Card) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (id, nid, ord, queue, stability)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO NOTHING
	`, int64(card.ID), int64(card.Note), card.Ord, int(card.Queue))
	if err != nil {
		return fmt.Errorf("add card %d: %w", card.ID, err)
	}

	return nil
}

// SetStability records a card's memory stability in days. The card must
// exist.
func (s *Store) SetStability(ctx context.Context, id srs.CardID, days float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET stability = ? WHERE id = ?
	`, days, int64(id))
	if err != nil {
		return fmt.Errorf("set stability: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set stability: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set stability: card %d not found", id)
	}

	return nil
}

// ApplyQueueBatch writes queue changes in one transaction: all of them
// land or none do. The returned count is the number of cards actually
// updated; cards deleted since the snapshot was taken are skipped, not
// errors. On error nothing is durable and the count is 0.
func (s *Store) ApplyQueueBatch(ctx context.Context, changes []engine.QueueChange) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("apply queue batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `UPDATE cards SET queue = ? WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("apply queue batch: prepare: %w", err)
	}
	defer stmt.Close()

	applied := 0
	for _, ch := range changes {
		res, err := stmt.ExecContext(ctx, int(ch.To), int64(ch.Card))
		if err != nil {
			return 0, fmt.Errorf("apply queue batch: card %d: %w", ch.Card, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("apply queue batch: card %d: %w", ch.Card, err)
		}
		if n > 0 {
			applied++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("apply queue batch: commit: %w", err)
	}

	return applied, nil
}

// AddNoteTags merges tags into the given notes inside one transaction.
// Tags a note already carries are no-ops; the returned count is the
// number of notes actually rewritten. Notes deleted since the snapshot
// was taken are skipped.
func (s *Store) AddNoteTags(ctx context.Context, tags map[srs.NoteID][]string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	// Deterministic write order regardless of map iteration.
	ids := make([]srs.NoteID, 0, len(tags))
	for id := range tags {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add note tags: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	modified := 0
	for _, id := range ids {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT tags FROM notes WHERE id = ?`, int64(id)).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("add note tags: note %d: %w", id, err)
		}

		merged, changed := mergeTags(splitTags(raw), tags[id])
		if !changed {
			continue
		}

		if _, err := tx.ExecContext(ctx, `UPDATE notes SET tags = ? WHERE id = ?`, joinTags(merged), int64(id)); err != nil {
			return 0, fmt.Errorf("add note tags: note %d: %w", id, err)
		}
		modified++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add note tags: commit: %w", err)
	}

	return modified, nil
}

// mergeTags appends the tags missing from existing, preserving the
// stored order. Empty tags are dropped.
func mergeTags(existing, add []string) ([]string, bool) {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}

	merged := existing
	changed := false
	for _, t := range add {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
		changed = true
	}
	return merged, changed
}

// notetypeByName loads one notetype row by its unique name.
func (s *Store) notetypeByName(ctx context.Context, name string) (notetype, error) {
	nt := notetype{Name: name}
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, config FROM notetypes WHERE name = ?
	`, name).Scan(&nt.ID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nt, fmt.Errorf("unknown notetype %q", name)
	}
	if err != nil {
		return nt, fmt.Errorf("query notetype %q: %w", name, err)
	}

	nt.Config, err = decodeNotetypeConfig(raw)
	if err != nil {
		return nt, fmt.Errorf("notetype %q: %w", name, err)
	}
	return nt, nil
}
