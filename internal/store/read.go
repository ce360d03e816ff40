package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

var (
	_ engine.Collection    = (*Store)(nil)
	_ engine.QueueVerifier = (*Store)(nil)
)

// queueReadChunk bounds the parameter count of verification reads so a
// large plan never exceeds SQLite's per-statement variable limit.
const queueReadChunk = 500

// querier is satisfied by *sql.DB and *sql.Tx, so notetype loading works
// both inside a snapshot transaction and for one-off lookups.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReadSnapshot reads the notes and cards of the scoped note-types in one
// transaction, so a gating pass sees a single point-in-time view. An
// empty scope reads the whole collection.
//
// Results are ordered deterministically: notes by id, cards by
// (nid, ord, id). Returns empty slices (not nil) when nothing matches.
func (s *Store) ReadSnapshot(ctx context.Context, scope engine.SnapshotScope) (engine.CollectionData, error) {
	data := engine.CollectionData{Notes: []srs.Note{}, Cards: []srs.Card{}}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return data, fmt.Errorf("read snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // Reads only; rollback releases the transaction

	types, err := loadNotetypes(ctx, tx, scope.NoteTypes)
	if err != nil {
		return data, err
	}
	if len(types) == 0 {
		return data, nil
	}

	ntids := make([]int64, 0, len(types))
	for id := range types {
		ntids = append(ntids, id)
	}
	sort.Slice(ntids, func(i, j int) bool { return ntids[i] < ntids[j] })

	data.Notes, err = readNotes(ctx, tx, types, ntids)
	if err != nil {
		return data, err
	}

	data.Cards, err = readCards(ctx, tx, types, ntids)
	if err != nil {
		return data, err
	}

	return data, nil
}

// loadNotetypes returns the notetypes named by the filter, keyed by row
// id. An empty filter loads every notetype.
func loadNotetypes(ctx context.Context, q querier, names []string) (map[int64]notetype, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, config
		FROM notetypes
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query notetypes: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	types := make(map[int64]notetype)
	for rows.Next() {
		var (
			nt  notetype
			raw string
		)
		if err := rows.Scan(&nt.ID, &nt.Name, &raw); err != nil {
			return nil, fmt.Errorf("scan notetype: %w", err)
		}
		if len(wanted) > 0 && !wanted[nt.Name] {
			continue
		}
		nt.Config, err = decodeNotetypeConfig(raw)
		if err != nil {
			return nil, fmt.Errorf("notetype %q: %w", nt.Name, err)
		}
		types[nt.ID] = nt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notetypes: %w", err)
	}

	return types, nil
}

// readNotes returns the notes of the given notetypes with fields mapped
// to their configured names and tags split.
func readNotes(ctx context.Context, q querier, types map[int64]notetype, ntids []int64) ([]srs.Note, error) {
	query := fmt.Sprintf(`
		SELECT id, ntid, flds, tags
		FROM notes
		WHERE ntid IN (%s)
		ORDER BY id ASC
	`, inPlaceholders(len(ntids)))

	rows, err := q.QueryContext(ctx, query, int64Args(ntids)...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows, types)
}

// scanNotes drains a (id, ntid, flds, tags) result set into notes with
// fields mapped to their configured names.
func scanNotes(rows *sql.Rows, types map[int64]notetype) ([]srs.Note, error) {
	notes := []srs.Note{}
	for rows.Next() {
		var (
			id         int64
			ntid       int64
			flds, tags string
		)
		if err := rows.Scan(&id, &ntid, &flds, &tags); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		nt := types[ntid]
		notes = append(notes, srs.Note{
			ID:       srs.NoteID(id),
			NoteType: nt.Name,
			Fields:   nt.fieldMap(flds),
			Tags:     splitTags(tags),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	return notes, nil
}

// readCards returns the cards of the given notetypes with template names
// resolved from each notetype's config.
func readCards(ctx context.Context, q querier, types map[int64]notetype, ntids []int64) ([]srs.Card, error) {
	query := fmt.Sprintf(`
		SELECT c.id, c.nid, c.ord, c.queue, n.ntid
		FROM cards c
		JOIN notes n ON c.nid = n.id
		WHERE n.ntid IN (%s)
		ORDER BY c.nid ASC, c.ord ASC, c.id ASC
	`, inPlaceholders(len(ntids)))

	rows, err := q.QueryContext(ctx, query, int64Args(ntids)...)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	cards := []srs.Card{}
	for rows.Next() {
		var (
			id, nid, ntid int64
			ord, queue    int
		)
		if err := rows.Scan(&id, &nid, &ord, &queue, &ntid); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, srs.Card{
			ID:       srs.CardID(id),
			Note:     srs.NoteID(nid),
			Ord:      ord,
			Template: types[ntid].templateName(ord),
			Queue:    srs.QueueState(queue),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}

	return cards, nil
}

// QueueStates reads the current queue state of the given cards, chunked
// to respect statement parameter limits. Cards that no longer exist are
// absent from the result.
func (s *Store) QueueStates(ctx context.Context, ids []srs.CardID) (map[srs.CardID]srs.QueueState, error) {
	states := make(map[srs.CardID]srs.QueueState, len(ids))

	for start := 0; start < len(ids); start += queueReadChunk {
		end := start + queueReadChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		query := fmt.Sprintf(`
			SELECT id, queue
			FROM cards
			WHERE id IN (%s)
			ORDER BY id ASC
		`, inPlaceholders(len(chunk)))

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = int64(id)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query queue states: %w", err)
		}

		for rows.Next() {
			var (
				id    int64
				queue int
			)
			if err := rows.Scan(&id, &queue); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan queue state: %w", err)
			}
			states[srs.CardID(id)] = srs.QueueState(queue)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate queue states: %w", err)
		}
		rows.Close()
	}

	return states, nil
}

// inPlaceholders renders n comma-separated "?" markers for an IN clause.
// Only placeholders are interpolated into query text; values always
// travel as parameters.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
