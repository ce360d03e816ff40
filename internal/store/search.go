package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

var _ engine.RelationLookup = (*RelationSearch)(nil)

// RelationSearch resolves relation members straight from the database,
// for callers working outside a pass snapshot (the explain command).
// Relation ids are opaque exact-match tokens, never patterns, so each
// query variant neutralizes its own metacharacters.
//
// SQL can only prefilter on the packed flds column; candidates are then
// confirmed by parsing the configured relation field. Variants are tried
// in order, falling through when the host SQLite build rejects one
// (instr is missing from older builds):
//
//  1. instr(flds, ?)       plain substring, no metacharacters at all
//  2. flds LIKE ? ESCAPE   %, _ and the escape character escaped
//  3. flds GLOB ?          *, ? and [ wrapped in character classes
//
// A failed variant is a warning; all variants failing is an error the
// engine reports as a lookup failure for that relation id.
type RelationSearch struct {
	store  *Store
	family srs.FamilySettings
}

// RelationSearch returns a query-backed relation lookup over the
// family-scoped note-types.
func (s *Store) RelationSearch(family srs.FamilySettings) *RelationSearch {
	return &RelationSearch{store: s, family: family}
}

// relationQueryVariant is one SQL prefilter over the packed flds column.
type relationQueryVariant struct {
	name  string
	where string
	arg   func(id string) string
}

var relationQueryVariants = []relationQueryVariant{
	{
		name:  "instr",
		where: "instr(n.flds, ?) > 0",
		arg:   func(id string) string { return id },
	},
	{
		name:  "like",
		where: `n.flds LIKE ? ESCAPE '\'`,
		arg:   func(id string) string { return "%" + escapeLike(id) + "%" },
	},
	{
		name:  "glob",
		where: "n.flds GLOB ?",
		arg:   func(id string) string { return "*" + escapeGlob(id) + "*" },
	},
}

// Members returns the notes declaring a link on the relation id, in id
// order. The id is NFC-normalized before matching, like parsed links.
func (r *RelationSearch) Members(ctx context.Context, relationID string) ([]srs.Note, error) {
	if len(r.family.NoteTypes) == 0 {
		return []srs.Note{}, nil
	}
	id := srs.NormalizeRelationID(relationID)

	var lastErr error
	for _, v := range relationQueryVariants {
		candidates, err := r.query(ctx, v, id)
		if err != nil {
			slog.Warn("relation query variant failed",
				"variant", v.name,
				"relation", relationID,
				"error", err,
			)
			lastErr = err
			continue
		}
		return r.confirm(candidates, id), nil
	}

	return nil, fmt.Errorf("relation lookup %q: all query variants failed: %w", relationID, lastErr)
}

// query runs one variant's prefilter over the family note-types.
func (r *RelationSearch) query(ctx context.Context, v relationQueryVariant, id string) ([]srs.Note, error) {
	types, err := loadNotetypes(ctx, r.store.db, r.family.NoteTypes)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return []srs.Note{}, nil
	}

	ntids := make([]int64, 0, len(types))
	for ntid := range types {
		ntids = append(ntids, ntid)
	}
	sort.Slice(ntids, func(i, j int) bool { return ntids[i] < ntids[j] })

	query := fmt.Sprintf(`
		SELECT n.id, n.ntid, n.flds, n.tags
		FROM notes n
		WHERE n.ntid IN (%s) AND %s
		ORDER BY n.id ASC
	`, inPlaceholders(len(ntids)), v.where)

	args := append(int64Args(ntids), v.arg(id))
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes (%s): %w", v.name, err)
	}
	defer rows.Close()

	return scanNotes(rows, types)
}

// confirm keeps the candidates whose parsed links actually carry the id.
// The SQL prefilter matches anywhere in the packed fields, including
// inside other field values.
func (r *RelationSearch) confirm(candidates []srs.Note, id string) []srs.Note {
	syntax := r.family.Syntax()
	members := []srs.Note{}
	for _, note := range candidates {
		for _, link := range srs.ParseRelationLinks(note.Field(r.family.Field), syntax) {
			if link.RelationID == id {
				members = append(members, note)
				break
			}
		}
	}
	return members
}

// escapeLike escapes LIKE metacharacters with backslash, matching the
// ESCAPE '\' clause in the like variant.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '%', '_', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeGlob neutralizes GLOB metacharacters. GLOB has no ESCAPE clause,
// so special characters are wrapped in single-member character classes.
// A ] outside a class is already literal.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
