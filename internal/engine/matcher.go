package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yamadera/torii/internal/srs"
)

// KeyFieldMatcher is the built-in ExampleMatcher: it resolves an example
// note by exact key equality between the example's key field and the
// target note type's key field. Keys are Unicode-normalized on both
// sides so visually identical strings compare equal.
//
// Two key syntaxes are accepted:
//
//	走る             surface match against the target key field
//	走る@1699999999  forced: the suffix names the target note id directly
//
// A suffix that does not parse as an integer is treated as part of the
// key, mirroring how relation links tolerate literal "@" in ids.
//
// Richer strategies (reading fallback, suru-verb fallback, tokenizer
// assisted matching) live behind the ExampleMatcher interface; this
// matcher only ever reports MatchViaSurface or MatchViaForced.
type KeyFieldMatcher struct{}

var _ ExampleMatcher = KeyFieldMatcher{}

func (KeyFieldMatcher) Match(snap *Snapshot, scope srs.ExampleScope, note srs.Note) (*ExampleMatch, error) {
	if scope.KeyField == "" {
		return nil, &MatchError{
			Code:    MatchFailMissingKeyFieldConfig,
			Message: fmt.Sprintf("scope %q has no key field", scope.Name),
		}
	}

	raw := strings.TrimSpace(note.Field(scope.KeyField))
	if raw == "" {
		return nil, nil // opted out
	}

	key := raw
	var forced srs.NoteID
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		if id, err := strconv.ParseInt(strings.TrimSpace(raw[at+1:]), 10, 64); err == nil {
			forced = srs.NoteID(id)
			key = raw[:at]
		}
	}
	key = srs.NormalizeRelationID(key)

	var target srs.Note
	via := MatchViaSurface
	if forced != 0 {
		t, ok := snap.Note(forced)
		if !ok || t.NoteType != scope.TargetNoteType {
			return nil, &MatchError{
				Code:    MatchFailForceNoteNotFound,
				Message: fmt.Sprintf("forced note %d not found in %q", forced, scope.TargetNoteType),
			}
		}
		target = t
		via = MatchViaForced
	} else {
		var hits []srs.Note
		for _, id := range snap.NotesOfType(scope.TargetNoteType) {
			cand, ok := snap.Note(id)
			if !ok {
				continue
			}
			if srs.NormalizeRelationID(cand.Field(scope.TargetKeyField)) == key {
				hits = append(hits, cand)
			}
		}
		switch len(hits) {
		case 0:
			return nil, &MatchError{
				Code:    MatchFailNoteNotFound,
				Message: fmt.Sprintf("no %q note with key %q", scope.TargetNoteType, key),
			}
		case 1:
			target = hits[0]
		default:
			return nil, &MatchError{
				Code:    MatchFailAmbiguousLemma,
				Message: fmt.Sprintf("%d notes share key %q", len(hits), key),
			}
		}
	}

	cards := snap.CardsByTemplate(target.ID, scope.TargetTemplates)
	switch {
	case len(cards) == 0:
		return nil, &MatchError{
			Code:    MatchFailMissingClozeTarget,
			Message: fmt.Sprintf("note %d has no cards for templates %v", target.ID, scope.TargetTemplates),
		}
	case len(cards) > 2:
		return nil, &MatchError{
			Code:    MatchFailAmbiguousTargetCard,
			Message: fmt.Sprintf("note %d resolves to %d cards, want at most 2", target.ID, len(cards)),
		}
	}
	return &ExampleMatch{Targets: cards, Via: via}, nil
}
