package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yamadera/torii/internal/srs"
)

// MatchFailCode classifies why an example note could not be resolved to
// target cards. The codes are a closed vocabulary shared by every
// matcher implementation so reports stay comparable across matchers.
type MatchFailCode string

const (
	MatchFailNoteNotFound          MatchFailCode = "note_not_found"
	MatchFailMissingKeyFieldConfig MatchFailCode = "missing_key_field_config"
	MatchFailMissingClozeTarget    MatchFailCode = "missing_cloze_target"
	MatchFailAmbiguousTokenization MatchFailCode = "ambiguous_tokenization"
	MatchFailAmbiguousLemma        MatchFailCode = "ambiguous_lemma"
	MatchFailAmbiguousReading      MatchFailCode = "ambiguous_reading"
	MatchFailAmbiguousSuru         MatchFailCode = "ambiguous_suru"
	MatchFailAmbiguousSurfaceCard  MatchFailCode = "ambiguous_card_for_surface"
	MatchFailAmbiguousTargetCard   MatchFailCode = "ambiguous_target_card"
	MatchFailForceNoteNotFound     MatchFailCode = "force_nid_not_found"
)

// MatchVia records which strategy produced a successful match.
type MatchVia string

const (
	MatchViaSurface MatchVia = "surface_match"
	MatchViaReading MatchVia = "reading_fallback"
	MatchViaSuru    MatchVia = "suru_fallback"
	MatchViaForced  MatchVia = "forced"
)

// ExampleMatch is a successful resolution: the target cards whose
// readiness gates the example note, and how they were found. Matchers
// return at most two targets; more than that is a classified failure,
// not a bigger match.
type ExampleMatch struct {
	Targets []srs.CardID
	Via     MatchVia
}

// MatchError is a classified match failure. It is an error so matchers
// can return richer wrapped causes, but the gate only acts on the Code.
type MatchError struct {
	Code    MatchFailCode
	Message string
}

func (e *MatchError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ExampleMatcher resolves an example note to the target cards that gate
// it. Implementations must be pure with respect to the snapshot: same
// snapshot, same note, same answer.
//
// The contract has three outcomes:
//   - (match, nil): resolved; the gate evaluates match.Targets.
//   - (nil, *MatchError): classified failure; the note's cards suspend
//     and the failure is counted by code.
//   - (nil, nil): the note opts out of the gate entirely (for the
//     built-in matcher, an empty key field); no verdicts are emitted.
type ExampleMatcher interface {
	Match(snap *Snapshot, scope srs.ExampleScope, note srs.Note) (*ExampleMatch, error)
}

// runExampleGate emits verdicts for every note of one example scope.
func runExampleGate(ctx context.Context, pass *passContext, matcher ExampleMatcher, scope srs.ExampleScope) error {
	sticky := pass.cfg.StickyUnlock

	for _, id := range pass.snap.NotesOfType(scope.NoteType) {
		if err := ctx.Err(); err != nil {
			return err
		}
		note, ok := pass.snap.Note(id)
		if !ok {
			continue
		}

		match, err := matcher.Match(pass.snap, scope, note)
		if err == nil && match == nil {
			pass.report.Counters.SkippedExamples++
			continue
		}

		active := false
		via := MatchVia("")
		if err != nil {
			var me *MatchError
			if !errors.As(err, &me) {
				me = &MatchError{Code: MatchFailNoteNotFound, Message: err.Error()}
			}
			pass.report.Counters.countMatchFailure(me.Code)
		} else {
			via = match.Via
			active = pass.snap.Evaluate(match.Targets, scope.Threshold, scope.Policy).Ready
		}

		effective := active || (sticky && note.HasTag(srs.StickyExample))
		if active && sticky && !note.HasTag(srs.StickyExample) {
			pass.mark(id, srs.StickyExample)
		}
		if pass.cfg.Debug.WatchesNote(id) {
			slog.Info("watch: example note",
				"pass", pass.token,
				"scope", scope.Name,
				"note", id,
				"active", active,
				"via", string(via),
				"err", err,
			)
		}
		for _, card := range pass.snap.CardsByTemplate(id, nil) {
			if effective {
				pass.decisions.Release(card)
			} else {
				pass.decisions.Suspend(card, ProvenanceExample)
			}
		}
	}
	return nil
}
