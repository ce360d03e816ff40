package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yamadera/torii/internal/srs"
)

// sliceSnapshotter serves fixed data, ignoring the scope filter; tests
// pass pre-filtered fixtures.
type sliceSnapshotter struct {
	data CollectionData
	err  error
}

func (s sliceSnapshotter) ReadSnapshot(context.Context, SnapshotScope) (CollectionData, error) {
	if s.err != nil {
		return CollectionData{}, s.err
	}
	return s.data, nil
}

// mapOracle treats absent cards as unrated.
type mapOracle map[srs.CardID]float64

func (o mapOracle) StabilityOf(id srs.CardID) (float64, bool) {
	d, ok := o[id]
	return d, ok
}

func newTestSnapshot(t *testing.T, notes []srs.Note, cards []srs.Card, oracle mapOracle) *Snapshot {
	t.Helper()
	snap, err := BuildSnapshot(context.Background(),
		sliceSnapshotter{data: CollectionData{Notes: notes, Cards: cards}},
		oracle, SnapshotScope{})
	require.NoError(t, err)
	return snap
}

func note(id srs.NoteID, noteType string, fields map[string]string, tags ...string) srs.Note {
	return srs.Note{ID: id, NoteType: noteType, Fields: fields, Tags: tags}
}

func card(id srs.CardID, noteID srs.NoteID, ord int, template string) srs.Card {
	return srs.Card{ID: id, Note: noteID, Ord: ord, Template: template, Queue: srs.QueueActive}
}

func suspendedCard(id srs.CardID, noteID srs.NoteID, ord int, template string) srs.Card {
	c := card(id, noteID, ord, template)
	c.Queue = srs.QueueSuspended
	return c
}

// newTestPass assembles a passContext the way RunPass does, including
// stage validation, so resolver tests exercise the same plumbing.
func newTestPass(t *testing.T, cfg *srs.Config, snap *Snapshot) *passContext {
	t.Helper()
	pass := &passContext{
		token:       "pass-test",
		cfg:         cfg,
		snap:        snap,
		report:      &PassReport{Token: "pass-test"},
		decisions:   NewDecisionSet(),
		stagedTypes: make(map[string][]srs.StageDef),
		marks:       make(map[srs.NoteID]map[string]bool),
	}
	for nt, defs := range cfg.Stages {
		if ge := validateStageDefs(nt, defs); ge != nil {
			pass.report.ScopeErrors = append(pass.report.ScopeErrors, ge)
			continue
		}
		pass.stagedTypes[nt] = defs
	}
	return pass
}

// planOf runs decisions into a sorted delta for assertions.
func planOf(pass *passContext) []QueueChange {
	return pass.decisions.Plan(pass.snap)
}

// decidedSuspend reports whether the card's merged verdict is a
// suspension carrying the given provenance.
func decidedSuspend(t *testing.T, pass *passContext, id srs.CardID, reason Provenance) bool {
	t.Helper()
	dec, ok := pass.decisions.Decision(id)
	if !ok || !dec.Suspend {
		return false
	}
	for _, r := range dec.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// decidedRelease reports an explicit active verdict.
func decidedRelease(pass *passContext, id srs.CardID) bool {
	dec, ok := pass.decisions.Decision(id)
	return ok && !dec.Suspend
}
