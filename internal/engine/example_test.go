package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamadera/torii/internal/srs"
)

func sentenceScope() srs.ExampleScope {
	return srs.ExampleScope{
		Name:            "sentence-gate",
		NoteType:        "sentence",
		Threshold:       5,
		Policy:          srs.AggregateMin,
		KeyField:        "Target",
		TargetNoteType:  "vocab",
		TargetKeyField:  "Expression",
		TargetTemplates: []string{"recognition"},
	}
}

// matchWorld is the vocab side shared by the matcher tests: 走る with a
// recognition and a listening card, 歩く with recognition only.
func matchWorld(t *testing.T, extra ...srs.Note) *Snapshot {
	t.Helper()
	notes := []srs.Note{
		note(1, "vocab", map[string]string{"Expression": "走る"}),
		note(2, "vocab", map[string]string{"Expression": "歩く"}),
	}
	notes = append(notes, extra...)
	cards := []srs.Card{
		card(10, 1, 0, "recognition"),
		card(11, 1, 1, "listening"),
		card(20, 2, 0, "recognition"),
	}
	return newTestSnapshot(t, notes, cards, mapOracle{})
}

func matchErr(t *testing.T, err error) *MatchError {
	t.Helper()
	var me *MatchError
	require.ErrorAs(t, err, &me)
	return me
}

func TestKeyFieldMatcher_Surface(t *testing.T) {
	snap := matchWorld(t)
	ex := note(100, "sentence", map[string]string{"Target": "走る"})

	match, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, MatchViaSurface, match.Via)
	assert.Equal(t, []srs.CardID{10}, match.Targets, "listening card filtered out by template")
}

func TestKeyFieldMatcher_SurfaceMisses(t *testing.T) {
	snap := matchWorld(t)
	ex := note(100, "sentence", map[string]string{"Target": "泳ぐ"})

	match, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
	assert.Nil(t, match)
	assert.Equal(t, MatchFailNoteNotFound, matchErr(t, err).Code)
}

func TestKeyFieldMatcher_AmbiguousKey(t *testing.T) {
	dup := note(3, "vocab", map[string]string{"Expression": "走る"})
	snap := newTestSnapshot(t,
		[]srs.Note{
			note(1, "vocab", map[string]string{"Expression": "走る"}),
			dup,
		},
		[]srs.Card{card(10, 1, 0, "recognition"), card(30, 3, 0, "recognition")},
		mapOracle{})
	ex := note(100, "sentence", map[string]string{"Target": "走る"})

	match, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
	assert.Nil(t, match)
	assert.Equal(t, MatchFailAmbiguousLemma, matchErr(t, err).Code)
}

func TestKeyFieldMatcher_Forced(t *testing.T) {
	snap := matchWorld(t)

	t.Run("suffix forces the named note", func(t *testing.T) {
		ex := note(100, "sentence", map[string]string{"Target": "走る@2"})
		match, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
		require.NoError(t, err)
		assert.Equal(t, MatchViaForced, match.Via)
		assert.Equal(t, []srs.CardID{20}, match.Targets)
	})

	t.Run("unknown note id", func(t *testing.T) {
		ex := note(100, "sentence", map[string]string{"Target": "走る@99"})
		_, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
		assert.Equal(t, MatchFailForceNoteNotFound, matchErr(t, err).Code)
	})

	t.Run("forced note of the wrong type", func(t *testing.T) {
		snap := matchWorld(t, note(7, "sentence", map[string]string{"Target": ""}))
		ex := note(100, "sentence", map[string]string{"Target": "走る@7"})
		_, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
		assert.Equal(t, MatchFailForceNoteNotFound, matchErr(t, err).Code)
	})

	t.Run("non-integer suffix stays part of the key", func(t *testing.T) {
		snap := newTestSnapshot(t,
			[]srs.Note{note(1, "vocab", map[string]string{"Expression": "a@b"})},
			[]srs.Card{card(10, 1, 0, "recognition")},
			mapOracle{})
		ex := note(100, "sentence", map[string]string{"Target": "a@b"})
		match, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
		require.NoError(t, err)
		assert.Equal(t, MatchViaSurface, match.Via)
		assert.Equal(t, []srs.CardID{10}, match.Targets)
	})
}

func TestKeyFieldMatcher_NormalizesKeys(t *testing.T) {
	// Decomposed か + voiced mark on the target side, precomposed が on
	// the example side; both normalize to the same key.
	snap := newTestSnapshot(t,
		[]srs.Note{note(1, "vocab", map[string]string{"Expression": "が"})},
		[]srs.Card{card(10, 1, 0, "recognition")},
		mapOracle{})
	ex := note(100, "sentence", map[string]string{"Target": "が"})

	match, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
	require.NoError(t, err)
	assert.Equal(t, []srs.CardID{10}, match.Targets)
}

func TestKeyFieldMatcher_ConfigAndCardFailures(t *testing.T) {
	t.Run("missing key field config", func(t *testing.T) {
		scope := sentenceScope()
		scope.KeyField = ""
		_, err := KeyFieldMatcher{}.Match(matchWorld(t), scope, note(100, "sentence", nil))
		assert.Equal(t, MatchFailMissingKeyFieldConfig, matchErr(t, err).Code)
	})

	t.Run("empty key opts out", func(t *testing.T) {
		ex := note(100, "sentence", map[string]string{"Target": "  "})
		match, err := KeyFieldMatcher{}.Match(matchWorld(t), sentenceScope(), ex)
		assert.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("no cards for the gating templates", func(t *testing.T) {
		snap := newTestSnapshot(t,
			[]srs.Note{note(1, "vocab", map[string]string{"Expression": "走る"})},
			[]srs.Card{card(11, 1, 1, "listening")},
			mapOracle{})
		ex := note(100, "sentence", map[string]string{"Target": "走る"})
		_, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
		assert.Equal(t, MatchFailMissingClozeTarget, matchErr(t, err).Code)
	})

	t.Run("more than two target cards", func(t *testing.T) {
		snap := newTestSnapshot(t,
			[]srs.Note{note(1, "vocab", map[string]string{"Expression": "走る"})},
			[]srs.Card{
				card(10, 1, 0, "recognition"),
				card(11, 1, 1, "recognition"),
				card(12, 1, 2, "recognition"),
			},
			mapOracle{})
		ex := note(100, "sentence", map[string]string{"Target": "走る"})
		_, err := KeyFieldMatcher{}.Match(snap, sentenceScope(), ex)
		assert.Equal(t, MatchFailAmbiguousTargetCard, matchErr(t, err).Code)
	})
}

// exampleFixture wires one sentence per resolution outcome into a full
// pass: ready target, unready target, missing target, opted out.
func exampleFixture(t *testing.T, sticky bool, oracle mapOracle, sentenceTags map[srs.NoteID][]string) *passContext {
	t.Helper()
	scope := sentenceScope()
	notes := []srs.Note{
		note(1, "vocab", map[string]string{"Expression": "走る"}),
		note(2, "vocab", map[string]string{"Expression": "歩く"}),
		note(100, "sentence", map[string]string{"Target": "走る"}),
		note(101, "sentence", map[string]string{"Target": "歩く"}),
		note(102, "sentence", map[string]string{"Target": "泳ぐ"}),
		note(103, "sentence", map[string]string{"Target": ""}),
	}
	for i := range notes {
		notes[i].Tags = sentenceTags[notes[i].ID]
	}
	cards := []srs.Card{
		card(10, 1, 0, "recognition"),
		card(20, 2, 0, "recognition"),
		card(1000, 100, 0, "cloze"),
		card(1010, 101, 0, "cloze"),
		card(1020, 102, 0, "cloze"),
		card(1030, 103, 0, "cloze"),
	}
	cfg := &srs.Config{StickyUnlock: sticky, Examples: []srs.ExampleScope{scope}}
	pass := newTestPass(t, cfg, newTestSnapshot(t, notes, cards, oracle))
	require.NoError(t, runExampleGate(context.Background(), pass, KeyFieldMatcher{}, scope))
	return pass
}

func TestRunExampleGate_Verdicts(t *testing.T) {
	// 走る ready (9 >= 5), 歩く not (2 < 5), 泳ぐ unmatched, "" opted out.
	pass := exampleFixture(t, false, mapOracle{10: 9, 20: 2}, nil)

	assert.True(t, decidedRelease(pass, 1000), "ready target releases the sentence")
	assert.True(t, decidedSuspend(t, pass, 1010, ProvenanceExample), "unready target suspends")
	assert.True(t, decidedSuspend(t, pass, 1020, ProvenanceExample), "match failure suspends")

	_, touched := pass.decisions.Decision(1030)
	assert.False(t, touched, "opted-out sentence is ungoverned")
	assert.Equal(t, 1, pass.report.Counters.SkippedExamples)
	assert.Equal(t, 1, pass.report.Counters.MatchFailures[MatchFailNoteNotFound])
}

func TestRunExampleGate_StickyUnlock(t *testing.T) {
	tags := map[srs.NoteID][]string{100: {srs.StickyExample}}

	t.Run("sticky keeps a regressed sentence active", func(t *testing.T) {
		pass := exampleFixture(t, true, mapOracle{10: 1, 20: 2}, tags)
		assert.True(t, decidedRelease(pass, 1000))
	})

	t.Run("without sticky the regression suspends", func(t *testing.T) {
		pass := exampleFixture(t, false, mapOracle{10: 1, 20: 2}, tags)
		assert.True(t, decidedSuspend(t, pass, 1000, ProvenanceExample))
	})

	t.Run("new unlocks are marked once", func(t *testing.T) {
		pass := exampleFixture(t, true, mapOracle{10: 9, 20: 2}, tags)
		marks := pass.markList()
		require.Len(t, marks, 0, "note 100 already carries the tag, nothing else unlocked")

		pass = exampleFixture(t, true, mapOracle{10: 9, 20: 2}, nil)
		marks = pass.markList()
		require.Len(t, marks, 1)
		assert.Equal(t, srs.NoteID(100), marks[0].Note)
		assert.Equal(t, []string{srs.StickyExample}, marks[0].Tags)
	})
}

// shortCircuitMatcher returns a plain error to exercise the gate's
// fallback classification.
type shortCircuitMatcher struct{ err error }

func (m shortCircuitMatcher) Match(*Snapshot, srs.ExampleScope, srs.Note) (*ExampleMatch, error) {
	return nil, m.err
}

func TestRunExampleGate_UnclassifiedErrorCountsAsNotFound(t *testing.T) {
	scope := sentenceScope()
	notes := []srs.Note{note(100, "sentence", map[string]string{"Target": "x"})}
	cards := []srs.Card{card(1000, 100, 0, "cloze")}
	cfg := &srs.Config{Examples: []srs.ExampleScope{scope}}
	pass := newTestPass(t, cfg, newTestSnapshot(t, notes, cards, mapOracle{}))

	m := shortCircuitMatcher{err: errors.New("tokenizer crashed")}
	require.NoError(t, runExampleGate(context.Background(), pass, m, scope))

	assert.True(t, decidedSuspend(t, pass, 1000, ProvenanceExample))
	assert.Equal(t, 1, pass.report.Counters.MatchFailures[MatchFailNoteNotFound])
}

func TestRunExampleGate_Cancellation(t *testing.T) {
	scope := sentenceScope()
	notes := []srs.Note{note(100, "sentence", map[string]string{"Target": "x"})}
	cfg := &srs.Config{Examples: []srs.ExampleScope{scope}}
	pass := newTestPass(t, cfg, newTestSnapshot(t, notes, nil, mapOracle{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runExampleGate(ctx, pass, KeyFieldMatcher{}, scope)
	assert.ErrorIs(t, err, context.Canceled)
}
