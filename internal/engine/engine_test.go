package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
	"github.com/yamadera/torii/internal/testutil"
)

// exitWorld is the suffix-family fixture: 出口 founds the relation 〜口,
// 北口 depends on it at priority 1 and on 北 for vocabulary membership.
//
//	note 1  出口  Links "〜口"       card 10
//	note 2  北口  Links "北;〜口@1"  card 20
//	note 3  北    Links "北"         card 30
func exitWorld() (*testutil.FakeCollection, *testutil.StaticOracle, *srs.Config) {
	coll := testutil.NewFakeCollection()
	coll.AddNote(srs.Note{ID: 1, NoteType: "vocab", Fields: map[string]string{"Expression": "出口", "Links": "〜口"}})
	coll.AddNote(srs.Note{ID: 2, NoteType: "vocab", Fields: map[string]string{"Expression": "北口", "Links": "北;〜口@1"}})
	coll.AddNote(srs.Note{ID: 3, NoteType: "vocab", Fields: map[string]string{"Expression": "北", "Links": "北"}})
	coll.AddCard(srs.Card{ID: 10, Note: 1, Ord: 0, Template: "recognition", Queue: srs.QueueActive})
	coll.AddCard(srs.Card{ID: 20, Note: 2, Ord: 0, Template: "recognition", Queue: srs.QueueActive})
	coll.AddCard(srs.Card{ID: 30, Note: 3, Ord: 0, Template: "recognition", Queue: srs.QueueActive})

	oracle := testutil.NewStaticOracle().Rate(30, 9) // 北 is solid, 出口 unrated

	cfg := &srs.Config{
		StickyUnlock: true,
		RunOnSync:    true,
		RunOnManual:  true,
		Stages: map[string][]srs.StageDef{
			"vocab": {{Index: 0, Templates: []string{"recognition"}, Threshold: 5, Policy: srs.AggregateMin}},
		},
		Family: srs.FamilySettings{NoteTypes: []string{"vocab"}, Field: "Links", Separator: ";"},
	}
	return coll, oracle, cfg
}

func newExitEngine(coll *testutil.FakeCollection, oracle *testutil.StaticOracle, cfg *srs.Config, tokens ...string) *engine.Engine {
	return engine.New(coll, oracle, testutil.StaticSource{Cfg: cfg},
		engine.WithTokenGenerator(engine.NewFixedGenerator(tokens...)))
}

func TestEngine_FamilyScenario(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	e := newExitEngine(coll, oracle, cfg, "pass-1", "pass-2", "pass-3")
	ctx := context.Background()

	// Pass 1: 出口 is unrated, so 北口's priority link is unsatisfied.
	report, err := e.RunPass(ctx, engine.PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, "pass-1", report.Token)
	assert.Equal(t, int64(1), report.Seq)
	require.Equal(t, []engine.QueueChange{
		{Card: 20, To: srs.QueueSuspended, Reasons: []engine.Provenance{engine.ProvenanceFamily}},
	}, report.Plan)
	assert.Equal(t, srs.QueueSuspended, coll.Queue(20))
	assert.Equal(t, srs.QueueActive, coll.Queue(10), "出口 itself is stage 0, never blocked")
	assert.Equal(t, 1, report.Counters.Suspended)
	assert.Equal(t, 1, report.Counters.SuspendedBy[engine.ProvenanceFamily])
	assert.Equal(t, 1, report.Applied.Applied)

	// Family-ready notes get their stage-0 unlock mark immediately.
	assert.Contains(t, coll.Tags(1), srs.StageUnlockTag(0))
	assert.Contains(t, coll.Tags(3), srs.StageUnlockTag(0))
	assert.NotContains(t, coll.Tags(2), srs.StageUnlockTag(0))
	assert.Equal(t, 2, report.Counters.NotesMarked)

	// Pass 2: 出口 crosses the threshold, 北口 unsuspends.
	oracle.Rate(10, 9)
	report, err = e.RunPass(ctx, engine.PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Seq)
	require.Equal(t, []engine.QueueChange{{Card: 20, To: srs.QueueActive}}, report.Plan)
	assert.Equal(t, srs.QueueActive, coll.Queue(20))
	assert.Equal(t, 1, report.Counters.Unsuspended)
	assert.Contains(t, coll.Tags(2), srs.StageUnlockTag(0))
	assert.Equal(t, 1, report.Counters.NotesMarked, "only 北口's mark is new")

	// Pass 3: nothing changed, nothing to write.
	applyCalls := len(coll.Batches)
	report, err = e.RunPass(ctx, engine.PassOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Plan)
	assert.Empty(t, report.Marks)
	assert.Len(t, coll.Batches, applyCalls, "empty plan issues no writes")
}

func TestEngine_DryRun(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	e := newExitEngine(coll, oracle, cfg, "pass-1")

	report, err := e.RunPass(context.Background(), engine.PassOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	require.Len(t, report.Plan, 1)
	assert.Equal(t, srs.CardID(20), report.Plan[0].Card)
	assert.Equal(t, srs.QueueSuspended, report.Plan[0].To)

	assert.Equal(t, srs.QueueActive, coll.Queue(20), "dry run writes nothing")
	assert.Empty(t, coll.Batches)
	assert.Zero(t, coll.TagWrites)
	assert.Nil(t, report.Applied)
	assert.Equal(t, 2, report.Counters.NotesMarked, "planned marks still counted")
}

func TestEngine_TriggerDisabled(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	cfg.RunOnSync = false
	e := newExitEngine(coll, oracle, cfg, "pass-1", "pass-2")
	ctx := context.Background()

	report, err := e.RunPass(ctx, engine.PassOptions{Trigger: engine.TriggerSync})
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, coll.Batches)

	report, err = e.RunPass(ctx, engine.PassOptions{Trigger: engine.TriggerSync, Force: true})
	require.NoError(t, err)
	assert.False(t, report.Skipped, "Force runs past the trigger gate")
	assert.NotEmpty(t, report.Plan)
}

func TestEngine_ConfigLoadFailure(t *testing.T) {
	coll, oracle, _ := exitWorld()
	e := engine.New(coll, oracle, testutil.StaticSource{Err: errors.New("cue: field not allowed")},
		engine.WithTokenGenerator(engine.NewFixedGenerator("pass-1")))

	report, err := e.RunPass(context.Background(), engine.PassOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "load gating config")
	require.NotNil(t, report, "the report carries the token even on failure")
	assert.Equal(t, "pass-1", report.Token)
}

func TestEngine_SnapshotFailure(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	coll.SnapshotErr = errors.New("database is locked")
	e := newExitEngine(coll, oracle, cfg, "pass-1")

	_, err := e.RunPass(context.Background(), engine.PassOptions{})
	require.Error(t, err)
	var ge *engine.GateError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, engine.ErrCodeSnapshotFailed, ge.Code)
}

func TestEngine_BrokenStageChainRejectsNoteTypeOnly(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	cfg.Stages["vocab"] = []srs.StageDef{
		{Index: 0, Templates: []string{"recognition"}, Threshold: 5},
		{Index: 2, Templates: []string{"listening"}, Threshold: 10}, // gap
	}
	e := newExitEngine(coll, oracle, cfg, "pass-1")

	report, err := e.RunPass(context.Background(), engine.PassOptions{})
	require.NoError(t, err, "a scope error does not fail the pass")
	require.Len(t, report.ScopeErrors, 1)
	assert.Equal(t, engine.ErrCodeStageGap, report.ScopeErrors[0].Code)
	assert.Equal(t, "pass-1", report.ScopeErrors[0].PassToken)
	assert.Empty(t, report.Plan, "cards of the rejected note-type keep their state")
	assert.Equal(t, srs.QueueActive, coll.Queue(20))
}

// fanWorld plans three suspensions: notes 6, 7, 8 all depend on relation
// x at priority 1, founded by the unrated note 5.
func fanWorld() (*testutil.FakeCollection, *testutil.StaticOracle, *srs.Config) {
	coll := testutil.NewFakeCollection()
	coll.AddNote(srs.Note{ID: 5, NoteType: "vocab", Fields: map[string]string{"Links": "x"}})
	coll.AddCard(srs.Card{ID: 50, Note: 5, Ord: 0, Template: "recognition", Queue: srs.QueueActive})
	for id := srs.NoteID(6); id <= 8; id++ {
		coll.AddNote(srs.Note{ID: id, NoteType: "vocab", Fields: map[string]string{"Links": "x@1"}})
		coll.AddCard(srs.Card{ID: srs.CardID(id * 10), Note: id, Ord: 0, Template: "recognition", Queue: srs.QueueActive})
	}

	cfg := &srs.Config{
		RunOnManual:    true,
		ApplyChunkSize: 1,
		Stages: map[string][]srs.StageDef{
			"vocab": {{Index: 0, Templates: []string{"recognition"}, Threshold: 5, Policy: srs.AggregateMin}},
		},
		Family: srs.FamilySettings{NoteTypes: []string{"vocab"}, Field: "Links"},
	}
	return coll, testutil.NewStaticOracle(), cfg
}

func TestEngine_PartialApplyThenConvergence(t *testing.T) {
	coll, oracle, cfg := fanWorld()
	coll.BatchLimit = 2 // the 3-change batch is rejected, forcing chunks
	coll.FailCard = 70  // and the second chunk dies
	e := newExitEngine(coll, oracle, cfg, "pass-1", "pass-2", "pass-3")
	ctx := context.Background()

	report, err := e.RunPass(ctx, engine.PassOptions{})
	require.Error(t, err)
	assert.True(t, engine.IsPartialApply(err))
	require.Len(t, report.Plan, 3)
	assert.Equal(t, 1, report.Applied.Applied, "only the first chunk landed")
	assert.Equal(t, srs.QueueSuspended, coll.Queue(60))
	assert.Equal(t, srs.QueueActive, coll.Queue(70))
	assert.Equal(t, srs.QueueActive, coll.Queue(80))

	// The durable prefix shrinks the next delta; the retry finishes the job.
	coll.FailCard = 0
	report, err = e.RunPass(ctx, engine.PassOptions{})
	require.NoError(t, err)
	assert.Len(t, report.Plan, 2)
	assert.Equal(t, 2, report.Applied.Applied)
	assert.Equal(t, srs.QueueSuspended, coll.Queue(70))
	assert.Equal(t, srs.QueueSuspended, coll.Queue(80))

	report, err = e.RunPass(ctx, engine.PassOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Plan, "converged")
}

func TestEngine_VerifyApply(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	cfg.Debug.VerifyApply = true
	e := newExitEngine(coll, oracle, cfg, "pass-1")

	report, err := e.RunPass(context.Background(), engine.PassOptions{})
	require.NoError(t, err)
	require.NotNil(t, report.Applied)
	assert.Equal(t, 1, report.Applied.Verified)
	assert.Zero(t, report.Applied.Mismatched)
}

func TestEngine_SeededClock(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	e := engine.New(coll, oracle, testutil.StaticSource{Cfg: cfg},
		engine.WithTokenGenerator(engine.NewFixedGenerator("pass-1", "pass-2")),
		engine.WithPassClock(engine.NewClockAt(100)))
	ctx := context.Background()

	report, err := e.RunPass(ctx, engine.PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(101), report.Seq)

	report, err = e.RunPass(ctx, engine.PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(102), report.Seq)
}
