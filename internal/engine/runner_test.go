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

// Triggers are enqueued before Run starts and Stop is called up front, so
// the loop drains deterministically: no goroutines, no sleeps.
func TestRunner_CoalescesBursts(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	e := newExitEngine(coll, oracle, cfg, "pass-1")

	var reports []*engine.PassReport
	r := engine.NewRunner(e, func(rep *engine.PassReport) { reports = append(reports, rep) })

	assert.True(t, r.Trigger(engine.PassOptions{Trigger: engine.TriggerSync}))
	assert.True(t, r.Trigger(engine.PassOptions{Trigger: engine.TriggerSync}))
	assert.True(t, r.Trigger(engine.PassOptions{Trigger: engine.TriggerManual}))
	r.Stop()

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, reports, 1, "three triggers coalesce into one pass")
	assert.Equal(t, "pass-1", reports[0].Token)
	assert.Equal(t, engine.TriggerManual, reports[0].Trigger, "manual outranks sync")
	assert.Equal(t, srs.QueueSuspended, coll.Queue(20))

	assert.False(t, r.Trigger(engine.PassOptions{}), "stopped runner rejects triggers")
}

func TestRunner_FailedPassDoesNotStopTheLoop(t *testing.T) {
	coll, oracle, _ := exitWorld()
	e := engine.New(coll, oracle, testutil.StaticSource{Err: errors.New("config unreadable")},
		engine.WithTokenGenerator(engine.NewFixedGenerator("pass-1")))

	var reports []*engine.PassReport
	r := engine.NewRunner(e, func(rep *engine.PassReport) { reports = append(reports, rep) })
	r.Trigger(engine.PassOptions{})
	r.Stop()

	require.NoError(t, r.Run(context.Background()), "a failed pass is logged, not fatal")
	require.Len(t, reports, 1)
	assert.Equal(t, "pass-1", reports[0].Token)
}

func TestRunner_ContextCancellation(t *testing.T) {
	coll, oracle, cfg := exitWorld()
	e := newExitEngine(coll, oracle, cfg, "pass-1")
	r := engine.NewRunner(e, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.False(t, r.Trigger(engine.PassOptions{}), "cancellation closes the queue")
}
