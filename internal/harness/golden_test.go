package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

func TestRunWithGolden_StagePass(t *testing.T) {
	// No expect clause: the golden file is the whole assertion.
	scenario := &Scenario{
		Name:        "golden-stage-pass",
		Description: "golden rendering of a stage unlock pass",
		Config:      stageConfig,
		Collection:  stageFixture(),
	}

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	require.True(t, result.Pass)
}

func TestRunWithGolden_DryRunPlan(t *testing.T) {
	scenario := &Scenario{
		Name:        "golden-dry-run",
		Description: "golden rendering of a dry-run plan",
		Config:      stageConfig,
		Collection:  stageFixture(),
		DryRun:      true,
	}

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	require.True(t, result.Pass)
	require.True(t, result.Report.DryRun)
}

func TestRunWithGolden_SkippedPass(t *testing.T) {
	scenario := &Scenario{
		Name:        "golden-skipped",
		Description: "golden rendering of a disabled sync trigger",
		Config:      "run_on_sync: false\n" + stageConfig,
		Collection:  stageFixture(),
		Trigger:     "sync",
	}

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	require.True(t, result.Report.Skipped)
}

func TestAssertGolden_FromReport(t *testing.T) {
	// A single-stage chain over the shared fixture: the recognition card
	// is already active, so the pass plans nothing and only marks.
	scenario := &Scenario{
		Name:        "golden-direct",
		Description: "golden comparison through AssertGolden",
		Config:      `stages: vocab: [{index: 0, templates: ["recognition"], threshold: 2.5}]`,
		Collection:  stageFixture(),
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	AssertGolden(t, "golden-direct", result.Report)
}

func TestSnapshot_FullReport(t *testing.T) {
	report := &engine.PassReport{
		Token:   "pass-test-0009",
		Trigger: engine.TriggerSync,
		Counters: engine.Counters{
			Suspended:   2,
			Unsuspended: 1,
			NotesMarked: 1,
		},
		Plan: []engine.QueueChange{
			{Card: 101, To: srs.QueueSuspended, Reasons: []engine.Provenance{engine.ProvenanceStage, engine.ProvenanceExample}},
			{Card: 102, To: srs.QueueActive},
		},
		Marks: []engine.NoteMark{
			{Note: 1, Tags: []string{srs.StageUnlockTag(0)}},
		},
		Diagnostics: []engine.Diagnostic{
			{Severity: engine.SeverityWarning, Code: engine.DiagEmptyStage, Scope: "vocab", Note: 1, Message: "stage 1 matched no cards"},
			{Severity: engine.SeverityWarning, Code: engine.DiagDanglingPriority, Message: "no notes at priority 0"},
		},
		ScopeErrors: []*engine.GateError{
			engine.NewComponentCycleError("jouyou", []string{"山", "石", "山"}),
		},
	}

	want := `scenario: render
pass: pass-test-0009 trigger=sync
counters: suspended=2 unsuspended=1 marked=1
plan:
suspend   101 (stage,example)
unsuspend 102
marks:
1 torii::family_gate::unlocked::stage0
diagnostics:
warning EMPTY_STAGE_MEMBERS scope=vocab note=1
warning DANGLING_PRIORITY
errors:
COMPONENT_CYCLE scope=jouyou
`
	assert.Equal(t, want, string(Snapshot("render", report)))

	// Rendering is a pure function of the report.
	assert.Equal(t, Snapshot("render", report), Snapshot("render", report))
}

func TestSnapshot_Skipped(t *testing.T) {
	report := &engine.PassReport{
		Token:   "pass-test-0001",
		Trigger: engine.TriggerSync,
		Skipped: true,
	}

	want := `scenario: skip
pass: pass-test-0001 trigger=sync
skipped
`
	got := string(Snapshot("skip", report))
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "counters:")
}
