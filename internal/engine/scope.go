package engine

import (
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// Trigger names what started a pass. Configuration can disable passes
// per trigger (runOnManual, runOnSync); an explicit CLI invocation
// forces past that.
type Trigger string

const (
	// TriggerManual is a user-initiated run.
	TriggerManual Trigger = "manual"
	// TriggerSync is a run hooked to the host's sync cycle.
	TriggerSync Trigger = "sync"
)

// enabledFor reports whether configuration allows passes for t.
func enabledFor(cfg *srs.Config, t Trigger) bool {
	switch t {
	case TriggerSync:
		return cfg.RunOnSync
	case TriggerManual:
		return cfg.RunOnManual
	}
	return true
}

// GateSelection picks which resolvers a pass runs. The stage chain and
// the family graph always run together: their verdicts combine by AND
// and splitting them would let a half-pass unsuspend cards the other
// half wants suspended.
type GateSelection struct {
	Family     bool
	Components bool
	Examples   bool
}

// AllGates selects every resolver.
func AllGates() GateSelection {
	return GateSelection{Family: true, Components: true, Examples: true}
}

// none reports whether nothing is selected.
func (g GateSelection) none() bool {
	return !g.Family && !g.Components && !g.Examples
}

// PassOptions parameterize one pass.
type PassOptions struct {
	// Trigger defaults to TriggerManual.
	Trigger Trigger
	// Gates defaults to AllGates when zero.
	Gates GateSelection
	// DryRun computes decisions and the plan but applies nothing.
	DryRun bool
	// Force runs even when configuration disables the trigger.
	Force bool
}

func (o PassOptions) normalized() PassOptions {
	if o.Trigger == "" {
		o.Trigger = TriggerManual
	}
	if o.Gates.none() {
		o.Gates = AllGates()
	}
	return o
}

// snapshotScope collects every note-type the selected gates can touch.
// Note-types outside this set are never read, let alone written.
func snapshotScope(cfg *srs.Config, gates GateSelection) SnapshotScope {
	seen := make(map[string]bool)
	var types []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		types = append(types, name)
	}

	if gates.Family {
		for nt := range cfg.Stages {
			add(nt)
		}
		for _, nt := range cfg.Family.NoteTypes {
			add(nt)
		}
	}
	if gates.Components {
		for _, scope := range cfg.Components {
			add(scope.Vocab.NoteType)
			add(scope.Kanji.NoteType)
			add(scope.Radical.NoteType)
		}
	}
	if gates.Examples {
		for _, scope := range cfg.Examples {
			add(scope.NoteType)
			add(scope.TargetNoteType)
		}
	}

	sort.Strings(types)
	return SnapshotScope{NoteTypes: types}
}
