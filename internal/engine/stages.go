package engine

import (
	"fmt"
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// StageState is one resolved tier of a note's chain.
type StageState struct {
	Def    srs.StageDef        `json:"def"`
	Result srs.ReadinessResult `json:"result"`
	// Unlocked follows the chain rule: stage k is unlocked iff k == 0 or
	// stages 0..k-1 all evaluated ready.
	Unlocked bool `json:"unlocked"`
	// Sticky is set when the note already carries this stage's unlock mark.
	Sticky bool `json:"sticky,omitempty"`
}

// Ready reports effective stage readiness: unlocked and evaluated ready.
func (s StageState) Ready() bool { return s.Unlocked && s.Result.Ready }

// ChainResult is the stage-chain verdict for one note.
type ChainResult struct {
	Note   srs.NoteID   `json:"note"`
	Stages []StageState `json:"stages"`
	// MaxUnlocked is the highest unlocked stage index. Stage 0 is always
	// unlocked, so this is >= 0 whenever the chain is non-empty.
	MaxUnlocked int `json:"max_unlocked"`
	// Stage0Ready feeds the family dependency graph.
	Stage0Ready bool `json:"stage0_ready"`
}

// validateStageDefs checks a note-type's chain before any evaluation:
// stage 0 must exist and indexes must be contiguous and duplicate-free.
// A violation is fatal for the note-type's scope, not the pass.
func validateStageDefs(noteType string, defs []srs.StageDef) *GateError {
	if len(defs) == 0 {
		return NewStageZeroMissingError(noteType)
	}
	sorted := make([]srs.StageDef, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i, def := range sorted {
		if def.Index != i {
			if i == 0 {
				return NewStageZeroMissingError(noteType)
			}
			return NewStageGapError(noteType, i, def.Index)
		}
	}
	return nil
}

// resolveChain evaluates one note's stage chain against the snapshot.
// defs must have passed validateStageDefs. The chain invariant is
// enforced by construction: the cumulative AND over evaluated readiness
// stops at the first not-ready stage, so a higher stage is never
// unlocked while a lower one is not ready, missing data included.
func resolveChain(snap *Snapshot, note srs.Note, defs []srs.StageDef, sticky bool, report *PassReport) ChainResult {
	ordered := make([]srs.StageDef, len(defs))
	copy(ordered, defs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	res := ChainResult{Note: note.ID, Stages: make([]StageState, 0, len(ordered)), MaxUnlocked: -1}

	chainOK := true
	for _, def := range ordered {
		st := StageState{Def: def, Unlocked: chainOK || def.Index == 0}

		cards := snap.CardsByTemplate(note.ID, def.Templates)
		if len(cards) == 0 {
			// Vacuously ready: an empty stage never blocks the chain,
			// but it is worth a configuration warning.
			st.Result = srs.ReadinessResult{
				Ready:     true,
				Observed:  srs.Observation{Kind: srs.ObservedMissing},
				Threshold: def.Threshold,
			}
			report.addDiag(Diagnostic{
				Severity: SeverityWarning,
				Code:     DiagEmptyStage,
				Scope:    note.NoteType,
				Note:     note.ID,
				Message:  fmt.Sprintf("stage %d matched no cards (templates %v)", def.Index, def.Templates),
			})
		} else {
			st.Result = snap.Evaluate(cards, def.Threshold, def.Policy)
		}

		if sticky {
			st.Sticky = note.HasTag(srs.StageUnlockTag(def.Index))
		}

		if st.Unlocked {
			res.MaxUnlocked = def.Index
		}
		if def.Index == 0 {
			res.Stage0Ready = st.Result.Ready
		}

		res.Stages = append(res.Stages, st)
		chainOK = chainOK && st.Result.Ready
	}

	return res
}
