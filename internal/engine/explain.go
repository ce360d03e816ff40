package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// NoteExplanation is the full gating diagnosis for one note: its stage
// chain, its family links with per-prerequisite readiness, its role in
// every component scope, its example resolutions and the per-card
// verdicts a pass over the current collection state would emit. Nothing
// is written; an explanation is a dry look at one note's slice of a
// pass.
type NoteExplanation struct {
	Note srs.Note `json:"note"`
	// Chain is nil when the note's type has no validated stage chain.
	Chain        *ChainResult `json:"chain,omitempty"`
	FamilyScoped bool         `json:"family_scoped"`
	// FamilyReady is the AND over every positive-priority link below.
	// Vacuously true outside the family scope or without links.
	FamilyReady  bool               `json:"family_ready"`
	Links        []LinkExplanation  `json:"links,omitempty"`
	Components   []ComponentVerdict `json:"components,omitempty"`
	Examples     []ExampleVerdict   `json:"examples,omitempty"`
	Cards        []CardVerdict      `json:"cards,omitempty"`
	PendingMarks []string           `json:"pending_marks,omitempty"`
	// Diagnostics holds only the diagnostics attributed to this note.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// ScopeErrors carries the pass-level scope rejections, since a
	// rejected scope silently contributes no verdicts for the note.
	ScopeErrors []*GateError `json:"scope_errors,omitempty"`
}

// LinkExplanation is one parsed relation link and why it is or is not
// satisfied.
type LinkExplanation struct {
	RelationID string `json:"relation_id"`
	Priority   int    `json:"priority"`
	Satisfied  bool   `json:"satisfied"`
	// Dangling is set when the prerequisite tier has no members.
	Dangling bool `json:"dangling,omitempty"`
	// Prerequisites lists the tier the link waits on, one entry per
	// member note. Empty for priority-0 links and dangling references.
	Prerequisites []PrerequisiteState `json:"prerequisites,omitempty"`
}

// PrerequisiteState is the stage-0 signal of one prerequisite note.
type PrerequisiteState struct {
	Note        srs.NoteID `json:"note"`
	Stage0Ready bool       `json:"stage0_ready"`
}

// ComponentVerdict is the note's standing in one component scope. A
// note appears once per role it plays there: "unit" and "radical"
// carry the owned character, "vocab" reports the contributor's base
// readiness.
type ComponentVerdict struct {
	Scope    string `json:"scope"`
	Role     string `json:"role"`
	Char     string `json:"char,omitempty"`
	Unlocked bool   `json:"unlocked"`
}

// ExampleVerdict is one example scope's resolution of the note.
type ExampleVerdict struct {
	Scope string `json:"scope"`
	// OptedOut is set when the matcher declined the note (empty key).
	OptedOut bool          `json:"opted_out,omitempty"`
	FailCode MatchFailCode `json:"fail_code,omitempty"`
	Via      MatchVia      `json:"via,omitempty"`
	Targets  []srs.CardID  `json:"targets,omitempty"`
	// Result is the readiness of the matched targets; zero-valued when
	// the note opted out or the match failed.
	Result srs.ReadinessResult `json:"result"`
}

// CardVerdict pairs one card's observed queue state with the state the
// pass decided for it. Undecided cards report their observed state as
// the target; the executor would leave them alone.
type CardVerdict struct {
	Card     srs.CardID     `json:"card"`
	Template string         `json:"template"`
	Queue    srs.QueueState `json:"queue"`
	Target   srs.QueueState `json:"target"`
	Decided  bool           `json:"decided"`
	Reasons  []Provenance   `json:"reasons,omitempty"`
}

// Explain resolves every gate against the current collection state and
// reports how the verdicts for one note came about. It reads exactly
// what RunPass would read and computes exactly what RunPass would
// compute, but applies nothing.
//
// The note must be visible under the configured gating scope; asking
// about a note of an unconfigured note-type is an error, not an empty
// answer.
func (e *Engine) Explain(ctx context.Context, id srs.NoteID) (*NoteExplanation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.source.GatingConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gating config: %w", err)
	}

	snap, err := BuildSnapshot(ctx, e.coll, e.oracle, snapshotScope(cfg, AllGates()))
	if err != nil {
		return nil, err
	}
	note, ok := snap.Note(id)
	if !ok {
		return nil, fmt.Errorf("note %d not found in configured gating scope", id)
	}

	token := e.tokens.Generate()
	pass := &passContext{
		token:       token,
		cfg:         cfg,
		snap:        snap,
		report:      &PassReport{Token: token},
		decisions:   NewDecisionSet(),
		stagedTypes: make(map[string][]srs.StageDef),
		marks:       make(map[srs.NoteID]map[string]bool),
	}
	noteTypes := make([]string, 0, len(cfg.Stages))
	for nt := range cfg.Stages {
		noteTypes = append(noteTypes, nt)
	}
	sort.Strings(noteTypes)
	for _, nt := range noteTypes {
		if ge := validateStageDefs(nt, cfg.Stages[nt]); ge != nil {
			ge.PassToken = token
			pass.report.ScopeErrors = append(pass.report.ScopeErrors, ge)
			continue
		}
		pass.stagedTypes[nt] = cfg.Stages[nt]
	}

	if err := e.runGates(ctx, pass, AllGates()); err != nil {
		if ctx.Err() != nil {
			return nil, NewCancelledError(token, err)
		}
		return nil, err
	}

	return e.explainNote(ctx, pass, note), nil
}

// explainNote assembles the explanation from a finished pass. Chain and
// link detail is recomputed on a scratch context so the re-evaluation
// does not double the diagnostics the pass already emitted.
func (e *Engine) explainNote(ctx context.Context, pass *passContext, note srs.Note) *NoteExplanation {
	scratch := &passContext{
		token:       pass.token,
		cfg:         pass.cfg,
		snap:        pass.snap,
		report:      &PassReport{Token: pass.token},
		decisions:   NewDecisionSet(),
		stagedTypes: pass.stagedTypes,
		marks:       make(map[srs.NoteID]map[string]bool),
	}
	lookup := e.lookup
	if lookup == nil {
		lookup = newSnapshotLookup(pass.snap, pass.cfg)
	}
	detail := newFamilyResolver(scratch, lookup)

	out := &NoteExplanation{
		Note:         note,
		FamilyScoped: detail.familyScoped[note.NoteType],
		FamilyReady:  true,
	}

	if _, staged := pass.stagedTypes[note.NoteType]; staged {
		out.Chain = detail.chainOf(note)
	}

	if out.FamilyScoped {
		syntax := pass.cfg.Family.Syntax()
		for _, link := range srs.ParseRelationLinks(note.Field(pass.cfg.Family.Field), syntax) {
			le := explainLink(ctx, detail, link)
			if link.Priority > 0 && !le.Satisfied {
				out.FamilyReady = false
			}
			out.Links = append(out.Links, le)
		}
	}

	for _, scope := range pass.cfg.Components {
		cs, ge := buildComponentScope(scratch, scope)
		if ge != nil {
			// The pass already rejected this scope; its error is in
			// ScopeErrors below.
			continue
		}
		out.Components = append(out.Components, componentVerdicts(cs, note.ID)...)
	}

	for _, scope := range pass.cfg.Examples {
		if note.NoteType != scope.NoteType {
			continue
		}
		out.Examples = append(out.Examples, e.exampleVerdict(pass.snap, scope, note))
	}

	for _, card := range pass.snap.Cards(note.ID) {
		cv := CardVerdict{
			Card:     card.ID,
			Template: card.Template,
			Queue:    pass.snap.Queue(card.ID),
		}
		cv.Target = cv.Queue
		if dec, ok := pass.decisions.Decision(card.ID); ok {
			cv.Decided = true
			cv.Target = srs.QueueActive
			if dec.Suspend {
				cv.Target = srs.QueueSuspended
				cv.Reasons = append(cv.Reasons, dec.Reasons...)
			}
		}
		out.Cards = append(out.Cards, cv)
	}

	if tags := pass.marks[note.ID]; len(tags) > 0 {
		for tag := range tags {
			out.PendingMarks = append(out.PendingMarks, tag)
		}
		sort.Strings(out.PendingMarks)
	}

	for _, d := range pass.report.Diagnostics {
		if d.Note == note.ID {
			out.Diagnostics = append(out.Diagnostics, d)
		}
	}
	out.ScopeErrors = pass.report.ScopeErrors

	return out
}

// explainLink expands one link into its prerequisite tier. The
// satisfaction rule matches linkSatisfied; the expansion additionally
// names every prerequisite and its stage-0 state.
func explainLink(ctx context.Context, detail *familyResolver, link srs.RelationLink) LinkExplanation {
	le := LinkExplanation{RelationID: link.RelationID, Priority: link.Priority}
	if link.Priority == 0 {
		// Anchor tier: declares membership, waits on nothing.
		le.Satisfied = true
		return le
	}

	tiers := detail.tiersOf(ctx, link.RelationID)
	if tiers == nil {
		return le
	}
	deps := tiers[link.Priority-1]
	if len(deps) == 0 {
		le.Dangling = true
		return le
	}

	le.Satisfied = true
	for _, dep := range deps {
		ready := detail.stage0Ready(dep)
		le.Prerequisites = append(le.Prerequisites, PrerequisiteState{Note: dep, Stage0Ready: ready})
		if !ready {
			le.Satisfied = false
		}
	}
	return le
}

// componentVerdicts extracts one note's roles from a built scope.
func componentVerdicts(cs *componentScope, id srs.NoteID) []ComponentVerdict {
	unlocked := cs.unlockedUnits()
	var out []ComponentVerdict

	for _, char := range cs.unitOrder {
		if cs.units[char].note.ID != id {
			continue
		}
		out = append(out, ComponentVerdict{
			Scope:    cs.cfg.Name,
			Role:     "unit",
			Char:     char.String(),
			Unlocked: unlocked[char],
		})
	}

	if cs.cfg.Radical.Configured() {
		synced := make(map[srs.Kanji]bool)
		for char := range unlocked {
			synced[char] = true
			for _, c := range cs.units[char].comps {
				synced[c] = true
			}
		}
		for _, char := range cs.radOrder {
			for _, note := range cs.radicals[char] {
				if note.ID != id {
					continue
				}
				out = append(out, ComponentVerdict{
					Scope:    cs.cfg.Name,
					Role:     "radical",
					Char:     char.String(),
					Unlocked: synced[char],
				})
			}
		}
	}

	for _, c := range cs.contribs {
		if c.note.ID != id {
			continue
		}
		out = append(out, ComponentVerdict{
			Scope:    cs.cfg.Name,
			Role:     "vocab",
			Unlocked: c.baseReady,
		})
	}

	return out
}

// exampleVerdict re-runs one scope's match for the note and reports the
// outcome without emitting verdicts.
func (e *Engine) exampleVerdict(snap *Snapshot, scope srs.ExampleScope, note srs.Note) ExampleVerdict {
	ev := ExampleVerdict{Scope: scope.Name}
	match, err := e.matcher.Match(snap, scope, note)
	switch {
	case err != nil:
		var me *MatchError
		if !errors.As(err, &me) {
			me = &MatchError{Code: MatchFailNoteNotFound, Message: err.Error()}
		}
		ev.FailCode = me.Code
	case match == nil:
		ev.OptedOut = true
	default:
		ev.Via = match.Via
		ev.Targets = match.Targets
		ev.Result = snap.Evaluate(match.Targets, scope.Threshold, scope.Policy)
	}
	return ev
}
