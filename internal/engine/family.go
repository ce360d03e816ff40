package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// RelationLookup resolves the member notes of one relation id. The
// default implementation matches exactly against the pass snapshot and
// cannot fail; the store offers a query-backed implementation with
// quoting fallbacks for diagnosing ids the field parser disagrees about.
//
// Members must treat relationID as an exact-match token, never a pattern.
type RelationLookup interface {
	Members(ctx context.Context, relationID string) ([]srs.Note, error)
}

// snapshotLookup groups the snapshot's family-scoped notes by the NFC
// normalized relation ids they declare. Rebuilt per pass; holding no
// state across passes keeps re-evaluation trivially idempotent.
type snapshotLookup struct {
	members map[string][]srs.Note
}

func newSnapshotLookup(snap *Snapshot, cfg *srs.Config) *snapshotLookup {
	l := &snapshotLookup{members: make(map[string][]srs.Note)}
	syntax := cfg.Family.Syntax()
	for _, noteType := range cfg.Family.NoteTypes {
		for _, id := range snap.NotesOfType(noteType) {
			note, ok := snap.Note(id)
			if !ok {
				continue
			}
			seen := make(map[string]bool)
			for _, link := range srs.ParseRelationLinks(note.Field(cfg.Family.Field), syntax) {
				if seen[link.RelationID] {
					continue
				}
				seen[link.RelationID] = true
				l.members[link.RelationID] = append(l.members[link.RelationID], note)
			}
		}
	}
	return l
}

// Members returns the notes declaring relationID, ascending by note id.
func (l *snapshotLookup) Members(_ context.Context, relationID string) ([]srs.Note, error) {
	return l.members[srs.NormalizeRelationID(relationID)], nil
}

// familyResolver runs the combined stage-chain + family gate: a card is
// active only when its stage is unlocked AND its note's family gate is
// satisfied. Both signals come from the same snapshot.
type familyResolver struct {
	pass   *passContext
	lookup RelationLookup

	// chains memoizes per-note chain results; member stage-0 checks and
	// the note's own card gating share one evaluation.
	chains map[srs.NoteID]*ChainResult
	// tiers memoizes relation id -> priority -> member note ids.
	tiers map[string]map[int][]srs.NoteID
	// failed marks relation ids whose lookup hard-failed this pass.
	failed map[string]bool

	familyScoped map[string]bool
}

func newFamilyResolver(pass *passContext, lookup RelationLookup) *familyResolver {
	scoped := make(map[string]bool, len(pass.cfg.Family.NoteTypes))
	for _, nt := range pass.cfg.Family.NoteTypes {
		scoped[nt] = true
	}
	return &familyResolver{
		pass:         pass,
		lookup:       lookup,
		chains:       make(map[srs.NoteID]*ChainResult),
		tiers:        make(map[string]map[int][]srs.NoteID),
		failed:       make(map[string]bool),
		familyScoped: scoped,
	}
}

// run walks every validated staged note-type in name order and its notes
// in id order, emitting card verdicts and sticky marks.
func (r *familyResolver) run(ctx context.Context) error {
	noteTypes := make([]string, 0, len(r.pass.stagedTypes))
	for nt := range r.pass.stagedTypes {
		noteTypes = append(noteTypes, nt)
	}
	sort.Strings(noteTypes)

	sticky := r.pass.cfg.StickyUnlock
	for _, noteType := range noteTypes {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, id := range r.pass.snap.NotesOfType(noteType) {
			note, ok := r.pass.snap.Note(id)
			if !ok {
				continue
			}
			chain := r.chainOf(note)
			familyReady := r.familyGate(ctx, note)

			if r.pass.cfg.Debug.WatchesNote(id) {
				slog.Info("watch: family gate",
					"pass", r.pass.token,
					"note", id,
					"note_type", noteType,
					"family_ready", familyReady,
					"max_unlocked", chain.MaxUnlocked,
					"stage0_ready", chain.Stage0Ready,
				)
			}

			for _, st := range chain.Stages {
				active := st.Unlocked && familyReady
				effective := active || (sticky && st.Sticky)
				if active && sticky && !st.Sticky {
					r.pass.mark(id, srs.StageUnlockTag(st.Def.Index))
				}

				reason := ProvenanceStage
				if st.Unlocked {
					reason = ProvenanceFamily
				}
				for _, card := range r.pass.snap.CardsByTemplate(id, st.Def.Templates) {
					if effective {
						r.pass.decisions.Release(card)
					} else {
						r.pass.decisions.Suspend(card, reason)
					}
				}
			}
		}
	}
	return nil
}

// chainOf resolves and memoizes one note's stage chain. Notes of
// note-types without a validated chain have no entry; their stage-0
// signal reads as not ready.
func (r *familyResolver) chainOf(note srs.Note) *ChainResult {
	if c, ok := r.chains[note.ID]; ok {
		return c
	}
	defs := r.pass.stagedTypes[note.NoteType]
	chain := resolveChain(r.pass.snap, note, defs, r.pass.cfg.StickyUnlock, r.pass.report)
	r.chains[note.ID] = &chain
	return &chain
}

// stage0Ready is the dependency signal consumed by the family graph.
// Missing notes, unstaged note-types or invalidated chains all read as
// not ready: absent data blocks, it never unblocks.
func (r *familyResolver) stage0Ready(id srs.NoteID) bool {
	note, ok := r.pass.snap.Note(id)
	if !ok {
		return false
	}
	if _, staged := r.pass.stagedTypes[note.NoteType]; !staged {
		return false
	}
	return r.chainOf(note).Stage0Ready
}

// familyGate computes the AND over every link the note declares. Notes
// outside the family scope or without links are vacuously family-ready.
func (r *familyResolver) familyGate(ctx context.Context, note srs.Note) bool {
	if !r.familyScoped[note.NoteType] {
		return true
	}
	links := srs.ParseRelationLinks(note.Field(r.pass.cfg.Family.Field), r.pass.cfg.Family.Syntax())
	if len(links) == 0 {
		return true
	}

	// Evaluate every link even after one fails so a single pass surfaces
	// all dangling references at once.
	ok := true
	for _, link := range links {
		if link.Priority == 0 {
			continue
		}
		if !r.linkSatisfied(ctx, note, link) {
			ok = false
		}
	}
	return ok
}

// linkSatisfied applies the priority rule: the link (R, P) with P > 0 is
// satisfied iff at least one note declares (R, P-1) and every such note
// is stage-0-ready. An empty prerequisite tier is a dangling priority
// reference, which blocks.
func (r *familyResolver) linkSatisfied(ctx context.Context, note srs.Note, link srs.RelationLink) bool {
	tiers := r.tiersOf(ctx, link.RelationID)
	if tiers == nil {
		return false
	}
	deps := tiers[link.Priority-1]
	if len(deps) == 0 {
		r.pass.report.addDiag(Diagnostic{
			Severity: SeverityWarning,
			Code:     DiagDanglingPriority,
			Note:     note.ID,
			Message: fmt.Sprintf("relation %q priority %d has no notes at priority %d",
				link.RelationID, link.Priority, link.Priority-1),
		})
		return false
	}
	for _, dep := range deps {
		if !r.stage0Ready(dep) {
			return false
		}
	}
	return true
}

// tiersOf memoizes the tier map for one relation id. A hard lookup
// failure (every quoting variant exhausted) is recorded once per id per
// pass; every link on that id stays unsatisfied.
func (r *familyResolver) tiersOf(ctx context.Context, relationID string) map[int][]srs.NoteID {
	if r.failed[relationID] {
		return nil
	}
	if t, ok := r.tiers[relationID]; ok {
		return t
	}

	members, err := r.lookup.Members(ctx, relationID)
	if err != nil {
		r.failed[relationID] = true
		var ge *GateError
		if !errors.As(err, &ge) {
			ge = NewLookupFailedError(relationID, 0, err)
		}
		slog.Warn("relation lookup failed", "pass", r.pass.token, "relation", relationID, "error", err)
		r.pass.report.addDiag(Diagnostic{
			Severity: SeverityError,
			Code:     string(ge.Code),
			Message:  ge.Error(),
		})
		return nil
	}

	syntax := r.pass.cfg.Family.Syntax()
	tiers := make(map[int][]srs.NoteID)
	for _, member := range members {
		seen := make(map[int]bool)
		for _, l := range srs.ParseRelationLinks(member.Field(r.pass.cfg.Family.Field), syntax) {
			if l.RelationID != relationID || seen[l.Priority] {
				continue
			}
			seen[l.Priority] = true
			tiers[l.Priority] = append(tiers[l.Priority], member.ID)
		}
	}
	for _, ids := range tiers {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	r.tiers[relationID] = tiers
	return tiers
}
