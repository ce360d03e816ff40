package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// unit is one parent/sub-component entry in a scope's derived graph.
type unit struct {
	char srs.Kanji
	note srs.Note
	// comps are the direct sub-component characters that exist as units
	// in this scope; unknown characters never gate and never edge.
	comps []srs.Kanji
}

// contributor is one vocabulary note feeding characters into the scope.
type contributor struct {
	note      srs.Note
	chars     []srs.Kanji
	baseReady bool
}

// componentScope is the per-pass evaluation state for one configured
// component scope. Building it derives the unit graph from note data and
// validates it; a build error rejects the scope while the rest of the
// pass proceeds.
type componentScope struct {
	pass *passContext
	cfg  srs.ComponentScope

	units     map[srs.Kanji]*unit
	unitOrder []srs.Kanji
	radicals  map[srs.Kanji][]srs.Note
	radOrder  []srs.Kanji
	contribs  []contributor

	ready map[srs.Kanji]bool // memoized unit readiness at component threshold
}

// buildComponentScope derives and validates one scope's unit graph.
// This is configuration-validation territory: an unknown mode or a
// cyclic graph is fatal for the scope, reported and skipped, never
// evaluated around.
func buildComponentScope(pass *passContext, cfg srs.ComponentScope) (*componentScope, *GateError) {
	if !cfg.Mode.Valid() {
		return nil, NewUnknownModeError(cfg.Name, cfg.Mode.String())
	}

	s := &componentScope{
		pass:     pass,
		cfg:      cfg,
		units:    make(map[srs.Kanji]*unit),
		radicals: make(map[srs.Kanji][]srs.Note),
		ready:    make(map[srs.Kanji]bool),
	}

	for _, id := range pass.snap.NotesOfType(cfg.Kanji.NoteType) {
		note, ok := pass.snap.Note(id)
		if !ok {
			continue
		}
		chars := srs.ExtractKanji(note.Field(cfg.Kanji.CharField))
		if len(chars) == 0 {
			pass.report.addDiag(Diagnostic{
				Severity: SeverityWarning,
				Code:     DiagUnitCharMissing,
				Scope:    cfg.Name,
				Note:     id,
				Message:  fmt.Sprintf("field %q has no kanji", cfg.Kanji.CharField),
			})
			continue
		}
		char := chars[0]
		if prev, dup := s.units[char]; dup {
			pass.report.addDiag(Diagnostic{
				Severity: SeverityWarning,
				Code:     DiagDuplicateUnit,
				Scope:    cfg.Name,
				Note:     id,
				Message:  fmt.Sprintf("character %q already owned by note %d", char, prev.note.ID),
			})
			continue
		}
		s.units[char] = &unit{char: char, note: note}
		s.unitOrder = append(s.unitOrder, char)
	}
	sort.Slice(s.unitOrder, func(i, j int) bool { return s.unitOrder[i] < s.unitOrder[j] })

	// Edges only between known units; resolved after all units exist.
	edges := make(map[srs.Kanji][]srs.Kanji, len(s.units))
	for _, char := range s.unitOrder {
		u := s.units[char]
		for _, c := range srs.ExtractKanji(u.note.Field(cfg.Kanji.ComponentsField)) {
			if _, known := s.units[c]; known {
				u.comps = append(u.comps, c)
			}
		}
		edges[char] = u.comps
	}
	if cycle := findUnitCycle(edges); cycle != nil {
		return nil, NewComponentCycleError(cfg.Name, cycle)
	}

	if cfg.Radical.Configured() {
		for _, id := range pass.snap.NotesOfType(cfg.Radical.NoteType) {
			note, ok := pass.snap.Note(id)
			if !ok {
				continue
			}
			chars := srs.ExtractKanji(note.Field(cfg.Radical.CharField))
			if len(chars) == 0 {
				pass.report.addDiag(Diagnostic{
					Severity: SeverityWarning,
					Code:     DiagUnitCharMissing,
					Scope:    cfg.Name,
					Note:     id,
					Message:  fmt.Sprintf("field %q has no kanji", cfg.Radical.CharField),
				})
				continue
			}
			char := chars[0]
			if len(s.radicals[char]) == 0 {
				s.radOrder = append(s.radOrder, char)
			}
			s.radicals[char] = append(s.radicals[char], note)
		}
		sort.Slice(s.radOrder, func(i, j int) bool { return s.radOrder[i] < s.radOrder[j] })
	}

	for _, id := range pass.snap.NotesOfType(cfg.Vocab.NoteType) {
		note, ok := pass.snap.Note(id)
		if !ok {
			continue
		}
		var chars []srs.Kanji
		seen := make(map[srs.Kanji]bool)
		for _, field := range cfg.Vocab.TextFields {
			for _, c := range srs.ExtractKanji(note.Field(field)) {
				if !seen[c] {
					seen[c] = true
					chars = append(chars, c)
				}
			}
		}
		allCards := pass.snap.CardsByTemplate(id, nil)
		s.contribs = append(s.contribs, contributor{
			note:      note,
			chars:     chars,
			baseReady: pass.snap.Evaluate(allCards, cfg.BaseThreshold, cfg.Policy).Ready,
		})
	}

	return s, nil
}

// unitReady memoizes one unit's readiness at the component threshold.
func (s *componentScope) unitReady(char srs.Kanji) bool {
	if r, ok := s.ready[char]; ok {
		return r
	}
	u := s.units[char]
	cards := s.pass.snap.CardsByTemplate(u.note.ID, nil)
	r := s.pass.snap.Evaluate(cards, s.cfg.ComponentThreshold, s.cfg.Policy).Ready
	s.ready[char] = r
	return r
}

// parentOwnReady is the parent-level second check KanjiThenComponents uses.
func (s *componentScope) parentOwnReady(char srs.Kanji) bool {
	u := s.units[char]
	cards := s.pass.snap.CardsByTemplate(u.note.ID, nil)
	return s.pass.snap.Evaluate(cards, s.cfg.ParentThreshold, s.cfg.Policy).Ready
}

// targetChars collects the characters contributed by base-ready vocab
// notes, restricted to characters that exist as units, in unit order.
func (s *componentScope) targetChars() []srs.Kanji {
	set := make(map[srs.Kanji]bool)
	for _, c := range s.contribs {
		if !c.baseReady {
			continue
		}
		for _, char := range c.chars {
			if _, known := s.units[char]; known {
				set[char] = true
			}
		}
	}
	out := make([]srs.Kanji, 0, len(set))
	for _, char := range s.unitOrder {
		if set[char] {
			out = append(out, char)
		}
	}
	return out
}

// unlockedUnits runs the mode strategy and returns the set of unlocked
// unit characters. The four modes are a closed set; the switch is
// exhaustive and buildComponentScope already rejected anything else.
func (s *componentScope) unlockedUnits() map[srs.Kanji]bool {
	roots := s.targetChars()
	unlocked := make(map[srs.Kanji]bool)

	switch s.cfg.Mode {
	case srs.KanjiOnly:
		for _, char := range roots {
			unlocked[char] = true
		}

	case srs.KanjiThenComponents:
		// Parents unlock on contribution; a unit whose own cards pass
		// the parent threshold releases its direct sub-components, and
		// the rule applies to those recursively.
		queue := append([]srs.Kanji(nil), roots...)
		for len(queue) > 0 {
			char := queue[0]
			queue = queue[1:]
			if unlocked[char] {
				continue
			}
			unlocked[char] = true
			if s.parentOwnReady(char) {
				queue = append(queue, s.units[char].comps...)
			}
		}

	case srs.ComponentsThenKanji:
		// Sub-components unlock ahead of the kanji that contain them:
		// everything reachable through at least one edge unlocks
		// immediately, and a contributed kanji itself waits until ALL
		// of its direct sub-components are ready.
		var seeds []srs.Kanji
		for _, char := range roots {
			seeds = append(seeds, s.units[char].comps...)
		}
		for char := range s.reachable(seeds) {
			unlocked[char] = true
		}
		for _, char := range roots {
			if unlocked[char] {
				continue
			}
			ok := true
			for _, c := range s.units[char].comps {
				if !s.unitReady(c) {
					ok = false
					break
				}
			}
			if ok {
				unlocked[char] = true
			}
		}

	case srs.KanjiAndComponents:
		for char := range s.reachable(roots) {
			unlocked[char] = true
		}
	}

	return unlocked
}

// reachable is the transitive closure over direct sub-component edges,
// roots included. The visited set makes shared sub-components cheap and
// would terminate even on a cyclic graph, though build already rejected
// those.
func (s *componentScope) reachable(roots []srs.Kanji) map[srs.Kanji]bool {
	visited := make(map[srs.Kanji]bool)
	queue := append([]srs.Kanji(nil), roots...)
	for len(queue) > 0 {
		char := queue[0]
		queue = queue[1:]
		if visited[char] {
			continue
		}
		visited[char] = true
		queue = append(queue, s.units[char].comps...)
	}
	return visited
}

// run emits the scope's verdicts: unit cards, radical display sync, and
// (under ComponentsThenKanji) vocabulary kanji-form cards.
func (s *componentScope) run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sticky := s.pass.cfg.StickyUnlock
	unlocked := s.unlockedUnits()

	for _, char := range s.unitOrder {
		u := s.units[char]
		active := unlocked[char]
		effective := active || (sticky && u.note.HasTag(srs.StickyKanji))
		if active && sticky && !u.note.HasTag(srs.StickyKanji) {
			s.pass.mark(u.note.ID, srs.StickyKanji)
		}
		if s.pass.cfg.Debug.WatchesNote(u.note.ID) {
			slog.Info("watch: component unit",
				"pass", s.pass.token,
				"scope", s.cfg.Name,
				"note", u.note.ID,
				"char", char.String(),
				"active", active,
				"sticky", effective && !active,
			)
		}
		for _, card := range s.pass.snap.CardsByTemplate(u.note.ID, nil) {
			if effective {
				s.pass.decisions.Release(card)
			} else {
				s.pass.decisions.Suspend(card, ProvenanceComponent)
			}
		}
	}

	// Radicals sync for display against everything the pass unlocked:
	// the unlocked characters themselves plus their direct components.
	// They never gate anything.
	if s.cfg.Radical.Configured() {
		synced := make(map[srs.Kanji]bool)
		for char := range unlocked {
			synced[char] = true
			for _, c := range s.units[char].comps {
				synced[c] = true
			}
		}
		for _, char := range s.radOrder {
			active := synced[char]
			for _, note := range s.radicals[char] {
				effective := active || (sticky && note.HasTag(srs.StickyRadical))
				if active && sticky && !note.HasTag(srs.StickyRadical) {
					s.pass.mark(note.ID, srs.StickyRadical)
				}
				for _, card := range s.pass.snap.CardsByTemplate(note.ID, nil) {
					if effective {
						s.pass.decisions.Release(card)
					} else {
						s.pass.decisions.Suspend(card, ProvenanceComponent)
					}
				}
			}
		}
	}

	// Kanji-form vocabulary cards: only ComponentsThenKanji gates them,
	// and only when templates are bound. base-ready AND every referenced
	// character unlocked-or-unknown.
	if s.cfg.Mode == srs.ComponentsThenKanji && len(s.cfg.Vocab.KanjiFormTemplates) > 0 {
		for _, c := range s.contribs {
			active := c.baseReady
			for _, char := range c.chars {
				if _, known := s.units[char]; known && !unlocked[char] {
					active = false
					break
				}
			}
			effective := active || (sticky && c.note.HasTag(srs.StickyVocab))
			if active && sticky && !c.note.HasTag(srs.StickyVocab) {
				s.pass.mark(c.note.ID, srs.StickyVocab)
			}
			for _, card := range s.pass.snap.CardsByTemplate(c.note.ID, s.cfg.Vocab.KanjiFormTemplates) {
				if effective {
					s.pass.decisions.Release(card)
				} else {
					s.pass.decisions.Suspend(card, ProvenanceComponent)
				}
			}
		}
	}

	return nil
}
