package engine

import (
	"sort"

	"github.com/yamadera/torii/internal/srs"
)

// Provenance names the resolver responsible for a suspension, for
// diagnostics and report breakdowns.
type Provenance string

const (
	// ProvenanceStage marks cards of a stage that is still locked.
	ProvenanceStage Provenance = "stage"
	// ProvenanceFamily marks cards blocked by an unsatisfied family gate.
	ProvenanceFamily Provenance = "family"
	// ProvenanceComponent marks cards blocked by component aggregation.
	ProvenanceComponent Provenance = "component"
	// ProvenanceExample marks example cards with unready or unresolved targets.
	ProvenanceExample Provenance = "example"
)

// GateDecision is the final per-card verdict after merging resolvers.
// Reasons is non-empty exactly when Suspend is true; it lists every
// resolver that wanted the card suspended, in resolver order.
type GateDecision struct {
	Card    srs.CardID   `json:"card"`
	Suspend bool         `json:"suspend"`
	Reasons []Provenance `json:"reasons,omitempty"`
}

// DecisionSet accumulates per-card verdicts across resolvers and applies
// the merge rule: a card stays suspended if any resolver says so, and an
// active verdict never overrides a suspension. Cards no resolver touched
// have no decision and are left alone by the executor.
type DecisionSet struct {
	m map[srs.CardID]*GateDecision
}

// NewDecisionSet creates an empty decision set.
func NewDecisionSet() *DecisionSet {
	return &DecisionSet{m: make(map[srs.CardID]*GateDecision)}
}

// Suspend records a suspension verdict with its provenance.
func (d *DecisionSet) Suspend(card srs.CardID, reason Provenance) {
	dec, ok := d.m[card]
	if !ok {
		d.m[card] = &GateDecision{Card: card, Suspend: true, Reasons: []Provenance{reason}}
		return
	}
	if !dec.Suspend {
		dec.Suspend = true
		dec.Reasons = dec.Reasons[:0]
	}
	for _, r := range dec.Reasons {
		if r == reason {
			return
		}
	}
	dec.Reasons = append(dec.Reasons, reason)
}

// Release records an active verdict. It loses to any suspension, present
// or future.
func (d *DecisionSet) Release(card srs.CardID) {
	if _, ok := d.m[card]; ok {
		return
	}
	d.m[card] = &GateDecision{Card: card, Suspend: false}
}

// Len returns the number of decided cards.
func (d *DecisionSet) Len() int { return len(d.m) }

// Decision returns the verdict for one card, if any resolver produced one.
func (d *DecisionSet) Decision(card srs.CardID) (GateDecision, bool) {
	dec, ok := d.m[card]
	if !ok {
		return GateDecision{}, false
	}
	return *dec, true
}

// Decisions returns every verdict sorted by card id.
func (d *DecisionSet) Decisions() []GateDecision {
	out := make([]GateDecision, 0, len(d.m))
	for _, dec := range d.m {
		out = append(out, *dec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Card < out[j].Card })
	return out
}

// Plan computes the queue delta against the snapshot: only cards whose
// observed state differs from their target state appear, sorted by card
// id. Running Plan twice over the same snapshot and decisions yields the
// same changes; running it after those changes have been applied yields
// none.
func (d *DecisionSet) Plan(snap *Snapshot) []QueueChange {
	var changes []QueueChange
	for id, dec := range d.m {
		target := srs.QueueActive
		if dec.Suspend {
			target = srs.QueueSuspended
		}
		if snap.Queue(id) == target {
			continue
		}
		ch := QueueChange{Card: id, To: target}
		if dec.Suspend {
			ch.Reasons = append([]Provenance(nil), dec.Reasons...)
		}
		changes = append(changes, ch)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Card < changes[j].Card })
	return changes
}
