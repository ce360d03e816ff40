package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yamadera/torii/internal/srs"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic codes. Errors reuse the GateErrorCode value so a report
// consumer matches on one vocabulary.
const (
	// DiagEmptyStage: a stage with no member cards was treated as
	// vacuously ready.
	DiagEmptyStage = "EMPTY_STAGE_MEMBERS"
	// DiagDanglingPriority: a link at priority P has no notes at P-1.
	// Blocking, not vacuous; distinguishable from a normal not-ready.
	DiagDanglingPriority = "DANGLING_PRIORITY"
	// DiagDuplicateUnit: two unit notes claim the same character.
	DiagDuplicateUnit = "DUPLICATE_UNIT_CHAR"
	// DiagUnitCharMissing: a unit note's character field has no kanji.
	DiagUnitCharMissing = "UNIT_CHAR_MISSING"
	// DiagVerifyMismatch: post-apply verification found a card whose
	// queue state does not match what was written.
	DiagVerifyMismatch = "VERIFY_MISMATCH"
)

// Diagnostic is one reportable observation from a pass. Diagnostics never
// change gating semantics; they exist so misconfiguration is visible.
type Diagnostic struct {
	Severity Severity   `json:"severity"`
	Code     string     `json:"code"`
	Scope    string     `json:"scope,omitempty"`
	Note     srs.NoteID `json:"note,omitempty"`
	Message  string     `json:"message"`
}

// NoteMark is a sticky unlock mark emitted by a pass.
type NoteMark struct {
	Note srs.NoteID `json:"note"`
	Tags []string   `json:"tags"`
}

// Counters tallies what a pass decided and applied.
type Counters struct {
	Suspended       int                   `json:"suspended"`
	Unsuspended     int                   `json:"unsuspended"`
	NotesMarked     int                   `json:"notes_marked"`
	SkippedExamples int                   `json:"skipped_examples,omitempty"`
	SuspendedBy     map[Provenance]int    `json:"suspended_by,omitempty"`
	MatchFailures   map[MatchFailCode]int `json:"match_failures,omitempty"`
}

func (c *Counters) countMatchFailure(code MatchFailCode) {
	if c.MatchFailures == nil {
		c.MatchFailures = make(map[MatchFailCode]int)
	}
	c.MatchFailures[code]++
}

func (c *Counters) countSuspendedBy(p Provenance) {
	if c.SuspendedBy == nil {
		c.SuspendedBy = make(map[Provenance]int)
	}
	c.SuspendedBy[p]++
}

// PassReport is the externally visible outcome of one pass.
type PassReport struct {
	Token   string  `json:"token"`
	Seq     int64   `json:"seq"`
	Trigger Trigger `json:"trigger"`

	// Skipped is set when the trigger is disabled by configuration;
	// nothing was read or written.
	Skipped bool `json:"skipped,omitempty"`
	// DryRun is set when decisions were computed but not applied.
	DryRun bool `json:"dry_run,omitempty"`

	Counters    Counters       `json:"counters"`
	Plan        []QueueChange  `json:"plan,omitempty"`
	Marks       []NoteMark     `json:"marks,omitempty"`
	ScopeErrors []*GateError   `json:"scope_errors,omitempty"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	Applied     *AppliedChangeSet `json:"applied,omitempty"`
}

// FormatPlan renders the queue delta as stable, diffable text: one line
// per change, sorted by card id, suspensions carrying their provenance.
// Golden tests compare this output byte for byte.
func (r *PassReport) FormatPlan() string {
	if len(r.Plan) == 0 {
		return "no changes\n"
	}
	var b strings.Builder
	for _, ch := range r.Plan {
		if ch.To.Suspended() {
			parts := make([]string, len(ch.Reasons))
			for i, p := range ch.Reasons {
				parts[i] = string(p)
			}
			fmt.Fprintf(&b, "suspend   %d (%s)\n", ch.Card, strings.Join(parts, ","))
		} else {
			fmt.Fprintf(&b, "unsuspend %d\n", ch.Card)
		}
	}
	return b.String()
}

// Summary renders the one-line outcome used by logs and the CLI footer.
func (r *PassReport) Summary() string {
	if r.Skipped {
		return fmt.Sprintf("pass %s skipped (trigger %s disabled)", r.Token, r.Trigger)
	}
	verb := "applied"
	if r.DryRun {
		verb = "planned"
	}
	return fmt.Sprintf("pass %s %s: suspended=%d unsuspended=%d marked=%d errors=%d warnings=%d",
		r.Token, verb, r.Counters.Suspended, r.Counters.Unsuspended, r.Counters.NotesMarked,
		len(r.ScopeErrors), r.warningCount())
}

func (r *PassReport) warningCount() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// addDiag appends with stable ordering left to the caller (resolvers run
// in fixed order and visit notes in sorted order).
func (r *PassReport) addDiag(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

// sortMarks normalizes mark ordering for deterministic output.
func sortMarks(marks []NoteMark) {
	sort.Slice(marks, func(i, j int) bool { return marks[i].Note < marks[j].Note })
	for _, m := range marks {
		sort.Strings(m.Tags)
	}
}
