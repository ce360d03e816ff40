package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

// AssertionError is returned when an expectation fails.
// It includes the planned changes to help debug the failure.
type AssertionError struct {
	Type     string               // Expectation field for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	Plan     []engine.QueueChange // Full plan for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full plan for context
	fmt.Fprintf(&buf, "\nPlanned changes:\n")
	if len(e.Plan) == 0 {
		fmt.Fprintf(&buf, "  (none)\n")
	}
	for _, ch := range e.Plan {
		fmt.Fprintf(&buf, "  %s\n", formatChange(ch))
	}

	return buf.String()
}

// formatChange renders one planned change the way FormatPlan does.
func formatChange(ch engine.QueueChange) string {
	if ch.To.Suspended() {
		reasons := make([]string, len(ch.Reasons))
		for i, r := range ch.Reasons {
			reasons[i] = string(r)
		}
		return fmt.Sprintf("suspend %d (%s)", ch.Card, strings.Join(reasons, ","))
	}
	return fmt.Sprintf("unsuspend %d", ch.Card)
}

// EvaluateExpectations evaluates the expect clause against the pass
// report and the store's post-pass queue states. Returns a slice of
// error messages for failed expectations.
func EvaluateExpectations(report *engine.PassReport, queues map[srs.CardID]srs.QueueState, expect ExpectClause) []string {
	var errors []string

	collect := func(errs []error) {
		for _, err := range errs {
			errors = append(errors, err.Error())
		}
	}

	if report.Skipped != expect.Skipped {
		errors = append(errors, (&AssertionError{
			Type:     "skipped",
			Expected: fmt.Sprintf("skipped=%t", expect.Skipped),
			Actual:   fmt.Sprintf("skipped=%t", report.Skipped),
			Plan:     report.Plan,
		}).Error())
	}

	collect(assertPlan(report.Plan, expect))
	collect(assertMarks(report.Marks, expect.Marks, report.Plan))
	collect(assertDiagnostics(report.Diagnostics, expect.Diagnostics, report.Plan))
	collect(assertScopeErrors(report.ScopeErrors, expect.ScopeErrors, report.Plan))
	collect(assertFinalQueues(queues, expect.FinalQueues, report.Plan))

	return errors
}

// assertPlan checks the exact plan: every expected card must be planned
// with the right direction, and every planned change must be expected.
func assertPlan(plan []engine.QueueChange, expect ExpectClause) []error {
	var errs []error

	actual := make(map[srs.CardID]engine.QueueChange, len(plan))
	for _, ch := range plan {
		actual[ch.Card] = ch
	}

	expected := make(map[srs.CardID]srs.QueueState, len(expect.Suspended)+len(expect.Unsuspended))
	for _, id := range expect.Suspended {
		expected[srs.CardID(id)] = srs.QueueSuspended
	}
	for _, id := range expect.Unsuspended {
		expected[srs.CardID(id)] = srs.QueueActive
	}

	ids := make([]srs.CardID, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		want := expected[id]
		ch, ok := actual[id]
		if !ok {
			errs = append(errs, &AssertionError{
				Type:     "plan",
				Expected: fmt.Sprintf("card %d planned as %s", id, directionOf(want)),
				Actual:   "no planned change for this card",
				Plan:     plan,
			})
			continue
		}
		if ch.To != want {
			errs = append(errs, &AssertionError{
				Type:     "plan",
				Expected: fmt.Sprintf("card %d planned as %s", id, directionOf(want)),
				Actual:   formatChange(ch),
				Plan:     plan,
			})
		}
	}

	// Plan entries the expectation never mentioned fail the scenario,
	// so a regression cannot hide behind a passing subset.
	for _, ch := range plan {
		if _, ok := expected[ch.Card]; !ok {
			errs = append(errs, &AssertionError{
				Type:     "plan",
				Expected: fmt.Sprintf("no change for card %d", ch.Card),
				Actual:   formatChange(ch),
				Plan:     plan,
			})
		}
	}

	return errs
}

func directionOf(state srs.QueueState) string {
	if state.Suspended() {
		return "suspend"
	}
	return "unsuspend"
}

// assertMarks checks unlock marks with subset semantics: each listed
// tag must be among the note's emitted marks; extra marks are fine.
func assertMarks(marks []engine.NoteMark, want map[int64][]string, plan []engine.QueueChange) []error {
	var errs []error

	byNote := make(map[srs.NoteID][]string, len(marks))
	for _, m := range marks {
		byNote[m.Note] = m.Tags
	}

	notes := make([]int64, 0, len(want))
	for id := range want {
		notes = append(notes, id)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i] < notes[j] })

	for _, id := range notes {
		got := byNote[srs.NoteID(id)]
		for _, tag := range want[id] {
			if !containsString(got, tag) {
				actual := "no marks emitted for this note"
				if len(got) > 0 {
					actual = fmt.Sprintf("marks %v", got)
				}
				errs = append(errs, &AssertionError{
					Type:     "marks",
					Expected: fmt.Sprintf("note %d marked %q", id, tag),
					Actual:   actual,
					Plan:     plan,
				})
			}
		}
	}

	return errs
}

// assertDiagnostics checks that each listed code appears at least once.
func assertDiagnostics(diags []engine.Diagnostic, want []string, plan []engine.QueueChange) []error {
	var errs []error

	seen := make(map[string]int, len(diags))
	for _, d := range diags {
		seen[d.Code]++
	}

	for _, code := range want {
		if seen[code] == 0 {
			errs = append(errs, &AssertionError{
				Type:     "diagnostics",
				Expected: fmt.Sprintf("diagnostic %s emitted", code),
				Actual:   fmt.Sprintf("codes seen: %s", formatCodes(diagCodes(diags))),
				Plan:     plan,
			})
		}
	}

	return errs
}

// assertScopeErrors checks the exact multiset of gate error codes.
func assertScopeErrors(scopeErrs []*engine.GateError, want []string, plan []engine.QueueChange) []error {
	got := make([]string, 0, len(scopeErrs))
	for _, ge := range scopeErrs {
		got = append(got, string(ge.Code))
	}
	sort.Strings(got)

	expected := append([]string(nil), want...)
	sort.Strings(expected)

	if equalStrings(got, expected) {
		return nil
	}

	return []error{&AssertionError{
		Type:     "scope_errors",
		Expected: formatCodes(expected),
		Actual:   formatCodes(got),
		Plan:     plan,
	}}
}

// assertFinalQueues compares the store's post-pass queue state for each
// listed card.
func assertFinalQueues(queues map[srs.CardID]srs.QueueState, want map[int64]string, plan []engine.QueueChange) []error {
	var errs []error

	cards := make([]int64, 0, len(want))
	for id := range want {
		cards = append(cards, id)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i] < cards[j] })

	for _, id := range cards {
		// Spellings were validated at load time.
		expected, _ := parseQueueState(want[id])

		got, ok := queues[srs.CardID(id)]
		if !ok {
			errs = append(errs, &AssertionError{
				Type:     "final_queues",
				Expected: fmt.Sprintf("card %d %s", id, expected),
				Actual:   "card not found in collection",
				Plan:     plan,
			})
			continue
		}
		if got != expected {
			errs = append(errs, &AssertionError{
				Type:     "final_queues",
				Expected: fmt.Sprintf("card %d %s", id, expected),
				Actual:   fmt.Sprintf("card %d %s", id, got),
				Plan:     plan,
			})
		}
	}

	return errs
}

func diagCodes(diags []engine.Diagnostic) []string {
	codes := make([]string, 0, len(diags))
	for _, d := range diags {
		codes = append(codes, d.Code)
	}
	sort.Strings(codes)
	return codes
}

func formatCodes(codes []string) string {
	if len(codes) == 0 {
		return "(none)"
	}
	return strings.Join(codes, ", ")
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
