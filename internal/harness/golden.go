package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/yamadera/torii/internal/engine"
)

// Snapshot renders a pass report as stable, diffable text for golden
// comparison. Every section the report carries appears in a fixed
// order, so a semantic change to the engine shows up as a golden diff.
func Snapshot(name string, report *engine.PassReport) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "pass: %s trigger=%s\n", report.Token, report.Trigger)

	if report.Skipped {
		fmt.Fprintf(&b, "skipped\n")
		return []byte(b.String())
	}
	if report.DryRun {
		fmt.Fprintf(&b, "dry run\n")
	}

	fmt.Fprintf(&b, "counters: suspended=%d unsuspended=%d marked=%d\n",
		report.Counters.Suspended, report.Counters.Unsuspended, report.Counters.NotesMarked)

	fmt.Fprintf(&b, "plan:\n")
	b.WriteString(report.FormatPlan())

	if len(report.Marks) > 0 {
		fmt.Fprintf(&b, "marks:\n")
		for _, m := range report.Marks {
			fmt.Fprintf(&b, "%d %s\n", m.Note, strings.Join(m.Tags, " "))
		}
	}

	if len(report.Diagnostics) > 0 {
		fmt.Fprintf(&b, "diagnostics:\n")
		for _, d := range report.Diagnostics {
			fmt.Fprintf(&b, "%s %s", d.Severity, d.Code)
			if d.Scope != "" {
				fmt.Fprintf(&b, " scope=%s", d.Scope)
			}
			if d.Note != 0 {
				fmt.Fprintf(&b, " note=%d", d.Note)
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	if len(report.ScopeErrors) > 0 {
		fmt.Fprintf(&b, "errors:\n")
		for _, ge := range report.ScopeErrors {
			fmt.Fprintf(&b, "%s", ge.Code)
			if ge.Scope != "" {
				fmt.Fprintf(&b, " scope=%s", ge.Scope)
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	return []byte(b.String())
}

// AssertGolden compares a pass report's rendering against a golden file
// in testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, report *engine.PassReport) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, report))
}

// RunWithGolden executes a scenario and compares the rendered report
// against the scenario's golden file. Expectations in the scenario are
// still evaluated; the returned result carries any failures.
//
// Returns an error if scenario execution itself fails. Golden mismatch
// is reported through t, the goldie way.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.GoldenName(), result.Report)

	return result, nil
}
