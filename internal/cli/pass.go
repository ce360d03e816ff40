package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yamadera/torii/internal/config"
	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
	"github.com/yamadera/torii/internal/store"
)

// openEngine wires a collection-backed engine: the CUE config source,
// the SQLite collection, the stability oracle and the query-backed
// relation lookup. The caller owns the returned store and must Close it.
//
// The config is loaded once here so a broken file fails fast with a
// command error instead of surfacing mid-pass; the loaded config is
// returned for command-level settings like debug.level.
func openEngine(ctx context.Context, configPath, dbPath string) (*engine.Engine, *store.Store, *srs.Config, error) {
	source := config.NewFileSource(configPath)
	cfg, err := source.GatingConfig(ctx)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "invalid gating config", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("collection not found: %s", dbPath))
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open collection", err)
	}

	oracle, err := st.MemoryOracle(ctx)
	if err != nil {
		st.Close()
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to load stability oracle", err)
	}

	eng := engine.New(st, oracle, source,
		engine.WithRelationLookup(st.RelationSearch(cfg.Family)))
	return eng, st, cfg, nil
}

// outputReport renders a pass report in the configured format. runErr is
// the pass error, if any; the report still renders so a partial apply
// shows what landed.
func outputReport(opts *RootOptions, cmd *cobra.Command, report *engine.PassReport, runErr error) error {
	if opts.Format == "json" {
		response := CLIResponse{
			Status:    "ok",
			Data:      report,
			PassToken: report.Token,
		}
		if runErr != nil {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    passErrorCode(runErr),
				Message: runErr.Error(),
			}
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}

	writeReportText(cmd.OutOrStdout(), report)
	if runErr != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "pass failed: %v\n", runErr)
	}
	return nil
}

// passErrorCode picks the machine-readable code for a failed pass.
func passErrorCode(err error) string {
	var ge *engine.GateError
	if errors.As(err, &ge) {
		return string(ge.Code)
	}
	return "E_PASS_FAILED"
}

// writeReportText renders a pass report for humans: the queue delta,
// pending marks, diagnostics with their messages, scope errors and the
// one-line summary footer.
func writeReportText(w io.Writer, report *engine.PassReport) {
	if report.Skipped {
		fmt.Fprintln(w, report.Summary())
		return
	}

	fmt.Fprint(w, report.FormatPlan())

	if len(report.Marks) > 0 {
		fmt.Fprintln(w, "marks:")
		for _, m := range report.Marks {
			fmt.Fprintf(w, "  %d %s\n", m.Note, strings.Join(m.Tags, " "))
		}
	}

	if len(report.Diagnostics) > 0 {
		fmt.Fprintln(w, "diagnostics:")
		for _, d := range report.Diagnostics {
			fmt.Fprintf(w, "  %s %s", d.Severity, d.Code)
			if d.Note != 0 {
				fmt.Fprintf(w, " note=%d", d.Note)
			}
			fmt.Fprintf(w, ": %s\n", d.Message)
		}
	}

	if len(report.ScopeErrors) > 0 {
		fmt.Fprintln(w, "scope errors:")
		for _, ge := range report.ScopeErrors {
			fmt.Fprintf(w, "  %s\n", ge.Error())
		}
	}

	fmt.Fprintln(w, report.Summary())
}
