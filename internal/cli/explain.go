package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Config string
	DB     string
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <note-id>",
		Short: "Explain one note's gating verdicts",
		Long: `Explain why a note's cards are gated the way they are.

Resolves every configured gate against the current collection state and
prints the note's stage chain, its parsed family links with the
readiness of every prerequisite, its role in each component scope, its
example-sentence resolutions and the per-card verdicts. Nothing is
written.

Examples:
  torii explain -c gating.cue -d collection.anki2 1699999999
  torii explain -c gating.cue -d collection.anki2 1699999999 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to CUE gating config (required)")
	cmd.Flags().StringVarP(&opts.DB, "db", "d", "", "path to collection database (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runExplain(opts *ExplainOptions, arg string, cmd *cobra.Command) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid note id %q", arg))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, st, _, err := openEngine(ctx, opts.Config, opts.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	ex, err := eng.Explain(ctx, srs.NoteID(id))
	if err != nil {
		return WrapExitError(ExitFailure, "explain failed", err)
	}

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: ex}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}

	writeExplanationText(cmd.OutOrStdout(), ex)
	return nil
}

// writeExplanationText renders a note explanation for humans, one
// section per gate the note participates in.
func writeExplanationText(w io.Writer, ex *engine.NoteExplanation) {
	fmt.Fprintf(w, "note %d (%s)\n", ex.Note.ID, ex.Note.NoteType)

	if ex.Chain != nil {
		fmt.Fprintln(w, "chain:")
		for _, st := range ex.Chain.Stages {
			state := "locked"
			if st.Unlocked {
				state = "unlocked"
			}
			fmt.Fprintf(w, "  stage %d %s, %s", st.Def.Index, state, st.Result)
			if st.Sticky {
				fmt.Fprint(w, ", sticky")
			}
			fmt.Fprintln(w)
		}
	}

	if ex.FamilyScoped {
		verdict := "ready"
		if !ex.FamilyReady {
			verdict = "blocked"
		}
		fmt.Fprintf(w, "family: %s\n", verdict)
		for _, link := range ex.Links {
			switch {
			case link.Priority == 0:
				fmt.Fprintf(w, "  %s @0 anchor\n", link.RelationID)
			case link.Dangling:
				fmt.Fprintf(w, "  %s @%d dangling (no notes at priority %d)\n",
					link.RelationID, link.Priority, link.Priority-1)
			case link.Satisfied:
				fmt.Fprintf(w, "  %s @%d satisfied\n", link.RelationID, link.Priority)
			default:
				fmt.Fprintf(w, "  %s @%d blocked\n", link.RelationID, link.Priority)
			}
			for _, p := range link.Prerequisites {
				state := "ready"
				if !p.Stage0Ready {
					state = "not ready"
				}
				fmt.Fprintf(w, "    note %d stage 0 %s\n", p.Note, state)
			}
		}
	}

	if len(ex.Components) > 0 {
		fmt.Fprintln(w, "components:")
		for _, cv := range ex.Components {
			state := "locked"
			if cv.Unlocked {
				state = "unlocked"
			}
			if cv.Char != "" {
				fmt.Fprintf(w, "  %s %s %s %s\n", cv.Scope, cv.Role, cv.Char, state)
			} else {
				fmt.Fprintf(w, "  %s %s %s\n", cv.Scope, cv.Role, state)
			}
		}
	}

	if len(ex.Examples) > 0 {
		fmt.Fprintln(w, "examples:")
		for _, ev := range ex.Examples {
			switch {
			case ev.OptedOut:
				fmt.Fprintf(w, "  %s opted out (empty key)\n", ev.Scope)
			case ev.FailCode != "":
				fmt.Fprintf(w, "  %s match failed: %s\n", ev.Scope, ev.FailCode)
			default:
				fmt.Fprintf(w, "  %s targets %v via %s, %s\n", ev.Scope, ev.Targets, ev.Via, ev.Result)
			}
		}
	}

	if len(ex.Cards) > 0 {
		fmt.Fprintln(w, "cards:")
		for _, cv := range ex.Cards {
			switch {
			case !cv.Decided:
				fmt.Fprintf(w, "  %d %s %s (no verdict)\n", cv.Card, cv.Template, cv.Queue)
			case cv.Target == cv.Queue:
				fmt.Fprintf(w, "  %d %s stays %s%s\n", cv.Card, cv.Template, cv.Queue, reasonSuffix(cv.Reasons))
			default:
				fmt.Fprintf(w, "  %d %s %s -> %s%s\n", cv.Card, cv.Template, cv.Queue, cv.Target, reasonSuffix(cv.Reasons))
			}
		}
	}

	if len(ex.PendingMarks) > 0 {
		fmt.Fprintln(w, "pending marks:")
		for _, tag := range ex.PendingMarks {
			fmt.Fprintf(w, "  %s\n", tag)
		}
	}

	if len(ex.Diagnostics) > 0 {
		fmt.Fprintln(w, "diagnostics:")
		for _, d := range ex.Diagnostics {
			fmt.Fprintf(w, "  %s %s: %s\n", d.Severity, d.Code, d.Message)
		}
	}

	if len(ex.ScopeErrors) > 0 {
		fmt.Fprintln(w, "scope errors:")
		for _, ge := range ex.ScopeErrors {
			fmt.Fprintf(w, "  %s\n", ge.Error())
		}
	}
}

// reasonSuffix renders suspension provenance as " (stage,family)".
func reasonSuffix(reasons []engine.Provenance) string {
	if len(reasons) == 0 {
		return ""
	}
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return fmt.Sprintf(" (%s)", strings.Join(parts, ","))
}
