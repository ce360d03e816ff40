package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yamadera/torii/internal/engine"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Config string
	DB     string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute a gating pass without applying it",
		Long: `Compute one gating pass over a collection and print what it would
change, without writing anything.

The pass reads one snapshot of the collection, resolves every configured
gate against it and prints the queue delta, the sticky marks it would
persist and any diagnostics.

Examples:
  torii plan -c gating.cue -d collection.anki2
  torii plan -c gating.cue -d collection.anki2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to CUE gating config (required)")
	cmd.Flags().StringVarP(&opts.DB, "db", "d", "", "path to collection database (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, st, _, err := openEngine(ctx, opts.Config, opts.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	// An explicit invocation runs even when the trigger is disabled in
	// configuration.
	report, err := eng.RunPass(ctx, engine.PassOptions{
		Trigger: engine.TriggerManual,
		DryRun:  true,
		Force:   true,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "gating pass failed", err)
	}

	return outputReport(opts.RootOptions, cmd, report, nil)
}
