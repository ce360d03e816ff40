package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yamadera/torii/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
	DB     string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a gating pass and apply it",
		Long: `Run one gating pass over a collection and apply the result.

The pass reads one snapshot, resolves every configured gate, writes the
queue delta in chunks and persists sticky unlock marks. Interrupting a
pass is safe: decisions live in memory until the apply step, and an
interrupted apply leaves a durable prefix the next pass completes.

Examples:
  torii run -c gating.cue -d collection.anki2
  torii run -c gating.cue -d collection.anki2 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to CUE gating config (required)")
	cmd.Flags().StringVarP(&opts.DB, "db", "d", "", "path to collection database (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPass(opts *RunOptions, cmd *cobra.Command) error {
	// Configure logging: --verbose forces debug, otherwise the config's
	// debug.level applies once it is loaded.
	level := new(slog.LevelVar)
	if opts.Verbose {
		level.Set(slog.LevelDebug)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	// Setup signal handling for clean cancellation
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling pass", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	eng, st, cfg, err := openEngine(ctx, opts.Config, opts.DB)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing collection", "error", closeErr)
		}
	}()

	if !opts.Verbose && cfg.Debug.Level != "" {
		var lv slog.Level
		if err := lv.UnmarshalText([]byte(cfg.Debug.Level)); err != nil {
			slog.Warn("ignoring unknown debug.level", "level", cfg.Debug.Level)
		} else {
			level.Set(lv)
		}
	}

	// An explicit invocation runs even when the trigger is disabled in
	// configuration.
	report, runErr := eng.RunPass(ctx, engine.PassOptions{
		Trigger: engine.TriggerManual,
		Force:   true,
	})

	if outErr := outputReport(opts.RootOptions, cmd, report, runErr); outErr != nil {
		return outErr
	}

	if runErr != nil {
		if engine.IsPartialApply(runErr) {
			return WrapExitError(ExitFailure, "pass applied partially; rerun to complete", runErr)
		}
		return WrapExitError(ExitFailure, "gating pass failed", runErr)
	}
	return nil
}
