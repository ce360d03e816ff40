package engine

import (
	"context"
	"log/slog"
)

// Runner hosts the engine in a long-lived process. Triggers arrive from
// arbitrary goroutines (sync hooks, UI actions) and the runner executes
// them one at a time, collapsing bursts into a single trailing pass.
//
// Error handling is log-and-continue: one failed pass must not wedge the
// host's sync hook, and the next trigger recomputes from a fresh
// snapshot anyway.
type Runner struct {
	engine   *Engine
	queue    *passQueue
	onReport func(*PassReport)
}

// NewRunner wraps an engine. onReport, if non-nil, receives every
// completed report (including skipped and failed passes) on the Run
// goroutine.
func NewRunner(e *Engine, onReport func(*PassReport)) *Runner {
	return &Runner{engine: e, queue: newPassQueue(), onReport: onReport}
}

// Trigger submits a pass request. Safe from any goroutine; requests
// arriving while a pass is in flight coalesce into one follow-up pass.
// Returns false once the runner has been stopped.
func (r *Runner) Trigger(opts PassOptions) bool {
	return r.queue.Enqueue(opts)
}

// Run executes triggered passes until the context is cancelled or Stop
// is called. Must be called from exactly one goroutine; everything the
// engine writes happens on it.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("runner starting")

	for {
		opts, ok := r.queue.TryDequeue()
		if ok {
			report, err := r.engine.RunPass(ctx, opts)
			if err != nil {
				slog.Error("pass failed",
					"pass", report.Token,
					"trigger", string(report.Trigger),
					"error", err,
				)
			}
			if r.onReport != nil {
				r.onReport(report)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("runner stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()

		case <-r.queue.Wait():
			if r.queue.done() {
				slog.Info("runner stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop rejects further triggers and lets Run drain and return.
func (r *Runner) Stop() {
	r.queue.Close()
}
