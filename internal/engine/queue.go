package engine

import "sync"

// passQueue coalesces pass requests down to at most one pending entry.
//
// The gating computation is idempotent over a fixed collection state, so
// running queued-up requests back to back would just recompute the same
// verdicts. Instead, a request arriving while one is already pending
// merges into it and the runner executes the union once.
//
// Thread-safety is for external triggering (sync hooks, UI actions)
// while the Runner loop dequeues. The signal channel is buffered size 1
// so bursts collapse into a single wake-up; Close closes it, which wakes
// any waiter immediately.
type passQueue struct {
	mu      sync.Mutex
	pending *PassOptions
	closed  bool
	signal  chan struct{}
}

func newPassQueue() *passQueue {
	return &passQueue{signal: make(chan struct{}, 1)}
}

// mergeOptions folds two coalesced requests into the one pass that
// satisfies both: gates union, dry-run only when both were dry, forced
// when either was, and a manual trigger outranks a sync trigger because
// it carries explicit user intent.
func mergeOptions(a, b PassOptions) PassOptions {
	a = a.normalized()
	b = b.normalized()
	out := PassOptions{
		Trigger: a.Trigger,
		Gates: GateSelection{
			Family:     a.Gates.Family || b.Gates.Family,
			Components: a.Gates.Components || b.Gates.Components,
			Examples:   a.Gates.Examples || b.Gates.Examples,
		},
		DryRun: a.DryRun && b.DryRun,
		Force:  a.Force || b.Force,
	}
	if b.Trigger == TriggerManual {
		out.Trigger = TriggerManual
	}
	return out
}

// Enqueue submits a request, merging into any pending one.
// Returns false if the queue is closed.
func (q *passQueue) Enqueue(opts PassOptions) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.pending != nil {
		merged := mergeOptions(*q.pending, opts)
		q.pending = &merged
	} else {
		opts = opts.normalized()
		q.pending = &opts
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue claims the pending request without blocking.
func (q *passQueue) TryDequeue() (PassOptions, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil {
		return PassOptions{}, false
	}
	opts := *q.pending
	q.pending = nil
	return opts, true
}

// Wait returns the wake-up channel. Use with select for context-aware
// waiting; a fired signal means "check TryDequeue", nothing stronger.
func (q *passQueue) Wait() <-chan struct{} {
	return q.signal
}

// done reports closed-and-drained, the loop's exit condition.
func (q *passQueue) done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.pending == nil
}

// Close rejects further triggers and wakes any waiter.
func (q *passQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
