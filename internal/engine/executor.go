package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yamadera/torii/internal/srs"
)

const defaultApplyChunkSize = 1000

// AppliedChangeSet records what a pass actually wrote to the collection.
// On a partial failure the counts reflect the durable prefix, so a
// caller can reconcile against the plan.
type AppliedChangeSet struct {
	Applied     int `json:"applied"`
	Suspended   int `json:"suspended"`
	Unsuspended int `json:"unsuspended"`
	Verified    int `json:"verified,omitempty"`
	Mismatched  int `json:"mismatched,omitempty"`
}

func (s *AppliedChangeSet) count(applied []QueueChange) {
	for _, ch := range applied {
		s.Applied++
		if ch.To.Suspended() {
			s.Suspended++
		} else {
			s.Unsuspended++
		}
	}
}

// GateExecutor turns a planned queue delta into writes. It prefers one
// atomic batch; if the backend rejects it (argument limits, transaction
// size), it retries in fixed-size chunks, each chunk atomic on its own.
// Chunked mode can therefore stop part-way: the error reports how much
// of the plan is durable.
type GateExecutor struct {
	applier BatchApplier
	chunk   int
}

func newGateExecutor(applier BatchApplier, chunkSize int) *GateExecutor {
	if chunkSize <= 0 {
		chunkSize = defaultApplyChunkSize
	}
	return &GateExecutor{applier: applier, chunk: chunkSize}
}

// Apply writes the plan. The returned change set is always populated,
// including on error, with whatever was durably applied.
func (x *GateExecutor) Apply(ctx context.Context, plan []QueueChange) (*AppliedChangeSet, error) {
	set := &AppliedChangeSet{}
	if len(plan) == 0 {
		return set, nil
	}

	n, err := x.applier.ApplyQueueBatch(ctx, plan)
	if err == nil {
		set.count(plan[:n])
		return set, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return set, ctxErr
	}
	slog.Warn("batch apply failed, retrying in chunks",
		"changes", len(plan),
		"chunk_size", x.chunk,
		"error", err,
	)

	for start := 0; start < len(plan); start += x.chunk {
		end := start + x.chunk
		if end > len(plan) {
			end = len(plan)
		}
		n, err := x.applier.ApplyQueueBatch(ctx, plan[start:end])
		set.count(plan[start : start+n])
		if err != nil {
			return set, NewPartialApplyError(set.Applied, len(plan), err)
		}
	}
	return set, nil
}

// Verify reads back the queue state of every planned card and reports
// cards whose stored state disagrees with what was written. It is a
// no-op when the applier cannot be read back from.
func (x *GateExecutor) Verify(ctx context.Context, plan []QueueChange) (int, []Diagnostic, error) {
	verifier, ok := x.applier.(QueueVerifier)
	if !ok || len(plan) == 0 {
		return 0, nil, nil
	}

	ids := make([]srs.CardID, len(plan))
	for i, ch := range plan {
		ids[i] = ch.Card
	}
	states, err := verifier.QueueStates(ctx, ids)
	if err != nil {
		return 0, nil, err
	}

	var diags []Diagnostic
	for _, ch := range plan {
		got, present := states[ch.Card]
		if present && got.Normalize() == ch.To.Normalize() {
			continue
		}
		read := "missing"
		if present {
			read = got.String()
		}
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Code:     DiagVerifyMismatch,
			Message:  fmt.Sprintf("card %d: wrote %s, read back %s", ch.Card, ch.To, read),
		})
	}
	return len(plan), diags, nil
}
