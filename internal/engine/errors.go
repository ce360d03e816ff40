package engine

import (
	"errors"
	"fmt"
)

// GateError represents an error detected while preparing or running a pass.
//
// Gate errors include:
//   - Configuration errors: stage index gaps, a component-graph cycle,
//     an unknown component mode. Fatal for the affected scope only.
//   - Lookup failures: a relation id that no quoting variant could resolve.
//   - Store failures: a partially applied batch.
//
// GateError includes structured fields for diagnostics and recovery.
type GateError struct {
	// Code identifies the error category.
	Code GateErrorCode `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// PassToken identifies the affected pass, when known.
	PassToken string `json:"pass_token,omitempty"`

	// Scope identifies the configuration scope (note-type name, component
	// scope name, example scope name) for scope-fatal errors.
	Scope string `json:"scope,omitempty"`

	// Details contains additional context.
	Details map[string]string `json:"details,omitempty"`
}

// GateErrorCode categorizes gate errors.
type GateErrorCode string

const (
	// ErrCodeStageGap indicates stage indexes with gaps or duplicates.
	ErrCodeStageGap GateErrorCode = "STAGE_INDEX_GAP"

	// ErrCodeStageZeroMissing indicates a gated note-type without stage 0.
	ErrCodeStageZeroMissing GateErrorCode = "STAGE_ZERO_MISSING"

	// ErrCodeComponentCycle indicates the derived unit graph has a cycle.
	ErrCodeComponentCycle GateErrorCode = "COMPONENT_CYCLE"

	// ErrCodeUnknownMode indicates a component scope with an invalid mode.
	ErrCodeUnknownMode GateErrorCode = "UNKNOWN_COMPONENT_MODE"

	// ErrCodeLookupFailed indicates every quoting variant failed for a
	// relation id.
	ErrCodeLookupFailed GateErrorCode = "RELATION_LOOKUP_FAILED"

	// ErrCodeSnapshotFailed indicates the pass could not read a consistent
	// snapshot. Fatal for the whole pass; nothing was written.
	ErrCodeSnapshotFailed GateErrorCode = "SNAPSHOT_FAILED"

	// ErrCodePartialApply indicates the sequential fallback stopped partway.
	ErrCodePartialApply GateErrorCode = "STORE_PARTIAL_APPLY"

	// ErrCodeCancelled indicates the pass was cancelled cleanly.
	ErrCodeCancelled GateErrorCode = "PASS_CANCELLED"
)

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.Scope != "" && e.PassToken != "" {
		return fmt.Sprintf("%s: %s (scope=%s, pass=%s)", e.Code, e.Message, e.Scope, e.PassToken)
	}
	if e.Scope != "" {
		return fmt.Sprintf("%s: %s (scope=%s)", e.Code, e.Message, e.Scope)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError returns true if the error is fatal for a configuration
// scope (the scope is skipped, the pass continues).
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ge *GateError
	if !errors.As(err, &ge) {
		return false
	}
	switch ge.Code {
	case ErrCodeStageGap, ErrCodeStageZeroMissing, ErrCodeComponentCycle, ErrCodeUnknownMode:
		return true
	}
	return false
}

// IsPartialApply returns true if the error reports a partially applied
// batch. The applied count is in Details["applied"].
func IsPartialApply(err error) bool {
	var ge *GateError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodePartialApply
	}
	return false
}

// NewStageGapError creates a GateError for a broken stage index sequence.
func NewStageGapError(noteType string, wantIdx, gotIdx int) *GateError {
	return &GateError{
		Code:    ErrCodeStageGap,
		Message: fmt.Sprintf("stage indexes must be contiguous from 0 (want %d, got %d)", wantIdx, gotIdx),
		Scope:   noteType,
		Details: map[string]string{
			"want_index": fmt.Sprintf("%d", wantIdx),
			"got_index":  fmt.Sprintf("%d", gotIdx),
		},
	}
}

// NewStageZeroMissingError creates a GateError for a chain without stage 0.
func NewStageZeroMissingError(noteType string) *GateError {
	return &GateError{
		Code:    ErrCodeStageZeroMissing,
		Message: "gated note-type has no stage 0",
		Scope:   noteType,
	}
}

// NewComponentCycleError creates a GateError for a unit-graph cycle.
// The cycle path is reported character by character for diagnostics.
func NewComponentCycleError(scope string, path []string) *GateError {
	return &GateError{
		Code:    ErrCodeComponentCycle,
		Message: "component graph contains a cycle",
		Scope:   scope,
		Details: map[string]string{
			"cycle": joinPath(path),
		},
	}
}

// NewUnknownModeError creates a GateError for an invalid component mode.
func NewUnknownModeError(scope string, raw string) *GateError {
	return &GateError{
		Code:    ErrCodeUnknownMode,
		Message: fmt.Sprintf("unknown component mode %q", raw),
		Scope:   scope,
	}
}

// NewLookupFailedError creates a GateError for a relation id that failed
// every quoting variant.
func NewLookupFailedError(relationID string, attempts int, first error) *GateError {
	ge := &GateError{
		Code:    ErrCodeLookupFailed,
		Message: fmt.Sprintf("relation %q unresolvable after %d lookup variants", relationID, attempts),
		Details: map[string]string{
			"relation_id": relationID,
			"attempts":    fmt.Sprintf("%d", attempts),
		},
	}
	if first != nil {
		ge.Details["first_error"] = first.Error()
	}
	return ge
}

// NewSnapshotError wraps a snapshot read failure.
func NewSnapshotError(err error) *GateError {
	return &GateError{
		Code:    ErrCodeSnapshotFailed,
		Message: err.Error(),
	}
}

// NewPartialApplyError creates a GateError for an interrupted sequential
// apply. applied counts the changes that did land; they are themselves
// consistent card states, so no rollback is needed.
func NewPartialApplyError(applied, total int, first error) *GateError {
	ge := &GateError{
		Code:    ErrCodePartialApply,
		Message: fmt.Sprintf("applied %d of %d changes", applied, total),
		Details: map[string]string{
			"applied": fmt.Sprintf("%d", applied),
			"total":   fmt.Sprintf("%d", total),
		},
	}
	if first != nil {
		ge.Details["first_error"] = first.Error()
	}
	return ge
}

// NewCancelledError marks a pass stopped by context cancellation. The
// snapshot model makes this clean: nothing written, nothing to undo,
// unless the error wraps a partial apply.
func NewCancelledError(token string, cause error) *GateError {
	ge := &GateError{
		Code:      ErrCodeCancelled,
		Message:   "pass cancelled",
		PassToken: token,
	}
	if cause != nil {
		ge.Details = map[string]string{"cause": cause.Error()}
	}
	return ge
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}
