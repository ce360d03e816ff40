package srs

import (
	"encoding"
	"fmt"
)

// ObservationKind classifies what a readiness evaluation actually saw.
type ObservationKind int

const (
	// ObservedMissing means the evaluated card set was empty.
	ObservedMissing ObservationKind = iota + 1
	// ObservedUnrated means every card in the set had no review history.
	ObservedUnrated
	// ObservedRated means at least one card contributed a stability value.
	ObservedRated
)

var (
	observationNames = [...]string{
		ObservedMissing: "missing",
		ObservedUnrated: "unrated",
		ObservedRated:   "rated",
	}
	observationByName = map[string]ObservationKind{
		"missing": ObservedMissing,
		"unrated": ObservedUnrated,
		"rated":   ObservedRated,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = ObservationKind(0)
	_ encoding.TextMarshaler   = ObservationKind(0)
	_ encoding.TextUnmarshaler = (*ObservationKind)(nil)
)

func (k ObservationKind) isValid() bool {
	return k >= ObservedMissing && k <= ObservedRated
}

// String returns "missing", "unrated" or "rated".
// For invalid values it returns "ObservationKind(n)".
func (k ObservationKind) String() string {
	if k.isValid() {
		return observationNames[k]
	}
	return fmt.Sprintf("ObservationKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ObservationKind) MarshalText() ([]byte, error) {
	if !k.isValid() {
		return nil, fmt.Errorf("torii: invalid observation kind: %d", int(k))
	}
	return []byte(observationNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ObservationKind) UnmarshalText(text []byte) error {
	v, ok := observationByName[string(text)]
	if !ok {
		return fmt.Errorf("torii: invalid observation kind: %q", text)
	}
	*k = v
	return nil
}

// Observation is the combined stability value a readiness evaluation
// compared against its threshold, together with how that value came to be.
// Days is meaningful only when Kind == ObservedRated.
type Observation struct {
	Kind ObservationKind `json:"kind"`
	Days float64         `json:"days,omitempty"`
}

// ReadinessResult is the verdict of one readiness evaluation.
// It is produced per call and never cached across passes; every pass
// recomputes from the current oracle state.
type ReadinessResult struct {
	Ready     bool        `json:"ready"`
	Observed  Observation `json:"observed"`
	Threshold float64     `json:"threshold"`
}

// String renders a compact diagnostic form, e.g. "ready (12.4d >= 2.5d)"
// or "not ready (unrated, threshold 14d)".
func (r ReadinessResult) String() string {
	verdict := "not ready"
	if r.Ready {
		verdict = "ready"
	}
	if r.Observed.Kind == ObservedRated {
		return fmt.Sprintf("%s (%.1fd vs %.1fd)", verdict, r.Observed.Days, r.Threshold)
	}
	return fmt.Sprintf("%s (%s, threshold %.1fd)", verdict, r.Observed.Kind, r.Threshold)
}
