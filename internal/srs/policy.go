package srs

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// AggregationPolicy defines how several cards' stability values combine
// into one comparison value before thresholding.
type AggregationPolicy int

const (
	// AggregateMin compares the lowest stability in the set.
	AggregateMin AggregationPolicy = iota + 1
	// AggregateMax compares the highest stability in the set.
	AggregateMax
	// AggregateAvg compares the arithmetic mean.
	AggregateAvg
)

var (
	policyNames = [...]string{AggregateMin: "min", AggregateMax: "max", AggregateAvg: "avg"}
	policyByName = map[string]AggregationPolicy{
		"min": AggregateMin,
		"max": AggregateMax,
		"avg": AggregateAvg,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = AggregationPolicy(0)
	_ json.Marshaler           = AggregationPolicy(0)
	_ json.Unmarshaler         = (*AggregationPolicy)(nil)
	_ encoding.TextMarshaler   = AggregationPolicy(0)
	_ encoding.TextUnmarshaler = (*AggregationPolicy)(nil)
)

// Valid reports whether p is one of the three defined policies.
func (p AggregationPolicy) Valid() bool {
	return p >= AggregateMin && p <= AggregateAvg
}

// String returns the configuration name ("min", "max", "avg").
// For invalid values it returns "AggregationPolicy(n)".
func (p AggregationPolicy) String() string {
	if p.Valid() {
		return policyNames[p]
	}
	return fmt.Sprintf("AggregationPolicy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p AggregationPolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("torii: invalid aggregation policy: %d", int(p))
	}
	return []byte(policyNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *AggregationPolicy) UnmarshalText(text []byte) error {
	v, ok := policyByName[string(text)]
	if !ok {
		return fmt.Errorf("torii: invalid aggregation policy: %q", text)
	}
	*p = v
	return nil
}

// MarshalJSON implements json.Marshaler. Policies serialize as strings.
func (p AggregationPolicy) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (p *AggregationPolicy) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("torii: invalid aggregation policy: %s", data)
	}
	return p.UnmarshalText([]byte(str))
}
