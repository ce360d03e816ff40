package srs

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// ComponentMode selects which component-aggregation edges are evaluated
// and in what order. Exactly one mode applies per configured scope; the
// four modes are mutually exclusive policies over the same readiness
// signals, so evaluation switches over them exhaustively.
type ComponentMode int

const (
	// KanjiOnly unlocks parent display cards from contributing readiness;
	// sub-components are never evaluated.
	KanjiOnly ComponentMode = iota + 1
	// KanjiThenComponents unlocks the parent first; its sub-components
	// unlock once the parent's own cards reach the parent threshold.
	KanjiThenComponents
	// ComponentsThenKanji unlocks sub-components first; the parent
	// unlocks only when all of its sub-components are ready.
	ComponentsThenKanji
	// KanjiAndComponents unlocks parent and sub-components together.
	KanjiAndComponents
)

var (
	modeNames = [...]string{
		KanjiOnly:           "kanji_only",
		KanjiThenComponents: "kanji_then_components",
		ComponentsThenKanji: "components_then_kanji",
		KanjiAndComponents:  "kanji_and_components",
	}
	modeByName = map[string]ComponentMode{
		"kanji_only":            KanjiOnly,
		"kanji_then_components": KanjiThenComponents,
		"components_then_kanji": ComponentsThenKanji,
		"kanji_and_components":  KanjiAndComponents,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = ComponentMode(0)
	_ json.Marshaler           = ComponentMode(0)
	_ json.Unmarshaler         = (*ComponentMode)(nil)
	_ encoding.TextMarshaler   = ComponentMode(0)
	_ encoding.TextUnmarshaler = (*ComponentMode)(nil)
)

// Valid reports whether m is one of the four defined modes.
func (m ComponentMode) Valid() bool {
	return m >= KanjiOnly && m <= KanjiAndComponents
}

// String returns the configuration name (e.g. "components_then_kanji").
// For invalid values it returns "ComponentMode(n)".
func (m ComponentMode) String() string {
	if m.Valid() {
		return modeNames[m]
	}
	return fmt.Sprintf("ComponentMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m ComponentMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("torii: invalid component mode: %d", int(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ComponentMode) UnmarshalText(text []byte) error {
	v, ok := modeByName[string(text)]
	if !ok {
		return fmt.Errorf("torii: invalid component mode: %q", text)
	}
	*m = v
	return nil
}

// MarshalJSON implements json.Marshaler. Modes serialize as strings.
func (m ComponentMode) MarshalJSON() ([]byte, error) {
	text, err := m.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (m *ComponentMode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("torii: invalid component mode: %s", data)
	}
	return m.UnmarshalText([]byte(str))
}
