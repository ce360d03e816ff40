package srs

// Config is the compiled gating configuration for one pass. The config
// package produces it from CUE source; the engine treats it as immutable
// for the duration of a pass.
type Config struct {
	// StickyUnlock keeps once-unlocked stages and units unlocked on later
	// passes even if stability regresses below threshold.
	StickyUnlock bool `json:"sticky_unlock"`

	// RunOnSync / RunOnManual enable passes for the respective trigger.
	RunOnSync   bool `json:"run_on_sync"`
	RunOnManual bool `json:"run_on_manual"`

	// ApplyChunkSize bounds one sequential-fallback write chunk.
	ApplyChunkSize int `json:"apply_chunk_size"`

	// Stages maps a note-type name to its ordered stage chain.
	Stages map[string][]StageDef `json:"stages,omitempty"`

	Family     FamilySettings   `json:"family"`
	Components []ComponentScope `json:"components,omitempty"`
	Examples   []ExampleScope   `json:"examples,omitempty"`

	Debug DebugSettings `json:"debug"`
}

// StageDef is one tier of a note-type's stage chain.
type StageDef struct {
	// Index is 0-based, strictly increasing across the chain, no gaps.
	Index int `json:"index"`
	// Templates names the card templates whose cards belong to this stage.
	Templates []string `json:"templates"`
	// Threshold is the stability bar in days, >= 0.
	Threshold float64 `json:"threshold"`
	// Policy combines the stage's card stabilities. Defaults to min.
	Policy AggregationPolicy `json:"policy"`
}

// FamilySettings binds the cross-note priority mechanism to note data.
type FamilySettings struct {
	// NoteTypes lists the note-types that participate in family gating.
	// Every listed note-type must also have a stage chain.
	NoteTypes []string `json:"note_types,omitempty"`
	// Field is the note field holding the relation links.
	Field string `json:"field"`
	// Separator splits the field into link tokens. Default ";".
	Separator string `json:"separator,omitempty"`
	// DefaultPriority applies to tokens without a parsable "@N" suffix.
	DefaultPriority int `json:"default_priority"`
}

// Syntax returns the parsing syntax for this family configuration.
func (f FamilySettings) Syntax() RelationSyntax {
	return RelationSyntax{Separator: f.Separator, DefaultPriority: f.DefaultPriority}
}

// Enabled reports whether any note-type participates in family gating.
func (f FamilySettings) Enabled() bool { return len(f.NoteTypes) > 0 }

// ComponentScope configures one component-aggregation scope. All units
// under one scope share the mode; the failure isolation boundary for
// configuration errors is the scope.
type ComponentScope struct {
	Name string        `json:"name"`
	Mode ComponentMode `json:"mode"`
	// Policy combines a note's matched cards into its stability signal.
	// Defaults to min (every card must carry the note).
	Policy AggregationPolicy `json:"policy"`

	// BaseThreshold is the contributing-card bar (vocabulary cards
	// feeding their kanji into the unlock set).
	BaseThreshold float64 `json:"base_threshold"`
	// ParentThreshold is the parent's own bar for KanjiThenComponents.
	ParentThreshold float64 `json:"parent_threshold"`
	// ComponentThreshold is the sub-component bar for ComponentsThenKanji.
	ComponentThreshold float64 `json:"component_threshold"`

	Vocab   VocabBinding   `json:"vocab"`
	Kanji   KanjiBinding   `json:"kanji"`
	Radical RadicalBinding `json:"radical"`
}

// VocabBinding locates contributing items and their gateable kanji-form
// cards within the vocabulary note-type.
type VocabBinding struct {
	NoteType string `json:"note_type"`
	// TextFields are scanned (furigana-stripped) for contributed kanji.
	TextFields []string `json:"text_fields"`
	// KanjiFormTemplates are the vocab templates gated by kanji readiness
	// under ComponentsThenKanji ("" means the mode gates no vocab cards).
	KanjiFormTemplates []string `json:"kanji_form_templates,omitempty"`
}

// KanjiBinding locates parent/sub-component units.
type KanjiBinding struct {
	NoteType string `json:"note_type"`
	// CharField holds the unit's own character.
	CharField string `json:"char_field"`
	// ComponentsField lists the unit's sub-component characters.
	ComponentsField string `json:"components_field"`
}

// RadicalBinding locates display-only sub-sub units. Optional.
type RadicalBinding struct {
	NoteType  string `json:"note_type,omitempty"`
	CharField string `json:"char_field,omitempty"`
}

// Configured reports whether a radical note-type is bound.
func (r RadicalBinding) Configured() bool { return r.NoteType != "" }

// ExampleScope configures gating of example notes on resolved target cards.
// The resolution pipeline itself is a collaborator; the scope only binds
// the note-types and the readiness bar, plus the key fields the built-in
// exact-match resolver uses.
type ExampleScope struct {
	Name     string `json:"name"`
	NoteType string `json:"note_type"`

	Threshold float64           `json:"threshold"`
	Policy    AggregationPolicy `json:"policy"`

	// KeyField on the example note names its target. A "key@<noteid>"
	// suffix bypasses key matching and forces that target note directly.
	KeyField string `json:"key_field"`
	// TargetNoteType / TargetKeyField locate the matched note.
	TargetNoteType string `json:"target_note_type"`
	TargetKeyField string `json:"target_key_field"`
	// TargetTemplates names the target's templates whose cards gate the
	// example. Empty means all of the target's cards.
	TargetTemplates []string `json:"target_templates,omitempty"`
}

// DebugSettings tune diagnostics without changing gating semantics.
type DebugSettings struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `json:"level,omitempty"`
	// VerifyApply re-reads written cards after the apply step and reports
	// mismatches as diagnostics.
	VerifyApply bool `json:"verify_apply"`
	// WatchNotes forces verbose per-note decision logs for these notes.
	WatchNotes []NoteID `json:"watch_notes,omitempty"`
}

// WatchesNote reports whether id is on the watch list.
func (d DebugSettings) WatchesNote(id NoteID) bool {
	for _, w := range d.WatchNotes {
		if w == id {
			return true
		}
	}
	return false
}
