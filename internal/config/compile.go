// Package config compiles CUE gating configuration into the form the
// engine consumes, and checks it against the static validation rules.
package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/yamadera/torii/internal/srs"
)

// Defaults applied by Compile when the configuration omits a value.
// Thresholds are stability days.
const (
	DefaultStabilityThreshold = 2.5
	DefaultExampleThreshold   = 14.0
	DefaultApplyChunkSize     = 1000
)

// Compile parses a CUE value into a gating configuration.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the configuration struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`gating: { stages: vocab: [...] }`)
//	cfg, err := Compile(v.LookupPath(cue.ParsePath("gating")))
//
// Omitted values take the documented defaults. Compile checks field
// shapes only; the cross-field rules are Validate's job.
func Compile(v cue.Value) (*srs.Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &srs.Config{
		StickyUnlock:   true,
		RunOnSync:      true,
		RunOnManual:    true,
		ApplyChunkSize: DefaultApplyChunkSize,
	}

	var err error
	if cfg.StickyUnlock, err = lookupBool(v, "sticky_unlock", cfg.StickyUnlock); err != nil {
		return nil, err
	}
	if cfg.RunOnSync, err = lookupBool(v, "run_on_sync", cfg.RunOnSync); err != nil {
		return nil, err
	}
	if cfg.RunOnManual, err = lookupBool(v, "run_on_manual", cfg.RunOnManual); err != nil {
		return nil, err
	}
	if cfg.ApplyChunkSize, err = lookupInt(v, "apply_chunk_size", cfg.ApplyChunkSize); err != nil {
		return nil, err
	}

	if cfg.Stages, err = parseStages(v); err != nil {
		return nil, err
	}
	if cfg.Family, err = parseFamily(v); err != nil {
		return nil, err
	}
	if cfg.Components, err = parseComponents(v); err != nil {
		return nil, err
	}
	if cfg.Examples, err = parseExamples(v); err != nil {
		return nil, err
	}
	if cfg.Debug, err = parseDebug(v); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseStages extracts the per-note-type stage chains.
func parseStages(v cue.Value) (map[string][]srs.StageDef, error) {
	sv := v.LookupPath(cue.ParsePath("stages"))
	if !sv.Exists() {
		return nil, nil
	}

	iter, err := sv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	stages := make(map[string][]srs.StageDef)
	for iter.Next() {
		noteType := iter.Label()

		list, err := iter.Value().List()
		if err != nil {
			return nil, formatCUEError(err)
		}

		var chain []srs.StageDef
		for i := 0; list.Next(); i++ {
			def, err := parseStageDef(fmt.Sprintf("stages.%s[%d]", noteType, i), list.Value())
			if err != nil {
				return nil, err
			}
			chain = append(chain, def)
		}
		if len(chain) == 0 {
			return nil, &CompileError{
				Field:   "stages." + noteType,
				Message: "at least one stage is required",
				Pos:     iter.Value().Pos(),
			}
		}
		stages[noteType] = chain
	}
	return stages, nil
}

// parseStageDef parses one tier of a stage chain. The index is authored
// explicitly, not inferred from list position.
func parseStageDef(field string, v cue.Value) (srs.StageDef, error) {
	def := srs.StageDef{
		Threshold: DefaultStabilityThreshold,
		Policy:    srs.AggregateMin,
	}

	iv := v.LookupPath(cue.ParsePath("index"))
	if !iv.Exists() {
		return def, &CompileError{
			Field:   field + ".index",
			Message: "stage index is required",
			Pos:     v.Pos(),
		}
	}
	idx, err := iv.Int64()
	if err != nil {
		return def, formatCUEError(err)
	}
	def.Index = int(idx)

	if def.Templates, err = lookupStringList(v, "templates"); err != nil {
		return def, err
	}
	if def.Threshold, err = lookupFloat(v, "threshold", def.Threshold); err != nil {
		return def, err
	}
	if def.Policy, err = lookupPolicy(v, field, def.Policy); err != nil {
		return def, err
	}
	return def, nil
}

// parseFamily extracts the cross-note priority settings. An absent
// struct means family gating is disabled.
func parseFamily(v cue.Value) (srs.FamilySettings, error) {
	var f srs.FamilySettings

	fv := v.LookupPath(cue.ParsePath("family"))
	if !fv.Exists() {
		return f, nil
	}

	var err error
	if f.NoteTypes, err = lookupStringList(fv, "note_types"); err != nil {
		return f, err
	}
	if f.Field, err = lookupString(fv, "field", ""); err != nil {
		return f, err
	}
	if f.Separator, err = lookupString(fv, "separator", ""); err != nil {
		return f, err
	}
	if f.DefaultPriority, err = lookupInt(fv, "default_priority", 0); err != nil {
		return f, err
	}
	return f, nil
}

func parseComponents(v cue.Value) ([]srs.ComponentScope, error) {
	cv := v.LookupPath(cue.ParsePath("components"))
	if !cv.Exists() {
		return nil, nil
	}

	list, err := cv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var scopes []srs.ComponentScope
	for i := 0; list.Next(); i++ {
		scope, err := parseComponentScope(fmt.Sprintf("components[%d]", i), list.Value())
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

// parseComponentScope parses one aggregation scope. The mode is
// required; everything else has a workable default.
func parseComponentScope(field string, v cue.Value) (srs.ComponentScope, error) {
	scope := srs.ComponentScope{
		Policy:             srs.AggregateMin,
		BaseThreshold:      DefaultStabilityThreshold,
		ParentThreshold:    DefaultStabilityThreshold,
		ComponentThreshold: DefaultStabilityThreshold,
	}

	var err error
	if scope.Name, err = lookupString(v, "name", ""); err != nil {
		return scope, err
	}

	mv := v.LookupPath(cue.ParsePath("mode"))
	if !mv.Exists() {
		return scope, &CompileError{
			Field:   field + ".mode",
			Message: "component mode is required",
			Pos:     v.Pos(),
		}
	}
	mode, err := mv.String()
	if err != nil {
		return scope, formatCUEError(err)
	}
	if err := scope.Mode.UnmarshalText([]byte(mode)); err != nil {
		return scope, &CompileError{
			Field:   field + ".mode",
			Message: fmt.Sprintf("unknown component mode %q", mode),
			Pos:     mv.Pos(),
		}
	}

	if scope.Policy, err = lookupPolicy(v, field, scope.Policy); err != nil {
		return scope, err
	}
	if scope.BaseThreshold, err = lookupFloat(v, "base_threshold", scope.BaseThreshold); err != nil {
		return scope, err
	}
	if scope.ParentThreshold, err = lookupFloat(v, "parent_threshold", scope.ParentThreshold); err != nil {
		return scope, err
	}
	if scope.ComponentThreshold, err = lookupFloat(v, "component_threshold", scope.ComponentThreshold); err != nil {
		return scope, err
	}

	if vv := v.LookupPath(cue.ParsePath("vocab")); vv.Exists() {
		if scope.Vocab.NoteType, err = lookupString(vv, "note_type", ""); err != nil {
			return scope, err
		}
		if scope.Vocab.TextFields, err = lookupStringList(vv, "text_fields"); err != nil {
			return scope, err
		}
		if scope.Vocab.KanjiFormTemplates, err = lookupStringList(vv, "kanji_form_templates"); err != nil {
			return scope, err
		}
	}
	if kv := v.LookupPath(cue.ParsePath("kanji")); kv.Exists() {
		if scope.Kanji.NoteType, err = lookupString(kv, "note_type", ""); err != nil {
			return scope, err
		}
		if scope.Kanji.CharField, err = lookupString(kv, "char_field", ""); err != nil {
			return scope, err
		}
		if scope.Kanji.ComponentsField, err = lookupString(kv, "components_field", ""); err != nil {
			return scope, err
		}
	}
	if rv := v.LookupPath(cue.ParsePath("radical")); rv.Exists() {
		if scope.Radical.NoteType, err = lookupString(rv, "note_type", ""); err != nil {
			return scope, err
		}
		if scope.Radical.CharField, err = lookupString(rv, "char_field", ""); err != nil {
			return scope, err
		}
	}

	return scope, nil
}

func parseExamples(v cue.Value) ([]srs.ExampleScope, error) {
	ev := v.LookupPath(cue.ParsePath("examples"))
	if !ev.Exists() {
		return nil, nil
	}

	list, err := ev.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var scopes []srs.ExampleScope
	for i := 0; list.Next(); i++ {
		scope, err := parseExampleScope(fmt.Sprintf("examples[%d]", i), list.Value())
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

func parseExampleScope(field string, v cue.Value) (srs.ExampleScope, error) {
	scope := srs.ExampleScope{
		Threshold: DefaultExampleThreshold,
		Policy:    srs.AggregateMin,
	}

	var err error
	if scope.Name, err = lookupString(v, "name", ""); err != nil {
		return scope, err
	}
	if scope.NoteType, err = lookupString(v, "note_type", ""); err != nil {
		return scope, err
	}
	if scope.Threshold, err = lookupFloat(v, "threshold", scope.Threshold); err != nil {
		return scope, err
	}
	if scope.Policy, err = lookupPolicy(v, field, scope.Policy); err != nil {
		return scope, err
	}
	if scope.KeyField, err = lookupString(v, "key_field", ""); err != nil {
		return scope, err
	}
	if scope.TargetNoteType, err = lookupString(v, "target_note_type", ""); err != nil {
		return scope, err
	}
	if scope.TargetKeyField, err = lookupString(v, "target_key_field", ""); err != nil {
		return scope, err
	}
	if scope.TargetTemplates, err = lookupStringList(v, "target_templates"); err != nil {
		return scope, err
	}
	return scope, nil
}

func parseDebug(v cue.Value) (srs.DebugSettings, error) {
	var d srs.DebugSettings

	dv := v.LookupPath(cue.ParsePath("debug"))
	if !dv.Exists() {
		return d, nil
	}

	var err error
	if d.Level, err = lookupString(dv, "level", ""); err != nil {
		return d, err
	}
	if d.VerifyApply, err = lookupBool(dv, "verify_apply", false); err != nil {
		return d, err
	}

	wv := dv.LookupPath(cue.ParsePath("watch_notes"))
	if wv.Exists() {
		iter, err := wv.List()
		if err != nil {
			return d, formatCUEError(err)
		}
		for iter.Next() {
			id, err := iter.Value().Int64()
			if err != nil {
				return d, formatCUEError(err)
			}
			d.WatchNotes = append(d.WatchNotes, srs.NoteID(id))
		}
	}
	return d, nil
}

// Typed field lookups. A missing field yields the default; a present
// field of the wrong type is a compile error.

func lookupBool(v cue.Value, path string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return def, formatCUEError(err)
	}
	return b, nil
}

func lookupInt(v cue.Value, path string, def int) (int, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return def, formatCUEError(err)
	}
	return int(n), nil
}

func lookupFloat(v cue.Value, path string, def float64) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return def, formatCUEError(err)
	}
	return f, nil
}

func lookupString(v cue.Value, path string, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return def, formatCUEError(err)
	}
	return s, nil
}

func lookupStringList(v cue.Value, path string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// lookupPolicy reads an aggregation policy by its configuration name.
// field is the enclosing struct's path, for error reporting.
func lookupPolicy(v cue.Value, field string, def srs.AggregationPolicy) (srs.AggregationPolicy, error) {
	fv := v.LookupPath(cue.ParsePath("policy"))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return def, formatCUEError(err)
	}
	var p srs.AggregationPolicy
	if err := p.UnmarshalText([]byte(s)); err != nil {
		return def, &CompileError{
			Field:   field + ".policy",
			Message: fmt.Sprintf("unknown aggregation policy %q", s),
			Pos:     fv.Pos(),
		}
	}
	return p, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
