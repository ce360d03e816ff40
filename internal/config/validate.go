package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yamadera/torii/internal/srs"
)

// Validation error codes (E100-E199)
const (
	// Stage chain errors (E101-E109)
	ErrStageNoTemplates = "E101" // stage names no card templates
	ErrStageThreshold   = "E102" // negative stage threshold
	ErrStageIndex       = "E103" // chain indexes must run 0, 1, 2, ...
	ErrStageEmptyChain  = "E104" // note-type with no stages

	// Family errors (E110-E119)
	ErrFamilyField        = "E110" // note_types bound without a link field
	ErrFamilyUnstagedType = "E111" // family note-type has no stage chain

	// Component scope errors (E120-E129)
	ErrComponentMode      = "E120" // missing or unknown mode
	ErrComponentBinding   = "E121" // required note-type binding missing
	ErrComponentThreshold = "E122" // negative component threshold
	ErrComponentName      = "E123" // duplicate scope name

	// Example scope errors (E130-E139)
	ErrExampleBinding   = "E130" // required binding field missing
	ErrExampleThreshold = "E131" // negative example threshold

	// Apply errors (E140-E149)
	ErrApplyChunkSize = "E140" // apply_chunk_size below 1
)

// ValidationError represents one static rule violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors aggregates every violation found in one Validate
// call into a single error value.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "configuration is invalid"
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

// Validate checks the static cross-field rules Compile cannot express.
// Returns all errors found (does not fail-fast).
//
// A configuration that passes Validate can still raise runtime scope
// errors: a stage whose templates match no live cards, a cyclic
// component graph. Those depend on collection data and stay with the
// engine.
func Validate(cfg *srs.Config) []ValidationError {
	var errs []ValidationError

	if cfg.ApplyChunkSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "apply_chunk_size",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.ApplyChunkSize),
			Code:    ErrApplyChunkSize,
		})
	}

	errs = append(errs, validateStages(cfg)...)
	errs = append(errs, validateFamily(cfg)...)
	errs = append(errs, validateComponents(cfg)...)
	errs = append(errs, validateExamples(cfg)...)
	return errs
}

// validateStages checks each note-type's chain in isolation. Note-types
// are visited in sorted order so repeated runs report identically.
func validateStages(cfg *srs.Config) []ValidationError {
	var errs []ValidationError

	noteTypes := make([]string, 0, len(cfg.Stages))
	for nt := range cfg.Stages {
		noteTypes = append(noteTypes, nt)
	}
	sort.Strings(noteTypes)

	for _, nt := range noteTypes {
		chain := cfg.Stages[nt]
		if len(chain) == 0 {
			errs = append(errs, ValidationError{
				Field:   "stages." + nt,
				Message: "at least one stage is required",
				Code:    ErrStageEmptyChain,
			})
			continue
		}

		sorted := make([]srs.StageDef, len(chain))
		copy(sorted, chain)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
		for i, def := range sorted {
			if def.Index != i {
				errs = append(errs, ValidationError{
					Field:   "stages." + nt,
					Message: fmt.Sprintf("stage indexes must run 0, 1, 2, ... without gaps, got %d at position %d", def.Index, i),
					Code:    ErrStageIndex,
				})
				break
			}
		}

		for i, def := range chain {
			field := fmt.Sprintf("stages.%s[%d]", nt, i)
			if len(def.Templates) == 0 {
				errs = append(errs, ValidationError{
					Field:   field + ".templates",
					Message: fmt.Sprintf("stage %d names no card templates", def.Index),
					Code:    ErrStageNoTemplates,
				})
			}
			if def.Threshold < 0 {
				errs = append(errs, ValidationError{
					Field:   field + ".threshold",
					Message: fmt.Sprintf("threshold must be >= 0, got %v", def.Threshold),
					Code:    ErrStageThreshold,
				})
			}
		}
	}
	return errs
}

func validateFamily(cfg *srs.Config) []ValidationError {
	var errs []ValidationError

	f := cfg.Family
	if !f.Enabled() {
		return nil
	}

	// E110: the relation field carries the whole mechanism
	if strings.TrimSpace(f.Field) == "" {
		errs = append(errs, ValidationError{
			Field:   "family.field",
			Message: "family gating requires a relation link field",
			Code:    ErrFamilyField,
		})
	}

	// E111: family ordering gates stage chains, so every participating
	// note-type needs one
	for _, nt := range f.NoteTypes {
		if _, ok := cfg.Stages[nt]; !ok {
			errs = append(errs, ValidationError{
				Field:   "family.note_types",
				Message: fmt.Sprintf("note-type %q has no stage chain", nt),
				Code:    ErrFamilyUnstagedType,
			})
		}
	}
	return errs
}

func validateComponents(cfg *srs.Config) []ValidationError {
	var errs []ValidationError

	names := make(map[string]bool)
	for i, scope := range cfg.Components {
		field := fmt.Sprintf("components[%d]", i)

		// E123: duplicate scope name
		if scope.Name != "" && names[scope.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate scope name: %q", scope.Name),
				Code:    ErrComponentName,
			})
		}
		names[scope.Name] = true

		// E120: mode must be one of the four defined modes
		if !scope.Mode.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".mode",
				Message: fmt.Sprintf("unknown component mode: %s", scope.Mode),
				Code:    ErrComponentMode,
			})
		}

		// E121: unit and contributor bindings are required
		if scope.Kanji.NoteType == "" || scope.Kanji.CharField == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".kanji",
				Message: "kanji note_type and char_field are required",
				Code:    ErrComponentBinding,
			})
		}
		if scope.Vocab.NoteType == "" || len(scope.Vocab.TextFields) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".vocab",
				Message: "vocab note_type and text_fields are required",
				Code:    ErrComponentBinding,
			})
		}
		// Every mode except kanji_only follows sub-component edges.
		if scope.Mode.Valid() && scope.Mode != srs.KanjiOnly && scope.Kanji.ComponentsField == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".kanji.components_field",
				Message: fmt.Sprintf("mode %s requires a components field", scope.Mode),
				Code:    ErrComponentBinding,
			})
		}

		// E122: thresholds are days, never negative
		for _, th := range []struct {
			name  string
			value float64
		}{
			{"base_threshold", scope.BaseThreshold},
			{"parent_threshold", scope.ParentThreshold},
			{"component_threshold", scope.ComponentThreshold},
		} {
			if th.value < 0 {
				errs = append(errs, ValidationError{
					Field:   field + "." + th.name,
					Message: fmt.Sprintf("threshold must be >= 0, got %v", th.value),
					Code:    ErrComponentThreshold,
				})
			}
		}
	}
	return errs
}

func validateExamples(cfg *srs.Config) []ValidationError {
	var errs []ValidationError

	for i, scope := range cfg.Examples {
		field := fmt.Sprintf("examples[%d]", i)

		// E130: the matcher needs both sides of the key binding
		for _, b := range []struct {
			name  string
			value string
		}{
			{"note_type", scope.NoteType},
			{"key_field", scope.KeyField},
			{"target_note_type", scope.TargetNoteType},
			{"target_key_field", scope.TargetKeyField},
		} {
			if strings.TrimSpace(b.value) == "" {
				errs = append(errs, ValidationError{
					Field:   field + "." + b.name,
					Message: b.name + " is required",
					Code:    ErrExampleBinding,
				})
			}
		}

		// E131: thresholds are days, never negative
		if scope.Threshold < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".threshold",
				Message: fmt.Sprintf("threshold must be >= 0, got %v", scope.Threshold),
				Code:    ErrExampleThreshold,
			})
		}
	}
	return errs
}
