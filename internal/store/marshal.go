package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fieldSep joins field values inside notes.flds, following the host
// collection convention (ASCII unit separator). Field values never
// contain it.
const fieldSep = "\x1f"

// notetypeConfig is the JSON payload of notetypes.config. Field and
// template names are positional: index i names field/card ordinal i.
type notetypeConfig struct {
	Fields    []string `json:"fields"`
	Templates []string `json:"templates"`
}

// notetype is one decoded notetypes row.
type notetype struct {
	ID     int64
	Name   string
	Config notetypeConfig
}

// templateName returns the template name for a card ordinal, or "" when
// the ordinal is not covered by the notetype config. Unknown templates
// never match a configured stage, so such cards stay ungoverned.
func (nt notetype) templateName(ord int) string {
	if ord < 0 || ord >= len(nt.Config.Templates) {
		return ""
	}
	return nt.Config.Templates[ord]
}

// fieldMap zips the notetype's field names with a note's stored values.
// Values beyond the named fields are dropped; missing values read as "".
func (nt notetype) fieldMap(flds string) map[string]string {
	values := splitFields(flds)
	fields := make(map[string]string, len(nt.Config.Fields))
	for i, name := range nt.Config.Fields {
		if i < len(values) {
			fields[name] = values[i]
		} else {
			fields[name] = ""
		}
	}
	return fields
}

func encodeNotetypeConfig(cfg notetypeConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode notetype config: %w", err)
	}
	return string(raw), nil
}

func decodeNotetypeConfig(raw string) (notetypeConfig, error) {
	var cfg notetypeConfig
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("decode notetype config: %w", err)
	}
	return cfg, nil
}

func joinFields(values []string) string {
	return strings.Join(values, fieldSep)
}

func splitFields(flds string) []string {
	if flds == "" {
		return nil
	}
	return strings.Split(flds, fieldSep)
}

// joinTags renders a tag list in the stored space-delimited form.
func joinTags(tags []string) string {
	return strings.Join(tags, " ")
}

// splitTags parses the stored tag column. Tolerates any amount of
// surrounding or repeated whitespace, which host systems use as padding.
func splitTags(raw string) []string {
	return strings.Fields(raw)
}
