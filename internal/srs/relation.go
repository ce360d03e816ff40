package srs

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RelationLink is one (relation id, priority) tag on a note, used for
// cross-note ordering. The relation id is an opaque exact-match token:
// it may contain whitespace or characters that are special in query
// languages and must never be interpreted as a pattern.
type RelationLink struct {
	RelationID string `json:"relation_id"`
	Priority   int    `json:"priority"`
}

// RelationSyntax controls how a note's relation field is split into links.
// Zero values fall back to the conventional syntax: ";" separated tokens,
// an optional "@N" priority suffix, default priority 0.
type RelationSyntax struct {
	Separator       string
	DefaultPriority int
}

func (s RelationSyntax) separator() string {
	if s.Separator == "" {
		return ";"
	}
	return s.Separator
}

// ParseRelationLinks parses a raw relation field value into links.
//
// Each separator-delimited token is trimmed; empty tokens are skipped.
// A token "id@N" with integer N >= 0 yields (id, N). The split is on the
// LAST "@", so ids may themselves contain "@". A non-integer suffix means
// the whole token is the id at the default priority; a negative integer
// suffix keeps the id but clamps to the default priority. Relation ids
// are Unicode-normalized to NFC before grouping so that visually equal
// ids authored in different compositions land in the same family.
//
// Duplicate (id, priority) pairs collapse to one link; original order is
// otherwise preserved.
func ParseRelationLinks(raw string, syntax RelationSyntax) []RelationLink {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var (
		links []RelationLink
		seen  = make(map[RelationLink]bool)
	)
	for _, tok := range strings.Split(raw, syntax.separator()) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		id, prio := tok, syntax.DefaultPriority
		if at := strings.LastIndex(tok, "@"); at >= 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(tok[at+1:])); err == nil {
				id = strings.TrimSpace(tok[:at])
				if id == "" {
					continue
				}
				prio = n
				if prio < 0 {
					prio = syntax.DefaultPriority
				}
			}
		}

		link := RelationLink{RelationID: norm.NFC.String(id), Priority: prio}
		if seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links
}

// NormalizeRelationID applies the same NFC normalization ParseRelationLinks
// uses, for callers that accept relation ids from other sources (CLI
// arguments, lookup queries) and need them to group identically.
func NormalizeRelationID(id string) string {
	return norm.NFC.String(id)
}
