package srs

import "strings"

// Kanji is a single CJK character used as a component-aggregation unit key.
type Kanji rune

func (k Kanji) String() string { return string(rune(k)) }

// IsKanji reports whether r falls in the CJK ranges the aggregator
// treats as gateable symbols: CJK radicals supplement, Kangxi radicals,
// unified ideographs extension A, unified ideographs, and compatibility
// ideographs.
func IsKanji(r rune) bool {
	switch {
	case r >= 0x2E80 && r <= 0x2EFF: // CJK radicals supplement
		return true
	case r >= 0x2F00 && r <= 0x2FDF: // Kangxi radicals
		return true
	case r >= 0x3400 && r <= 0x4DBF: // Extension A
		return true
	case r >= 0x4E00 && r <= 0x9FFF: // Unified ideographs
		return true
	case r >= 0xF900 && r <= 0xFAFF: // Compatibility ideographs
		return true
	}
	return false
}

// StripFurigana removes bracketed reading annotations ("漢[かん]字[じ]")
// from field text before kanji extraction, so reading kana never count
// as components. Unmatched "[" swallows to end of string, matching how
// the host renders such fields.
func StripFurigana(s string) string {
	if !strings.ContainsRune(s, '[') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractKanji returns the unique kanji in s, in first-appearance order,
// after stripping furigana annotations.
func ExtractKanji(s string) []Kanji {
	s = StripFurigana(s)
	var (
		out  []Kanji
		seen map[Kanji]bool
	)
	for _, r := range s {
		if !IsKanji(r) {
			continue
		}
		k := Kanji(r)
		if seen == nil {
			seen = make(map[Kanji]bool)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
