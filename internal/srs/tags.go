package srs

import "fmt"

// Sticky unlock marks are persisted as note tags in the host collection.
// The engine reads them from the snapshot and emits new marks through the
// store's tag writer; it never edits tags in place.
const (
	// StickyVocab marks a vocabulary note whose kanji-form cards have
	// been unlocked by the component gate.
	StickyVocab = "torii::kanji_gate::unlocked::vocab"
	// StickyKanji marks a kanji note unlocked as parent or sub-component.
	StickyKanji = "torii::kanji_gate::unlocked::kanji"
	// StickyRadical marks a radical note synced into the unlocked set.
	StickyRadical = "torii::kanji_gate::unlocked::radical"
	// StickyExample marks an example note whose targets were once ready.
	StickyExample = "torii::example_gate::unlocked"
)

// StageUnlockTag is the sticky mark for stage idx of a note having been
// unlocked with its family gate satisfied.
func StageUnlockTag(idx int) string {
	return fmt.Sprintf("torii::family_gate::unlocked::stage%d", idx)
}
