package srs

// Note is a snapshot row for one note: identifier, note-type name, field
// values keyed by field name, and the note's current tags.
//
// Notes are read once per pass and never mutated; sticky marks are written
// back through the store as tag changes, not by editing these rows.
type Note struct {
	ID       NoteID            `json:"id"`
	NoteType string            `json:"note_type"`
	Fields   map[string]string `json:"fields"`
	Tags     []string          `json:"tags,omitempty"`
}

// Field returns the named field value, or "" when the note-type has no
// such field. Gating treats a missing field like an empty one.
func (n Note) Field(name string) string {
	return n.Fields[name]
}

// HasTag reports whether the note carries the exact tag.
func (n Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Card is a snapshot row for one card: identifier, owning note, template
// position and name, and the queue state observed at snapshot time.
type Card struct {
	ID       CardID     `json:"id"`
	Note     NoteID     `json:"note"`
	Ord      int        `json:"ord"`
	Template string     `json:"template"`
	Queue    QueueState `json:"queue"`
}
