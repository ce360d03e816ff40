package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yamadera/torii/internal/srs"
)

// Scenario defines one end-to-end gating case: a configuration, a
// collection fixture, a single pass, and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the inline CUE gating configuration the pass runs under.
	// Both the top-level form and the "gating: {...}" nested form parse.
	Config string `yaml:"config"`

	// Collection seeds a fresh in-memory store before the pass.
	Collection CollectionFixture `yaml:"collection"`

	// Trigger selects what starts the pass: "manual" (default) or "sync".
	Trigger string `yaml:"trigger,omitempty"`

	// DryRun computes the plan without applying it.
	DryRun bool `yaml:"dry_run,omitempty"`

	// PassToken is an optional fixed pass token for deterministic golden
	// comparison. If empty, defaults to DefaultPassToken.
	PassToken string `yaml:"pass_token,omitempty"`

	// Expect is the assertion set evaluated against the pass report and
	// the store's post-pass state.
	Expect ExpectClause `yaml:"expect,omitempty"`

	// Golden names a golden fixture the rendered report is compared
	// against (testdata/golden/<name>.golden). Empty means no golden
	// comparison.
	Golden string `yaml:"golden,omitempty"`
}

// DefaultPassToken is the pass token scenarios run under when they pin
// none themselves.
const DefaultPassToken = "pass-test-0001"

func (s *Scenario) passToken() string {
	if s.PassToken == "" {
		return DefaultPassToken
	}
	return s.PassToken
}

// GoldenName returns the golden fixture name, falling back to the
// scenario name.
func (s *Scenario) GoldenName() string {
	if s.Golden != "" {
		return s.Golden
	}
	return s.Name
}

// CollectionFixture describes the notetypes, notes and cards under test.
type CollectionFixture struct {
	NoteTypes []NoteTypeFixture `yaml:"notetypes"`
	Notes     []NoteFixture     `yaml:"notes"`
	Cards     []CardFixture     `yaml:"cards"`
}

// NoteTypeFixture declares one notetype. Templates are positional:
// templates[i] names the cards at ordinal i.
type NoteTypeFixture struct {
	Name      string   `yaml:"name"`
	Fields    []string `yaml:"fields"`
	Templates []string `yaml:"templates"`
}

// NoteFixture is one note row. Fields the notetype declares but the
// fixture omits store as empty.
type NoteFixture struct {
	ID     int64             `yaml:"id"`
	Type   string            `yaml:"type"`
	Fields map[string]string `yaml:"fields,omitempty"`
	Tags   []string          `yaml:"tags,omitempty"`
}

// CardFixture is one card row. Queue is the starting state, "active"
// (default) or "suspended". An absent stability means the card was
// never rated.
type CardFixture struct {
	ID        int64    `yaml:"id"`
	Note      int64    `yaml:"note"`
	Ord       int      `yaml:"ord"`
	Queue     string   `yaml:"queue,omitempty"`
	Stability *float64 `yaml:"stability,omitempty"`
}

// ExpectClause pins down the pass outcome. Matching semantics per field:
//
//   - suspended / unsuspended together are the exact plan: every listed
//     card must appear with that direction, and a planned change outside
//     the lists fails the scenario.
//   - marks is a subset match per note: each listed tag must be among
//     the note's emitted unlock marks.
//   - diagnostics lists codes that must each appear at least once.
//   - scope_errors is the exact multiset of gate error codes.
//   - skipped must equal the report's skipped flag.
//   - final_queues compares the store's post-pass queue state per card.
type ExpectClause struct {
	Suspended   []int64            `yaml:"suspended,omitempty"`
	Unsuspended []int64            `yaml:"unsuspended,omitempty"`
	Marks       map[int64][]string `yaml:"marks,omitempty"`
	Diagnostics []string           `yaml:"diagnostics,omitempty"`
	ScopeErrors []string           `yaml:"scope_errors,omitempty"`
	Skipped     bool               `yaml:"skipped,omitempty"`
	FinalQueues map[int64]string   `yaml:"final_queues,omitempty"`
}

func (e ExpectClause) empty() bool {
	return len(e.Suspended) == 0 && len(e.Unsuspended) == 0 &&
		len(e.Marks) == 0 && len(e.Diagnostics) == 0 &&
		len(e.ScopeErrors) == 0 && !e.Skipped && len(e.FinalQueues) == 0
}

// LoadScenario reads and parses a scenario YAML file. Returns an error
// if the file doesn't exist, is malformed, contains unknown fields
// (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "expects:" vs "expect:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks required fields and the fixture's internal
// references before anything touches a store.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Config == "" {
		return fmt.Errorf("config is required")
	}

	switch s.Trigger {
	case "", "manual", "sync":
	default:
		return fmt.Errorf("trigger must be \"manual\" or \"sync\", got %q", s.Trigger)
	}

	if err := validateFixture(&s.Collection); err != nil {
		return err
	}

	if s.Expect.empty() && s.Golden == "" {
		return fmt.Errorf("expect or golden is required (a scenario must assert something)")
	}
	for card, state := range s.Expect.FinalQueues {
		if _, err := parseQueueState(state); err != nil {
			return fmt.Errorf("expect.final_queues[%d]: %w", card, err)
		}
	}

	return nil
}

// validateFixture cross-checks the fixture: notes must reference
// declared notetypes and cards must reference declared notes, so a typo
// fails the load instead of silently seeding a half-empty collection.
func validateFixture(fix *CollectionFixture) error {
	types := make(map[string]bool, len(fix.NoteTypes))
	for i, nt := range fix.NoteTypes {
		if nt.Name == "" {
			return fmt.Errorf("collection.notetypes[%d]: name is required", i)
		}
		if types[nt.Name] {
			return fmt.Errorf("collection.notetypes[%d]: duplicate notetype %q", i, nt.Name)
		}
		if len(nt.Templates) == 0 {
			return fmt.Errorf("collection.notetypes[%d]: templates list is required", i)
		}
		types[nt.Name] = true
	}

	notes := make(map[int64]bool, len(fix.Notes))
	for i, n := range fix.Notes {
		if n.ID == 0 {
			return fmt.Errorf("collection.notes[%d]: id is required", i)
		}
		if notes[n.ID] {
			return fmt.Errorf("collection.notes[%d]: duplicate note id %d", i, n.ID)
		}
		if !types[n.Type] {
			return fmt.Errorf("collection.notes[%d]: unknown notetype %q", i, n.Type)
		}
		notes[n.ID] = true
	}

	cards := make(map[int64]bool, len(fix.Cards))
	for i, c := range fix.Cards {
		if c.ID == 0 {
			return fmt.Errorf("collection.cards[%d]: id is required", i)
		}
		if cards[c.ID] {
			return fmt.Errorf("collection.cards[%d]: duplicate card id %d", i, c.ID)
		}
		if !notes[c.Note] {
			return fmt.Errorf("collection.cards[%d]: unknown note %d", i, c.Note)
		}
		if _, err := parseQueueState(c.Queue); err != nil {
			return fmt.Errorf("collection.cards[%d]: %w", i, err)
		}
		cards[c.ID] = true
	}

	return nil
}

// parseQueueState maps the fixture spelling to the store convention.
func parseQueueState(s string) (srs.QueueState, error) {
	switch s {
	case "", "active":
		return srs.QueueActive, nil
	case "suspended":
		return srs.QueueSuspended, nil
	}
	return 0, fmt.Errorf("queue must be \"active\" or \"suspended\", got %q", s)
}
