package harness

import (
	"context"
	"fmt"

	"github.com/yamadera/torii/internal/config"
	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
	"github.com/yamadera/torii/internal/store"
)

// configSource serves a scenario's inline CUE document as the engine's
// configuration source.
type configSource struct {
	src string
}

func (c configSource) GatingConfig(ctx context.Context) (*srs.Config, error) {
	return config.Parse(c.src)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, with
// a fixed pass token for reproducible output.
//
// Execution flow:
//  1. Create a fresh in-memory database and seed the fixture
//  2. Run one gating pass under the scenario's config and trigger
//  3. Read back the final queue state of every fixture card
//  4. Evaluate expectations against the report and the final state
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seedCollection(ctx, st, &scenario.Collection); err != nil {
		return nil, fmt.Errorf("failed to seed collection: %w", err)
	}

	// The oracle reads stabilities once at construction, so it must be
	// built after seeding.
	oracle, err := st.MemoryOracle(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stability oracle: %w", err)
	}

	eng := engine.New(st, oracle, configSource{scenario.Config},
		engine.WithTokenGenerator(engine.NewFixedGenerator(scenario.passToken())))

	report, err := eng.RunPass(ctx, engine.PassOptions{
		Trigger: engine.Trigger(scenario.Trigger),
		DryRun:  scenario.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("gating pass failed: %w", err)
	}

	result := NewResult()
	result.Report = report

	ids := make([]srs.CardID, 0, len(scenario.Collection.Cards))
	for _, c := range scenario.Collection.Cards {
		ids = append(ids, srs.CardID(c.ID))
	}
	queues, err := st.QueueStates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read final queue states: %w", err)
	}
	result.FinalQueues = queues

	// A scenario without an expect clause asserts through its golden
	// file alone.
	if !scenario.Expect.empty() {
		for _, msg := range EvaluateExpectations(report, queues, scenario.Expect) {
			result.AddError(msg)
		}
	}

	return result, nil
}

// seedCollection writes the fixture into the store. Notetype IDs are
// assigned positionally since scenarios identify notetypes by name.
func seedCollection(ctx context.Context, st *store.Store, fix *CollectionFixture) error {
	for i, nt := range fix.NoteTypes {
		err := st.AddNoteType(ctx, store.NoteType{
			ID:        int64(i + 1),
			Name:      nt.Name,
			Fields:    nt.Fields,
			Templates: nt.Templates,
		})
		if err != nil {
			return err
		}
	}

	for _, n := range fix.Notes {
		err := st.AddNote(ctx, srs.Note{
			ID:       srs.NoteID(n.ID),
			NoteType: n.Type,
			Fields:   n.Fields,
			Tags:     n.Tags,
		})
		if err != nil {
			return err
		}
	}

	for _, c := range fix.Cards {
		queue, err := parseQueueState(c.Queue)
		if err != nil {
			return err
		}
		err = st.AddCard(ctx, srs.Card{
			ID:    srs.CardID(c.ID),
			Note:  srs.NoteID(c.Note),
			Ord:   c.Ord,
			Queue: queue,
		})
		if err != nil {
			return err
		}
		if c.Stability != nil {
			if err := st.SetStability(ctx, srs.CardID(c.ID), *c.Stability); err != nil {
				return err
			}
		}
	}

	return nil
}
