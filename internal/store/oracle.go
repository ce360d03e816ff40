package store

import (
	"context"
	"fmt"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

var _ engine.StabilityOracle = (*MemoryOracle)(nil)

// MemoryOracle answers stability lookups from a one-shot read of the
// cards table. Readings are frozen at load time; load it right before a
// pass so the engine's snapshot and the oracle agree.
type MemoryOracle struct {
	days map[srs.CardID]float64
}

// MemoryOracle loads the stability of every rated card.
func (s *Store) MemoryOracle(ctx context.Context) (*MemoryOracle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stability
		FROM cards
		WHERE stability IS NOT NULL
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stabilities: %w", err)
	}
	defer rows.Close()

	days := make(map[srs.CardID]float64)
	for rows.Next() {
		var (
			id    int64
			value float64
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scan stability: %w", err)
		}
		days[srs.CardID(id)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stabilities: %w", err)
	}

	return &MemoryOracle{days: days}, nil
}

// StabilityOf returns the recorded stability in days and whether the
// card has ever been rated.
func (o *MemoryOracle) StabilityOf(id srs.CardID) (float64, bool) {
	value, ok := o.days[id]
	return value, ok
}
