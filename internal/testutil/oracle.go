package testutil

import (
	"sync"

	"github.com/yamadera/torii/internal/srs"
)

// StaticOracle is a fixed stability table. Cards never rated through it
// read as unrated, matching how a host review system treats new cards.
type StaticOracle struct {
	mu   sync.Mutex
	days map[srs.CardID]float64
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{days: make(map[srs.CardID]float64)}
}

// Rate sets a card's stability in days.
func (o *StaticOracle) Rate(id srs.CardID, days float64) *StaticOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.days[id] = days
	return o
}

// Forget removes a card's rating, returning it to unrated.
func (o *StaticOracle) Forget(id srs.CardID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.days, id)
}

func (o *StaticOracle) StabilityOf(id srs.CardID) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.days[id]
	return d, ok
}
