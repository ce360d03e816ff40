package engine

import "github.com/yamadera/torii/internal/srs"

// Evaluate is the readiness primitive every resolver shares: it combines
// the cards' snapshot stabilities under policy and compares the result
// against threshold (inclusive).
//
// Rules:
//   - An empty card set is not ready, observed "missing".
//   - An unrated card contributes 0 to min and avg. For max it is
//     excluded as long as at least one rated card exists.
//   - If every card is unrated the result is not ready, observed "unrated".
//
// Evaluate is a pure function of the snapshot: identical snapshots give
// identical results, and nothing is cached across passes.
func (s *Snapshot) Evaluate(cards []srs.CardID, threshold float64, policy srs.AggregationPolicy) srs.ReadinessResult {
	if len(cards) == 0 {
		return srs.ReadinessResult{
			Observed:  srs.Observation{Kind: srs.ObservedMissing},
			Threshold: threshold,
		}
	}

	var (
		rated   []float64
		unrated int
	)
	for _, id := range cards {
		if days, ok := s.Stability(id); ok {
			rated = append(rated, days)
		} else {
			unrated++
		}
	}

	if len(rated) == 0 {
		return srs.ReadinessResult{
			Observed:  srs.Observation{Kind: srs.ObservedUnrated},
			Threshold: threshold,
		}
	}

	var combined float64
	switch policy {
	case srs.AggregateMax:
		combined = rated[0]
		for _, v := range rated[1:] {
			if v > combined {
				combined = v
			}
		}
	case srs.AggregateAvg:
		var sum float64
		for _, v := range rated {
			sum += v
		}
		// Unrated cards count as zeros in the denominator.
		combined = sum / float64(len(rated)+unrated)
	default: // min
		combined = rated[0]
		for _, v := range rated[1:] {
			if v < combined {
				combined = v
			}
		}
		if unrated > 0 && combined > 0 {
			combined = 0
		}
	}

	return srs.ReadinessResult{
		Ready:     combined >= threshold,
		Observed:  srs.Observation{Kind: srs.ObservedRated, Days: combined},
		Threshold: threshold,
	}
}
