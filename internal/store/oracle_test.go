package store

import (
	"context"
	"testing"
)

func TestMemoryOracle_ReadsRatedCards(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)

	oracle, err := s.MemoryOracle(context.Background())
	if err != nil {
		t.Fatalf("MemoryOracle() failed: %v", err)
	}

	days, rated := oracle.StabilityOf(101)
	if !rated || days != 21.5 {
		t.Errorf("StabilityOf(101) = (%v, %v), want (21.5, true)", days, rated)
	}
	if _, rated := oracle.StabilityOf(201); rated {
		t.Error("StabilityOf(201) rated, want unrated (stability is NULL)")
	}
	if _, rated := oracle.StabilityOf(9999); rated {
		t.Error("StabilityOf(9999) rated, want unknown card unrated")
	}
}

func TestMemoryOracle_FrozenAtLoad(t *testing.T) {
	s := createTestStore(t)
	seedCollection(t, s)
	ctx := context.Background()

	oracle, err := s.MemoryOracle(ctx)
	if err != nil {
		t.Fatalf("MemoryOracle() failed: %v", err)
	}

	if err := s.SetStability(ctx, 201, 9.0); err != nil {
		t.Fatalf("SetStability() failed: %v", err)
	}

	// The oracle keeps the readings from load time.
	if _, rated := oracle.StabilityOf(201); rated {
		t.Error("StabilityOf(201) sees a write made after load")
	}

	reloaded, err := s.MemoryOracle(ctx)
	if err != nil {
		t.Fatalf("second MemoryOracle() failed: %v", err)
	}
	if days, rated := reloaded.StabilityOf(201); !rated || days != 9.0 {
		t.Errorf("reloaded StabilityOf(201) = (%v, %v), want (9, true)", days, rated)
	}
}
