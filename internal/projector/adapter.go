package projector

import (
	"context"

	"github.com/Klingon-tech/ergo-indexer/internal/store"
)

// storeBeginner adapts *store.Store to Beginner so the Projector can run
// against a live Postgres-backed Store while remaining unit-testable
// against a fake Beginner/Tx pair.
type storeBeginner struct {
	s *store.Store
}

// WrapStore adapts s for use as a Projector's Beginner.
func WrapStore(s *store.Store) Beginner {
	return storeBeginner{s: s}
}

func (w storeBeginner) Begin(ctx context.Context) (Tx, error) {
	return w.s.Begin(ctx)
}
