package syncctl

import (
	"context"

	"github.com/Klingon-tech/ergo-indexer/internal/store"
)

// storeRewinder adapts a *store.Store to Rewinder. *store.Tx already
// satisfies RewindTx; this just names the covariant return so production
// code can hand the real Store to a Controller built against interfaces.
type storeRewinder struct {
	s *store.Store
}

// WrapStore adapts s for use as both syncctl.Store (direct method match)
// and, via this call, syncctl.Rewinder.
func WrapStore(s *store.Store) Rewinder {
	return storeRewinder{s: s}
}

func (w storeRewinder) Begin(ctx context.Context) (RewindTx, error) {
	return w.s.Begin(ctx)
}
