package projector

import "github.com/Klingon-tech/ergo-indexer/internal/model"

type deltaKey struct {
	tokenID string
	address string
}

// deltaSet accumulates signed per-(token_id, address) balance adjustments
// so that several outputs and inputs touching the same pair within one
// block collapse into a single delta row before Store.ApplyBalanceDeltas.
type deltaSet struct {
	byKey map[deltaKey]int64
	order []deltaKey
}

func newDeltaSet() *deltaSet {
	return &deltaSet{byKey: make(map[deltaKey]int64)}
}

func (d *deltaSet) add(tokenID, address string, amount int64) {
	k := deltaKey{tokenID: tokenID, address: address}
	if _, ok := d.byKey[k]; !ok {
		d.order = append(d.order, k)
	}
	d.byKey[k] += amount
}

func (d *deltaSet) len() int { return len(d.order) }

// list returns the accumulated deltas in first-touched order, dropping any
// pair that nets to zero within the block.
func (d *deltaSet) list() []model.BalanceDelta {
	out := make([]model.BalanceDelta, 0, len(d.order))
	for _, k := range d.order {
		if v := d.byKey[k]; v != 0 {
			out = append(out, model.BalanceDelta{TokenID: k.tokenID, Address: k.address, Delta: v})
		}
	}
	return out
}
