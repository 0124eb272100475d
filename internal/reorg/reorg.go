// Package reorg implements common-ancestor walkback between the node's
// best header lineage and the locally stored chain, producing a Reorg
// event the SyncController turns into a Store rewind.
package reorg

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
	"github.com/Klingon-tech/ergo-indexer/internal/model"
	"github.com/Klingon-tech/ergo-indexer/internal/nodeclient"
)

// DefaultMaxDepth is the default max_reorg_depth (spec.md §4.4/§6).
const DefaultMaxDepth = 720

// NodeHeaders is the subset of NodeClient the Detector needs to walk the
// node's header lineage backwards.
type NodeHeaders interface {
	Header(ctx context.Context, id string) (nodeclient.Header, error)
}

// StoredHeaders is the subset of Store the Detector needs to walk the
// locally persisted lineage backwards.
type StoredHeaders interface {
	GetHeader(ctx context.Context, blockID string) (model.Block, error)
}

// Event describes a detected reorg: the rewind target and the node's
// reported new tip.
type Event struct {
	FromHeight uint64
	NewTip     string
}

// Detector compares the stored tip against the node's best header.
type Detector struct {
	node     NodeHeaders
	store    StoredHeaders
	maxDepth uint64
	log      zerolog.Logger
}

// New creates a Detector. maxDepth <= 0 uses DefaultMaxDepth.
func New(node NodeHeaders, store StoredHeaders, maxDepth uint64, log zerolog.Logger) *Detector {
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Detector{
		node:     node,
		store:    store,
		maxDepth: maxDepth,
		log:      log.With().Str("component", "reorg").Logger(),
	}
}

// Check compares the stored tip to the node's best header. It returns nil
// if the node's lineage still descends directly from the stored tip; it
// returns a Reorg Event describing the common ancestor otherwise.
func (d *Detector) Check(ctx context.Context, storedTip model.Block, nodeBest nodeclient.Header) (*Event, error) {
	if nodeBest.ParentID == storedTip.ID {
		return nil, nil
	}

	nodeCursor := nodeBest
	storedCursor := storedTip
	var depth uint64

	for nodeCursor.Height > storedCursor.Height {
		if depth >= d.maxDepth {
			return nil, fmt.Errorf("walkback exceeds max depth %d descending node lineage: %w", d.maxDepth, ierr.ErrReorgTooDeep)
		}
		h, err := d.node.Header(ctx, nodeCursor.ParentID)
		if err != nil {
			return nil, fmt.Errorf("fetch node ancestor %s: %w", nodeCursor.ParentID, err)
		}
		nodeCursor = h
		depth++
	}

	for storedCursor.Height > nodeCursor.Height {
		if depth >= d.maxDepth {
			return nil, fmt.Errorf("walkback exceeds max depth %d descending stored lineage: %w", d.maxDepth, ierr.ErrReorgTooDeep)
		}
		if storedCursor.ParentID == "" {
			return nil, fmt.Errorf("stored lineage exhausted before reaching node height %d: %w", nodeCursor.Height, ierr.ErrReorgTooDeep)
		}
		b, err := d.store.GetHeader(ctx, storedCursor.ParentID)
		if err != nil {
			return nil, fmt.Errorf("fetch stored ancestor %s: %w", storedCursor.ParentID, err)
		}
		storedCursor = b
		depth++
	}

	for nodeCursor.ID != storedCursor.ID {
		if depth >= d.maxDepth {
			return nil, fmt.Errorf("walkback exceeds max depth %d: %w", d.maxDepth, ierr.ErrReorgTooDeep)
		}
		if nodeCursor.Height == 0 || storedCursor.Height == 0 {
			return nil, fmt.Errorf("walkback exhausted stored history without a common ancestor: %w", ierr.ErrReorgTooDeep)
		}

		nh, err := d.node.Header(ctx, nodeCursor.ParentID)
		if err != nil {
			return nil, fmt.Errorf("fetch node ancestor %s: %w", nodeCursor.ParentID, err)
		}
		if storedCursor.ParentID == "" {
			return nil, fmt.Errorf("stored lineage exhausted without a common ancestor: %w", ierr.ErrReorgTooDeep)
		}
		sb, err := d.store.GetHeader(ctx, storedCursor.ParentID)
		if err != nil {
			return nil, fmt.Errorf("fetch stored ancestor %s: %w", storedCursor.ParentID, err)
		}

		nodeCursor = nh
		storedCursor = sb
		depth++
	}

	d.log.Warn().
		Uint64("common_ancestor_height", nodeCursor.Height).
		Str("new_tip", nodeBest.ID).
		Msg("reorg detected")

	return &Event{FromHeight: nodeCursor.Height + 1, NewTip: nodeBest.ID}, nil
}
