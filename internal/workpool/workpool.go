// Package workpool fans out bounded-concurrency block fetch+parse tasks
// over a height range and commits their results to a downstream sink in
// strictly ascending height order.
package workpool

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Klingon-tech/ergo-indexer/internal/model"
	"github.com/Klingon-tech/ergo-indexer/internal/nodeclient"
	"github.com/Klingon-tech/ergo-indexer/internal/parser"
)

// Fetcher is the subset of NodeClient a fetch task needs.
type Fetcher interface {
	HeaderAt(ctx context.Context, height uint64) (nodeclient.Header, error)
	Block(ctx context.Context, id string) (nodeclient.FullBlock, error)
}

// DefaultWorkers and DefaultBatchSize mirror spec.md §6's max_workers and
// batch_size defaults.
const (
	DefaultWorkers   = 5
	DefaultBatchSize = 20
)

// Pool runs bounded-concurrency fetch/parse tasks and hands parsed blocks
// to a commit callback strictly in ascending height order.
type Pool struct {
	fetch     Fetcher
	workers   int
	batchSize int
	log       zerolog.Logger
}

// New creates a Pool. workers/batchSize <= 0 fall back to the defaults.
func New(fetch Fetcher, workers, batchSize int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pool{
		fetch:     fetch,
		workers:   workers,
		batchSize: batchSize,
		log:       log.With().Str("component", "workpool").Logger(),
	}
}

// HeightError pairs a fatal task failure with the height it occurred at.
type HeightError struct {
	Height uint64
	Err    error
}

func (e *HeightError) Error() string {
	return fmt.Sprintf("height %d: %v", e.Height, e.Err)
}

func (e *HeightError) Unwrap() error { return e.Err }

// Run splits [lo, hi] into contiguous batches of up to batchSize heights,
// fetches+parses each height with up to workers goroutines, and invokes
// commit once per height in strictly ascending order. commit errors abort
// the run immediately; task errors within a batch cancel the batch's
// remaining in-flight siblings.
func (p *Pool) Run(ctx context.Context, lo, hi uint64, commit func(model.ParsedBlock) error) error {
	for batchLo := lo; batchLo <= hi; {
		batchHi := batchLo + uint64(p.batchSize) - 1
		if batchHi > hi {
			batchHi = hi
		}

		results, err := p.runBatch(ctx, batchLo, batchHi)
		if err != nil {
			return err
		}

		for _, pb := range results {
			if err := commit(pb); err != nil {
				return fmt.Errorf("commit height %d: %w", pb.Block.Height, err)
			}
		}

		p.log.Debug().Uint64("from", batchLo).Uint64("to", batchHi).Msg("batch committed")
		batchHi++
		batchLo = batchHi
	}
	return nil
}

// runBatch fetches+parses every height in [lo, hi] with up to p.workers
// concurrent tasks and returns results ordered ascending by height. Any
// task error cancels the remaining in-flight tasks via the errgroup's
// derived context.
func (p *Pool) runBatch(ctx context.Context, lo, hi uint64) ([]model.ParsedBlock, error) {
	n := int(hi-lo) + 1
	results := make([]model.ParsedBlock, n)

	sem := semaphore.NewWeighted(int64(p.workers))
	g, gctx := errgroup.WithContext(ctx)

	for h := lo; h <= hi; h++ {
		h := h
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			pb, err := p.fetchAndParse(gctx, h)
			if err != nil {
				return &HeightError{Height: h, Err: err}
			}
			results[h-lo] = pb
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pool) fetchAndParse(ctx context.Context, height uint64) (model.ParsedBlock, error) {
	hdr, err := p.fetch.HeaderAt(ctx, height)
	if err != nil {
		return model.ParsedBlock{}, fmt.Errorf("header_at: %w", err)
	}
	blk, err := p.fetch.Block(ctx, hdr.ID)
	if err != nil {
		return model.ParsedBlock{}, fmt.Errorf("block %s: %w", hdr.ID, err)
	}
	pb, err := parser.Parse(blk)
	if err != nil {
		return model.ParsedBlock{}, fmt.Errorf("parse block %s: %w", hdr.ID, err)
	}
	return pb, nil
}
