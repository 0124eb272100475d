// Package syncctl is the SyncController: the single top-level loop that
// probes the node for new height, runs the reorg check, drives the
// WorkPool/Projector pipeline across the resulting height range, and
// throttles or halts on sustained failure. Exactly one Controller runs
// per process; it is the only component that issues writes to the
// ingestion pipeline (the Projector itself remains the only writer to
// Store).
package syncctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
	"github.com/Klingon-tech/ergo-indexer/internal/metrics"
	"github.com/Klingon-tech/ergo-indexer/internal/model"
	"github.com/Klingon-tech/ergo-indexer/internal/nodeclient"
	"github.com/Klingon-tech/ergo-indexer/internal/reorg"
)

// NodeClient is the subset of the nodeclient.Client the Controller probes
// directly (the WorkPool does its own fetching through a separate Fetcher).
type NodeClient interface {
	Info(ctx context.Context) (nodeclient.NodeInfo, error)
	HeaderAt(ctx context.Context, height uint64) (nodeclient.Header, error)
}

// Store is the subset of the relational store the Controller reads and
// mutates directly, outside of the Projector's per-block transactions.
type Store interface {
	GetSyncStatus(ctx context.Context) (model.SyncStatus, error)
	GetBlockIDAtHeight(ctx context.Context, height uint64) (string, error)
	GetHeader(ctx context.Context, blockID string) (model.Block, error)
	GetReorgCheckpoint(ctx context.Context) (fromHeight uint64, newTip string, ok bool, err error)
	PutReorgCheckpoint(ctx context.Context, fromHeight uint64, newTip string) error
	DeleteReorgCheckpoint(ctx context.Context) error
	InsertPoisonBlock(ctx context.Context, height uint64, blockID, reason string, occurredAt int64) error
}

// RewindTx is the single transaction a rewind runs in.
type RewindTx interface {
	RewindToHeight(ctx context.Context, h uint64, updatedAt int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

// Rewinder starts a RewindTx. WrapStore adapts a *store.Store to this.
type Rewinder interface {
	Begin(ctx context.Context) (RewindTx, error)
}

// Reorg is the subset of reorg.Detector the Controller calls.
type Reorg interface {
	Check(ctx context.Context, storedTip model.Block, nodeBest nodeclient.Header) (*reorg.Event, error)
}

// Projector is the subset of projector.Projector the Controller calls.
type Projector interface {
	CommitBlock(ctx context.Context, pb model.ParsedBlock, now time.Time) error
}

// WorkPool is the subset of workpool.Pool the Controller drives.
type WorkPool interface {
	Run(ctx context.Context, lo, hi uint64, commit func(model.ParsedBlock) error) error
}

// PoolFactory builds a WorkPool bounded to the given worker count. The
// Controller calls it fresh after every throttle-down so the new Pool
// picks up the reduced concurrency.
type PoolFactory func(workers int) WorkPool

// Config controls polling cadence and retry/throttle budgets.
type Config struct {
	PollInterval    time.Duration
	InitialHeight   uint64
	MaxWorkers      int
	MaxBlockRetries int
	RetryBackoff    time.Duration
}

// DefaultConfig mirrors spec.md §6's poll_interval_ms/max_workers/
// max_block_retries defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		MaxWorkers:      5,
		MaxBlockRetries: 5,
		RetryBackoff:    500 * time.Millisecond,
	}
}

// Status is a point-in-time snapshot for external observability.
type Status struct {
	State         string
	CurrentHeight uint64
	TargetHeight  uint64
	Halted        bool
	LastError     string
}

// Controller is the SyncController. One Controller runs Idle→Probing→
// Reorg-check→Rewinding→Ingesting per spec.md §4.8's state table.
type Controller struct {
	node      NodeClient
	store     Store
	rewinder  Rewinder
	reorg     Reorg
	projector Projector
	newPool   PoolFactory
	cfg       Config
	log       zerolog.Logger

	mu     sync.Mutex
	status Status
}

// New creates a Controller. cfg zero-values fall back to DefaultConfig.
func New(node NodeClient, st Store, rewinder Rewinder, rd Reorg, pr Projector, newPool PoolFactory, cfg Config, log zerolog.Logger) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.MaxBlockRetries <= 0 {
		cfg.MaxBlockRetries = def.MaxBlockRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &Controller{
		node:      node,
		store:     st,
		rewinder:  rewinder,
		reorg:     rd,
		projector: pr,
		newPool:   newPool,
		cfg:       cfg,
		log:       log.With().Str("component", "sync").Logger(),
		status:    Status{State: "Idle"},
	}
}

// Status returns a snapshot of the Controller's current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatus(f func(*Status)) {
	c.mu.Lock()
	f(&c.status)
	c.mu.Unlock()
}

// Run drives the Controller loop until ctx is cancelled or a fatal error
// halts ingestion. On cancellation it stops issuing new batches and returns
// nil once the current tick has returned. Blocks are committed one at a
// time, each in its own transaction, so a batch interrupted by cancellation
// keeps the blocks committed before it and none after it.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.recoverCheckpoint(ctx); err != nil {
		return fmt.Errorf("recover reorg checkpoint: %w", err)
	}

	if err := c.tick(ctx); err != nil {
		if errors.Is(err, ierr.ErrPoisonBlock) {
			c.halt(err)
			return err
		}
		c.log.Warn().Err(err).Msg("probe/ingest cycle failed, will retry next tick")
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("shutdown signal received, stopping after in-flight commits drain")
			return nil
		case <-ticker.C:
			if c.Status().Halted {
				continue
			}
			if err := c.tick(ctx); err != nil {
				if errors.Is(err, ierr.ErrPoisonBlock) {
					c.halt(err)
					return err
				}
				c.log.Warn().Err(err).Msg("probe/ingest cycle failed, will retry next tick")
			}
		}
	}
}

// recoverCheckpoint resumes a rewind that was interrupted by a crash: the
// checkpoint row is only cleared after RewindToHeight commits, so finding
// one on startup means the previous rewind may not have finished.
func (c *Controller) recoverCheckpoint(ctx context.Context) error {
	from, newTip, ok, err := c.store.GetReorgCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("check reorg checkpoint: %w", err)
	}
	if !ok {
		return nil
	}
	c.log.Warn().
		Uint64("from_height", from).
		Str("new_tip", newTip).
		Msg("resuming rewind interrupted by crash")
	return c.rewind(ctx, &reorg.Event{FromHeight: from, NewTip: newTip})
}

// tick implements Idle→Probing→Reorg-check/Ingesting for one pass.
func (c *Controller) tick(ctx context.Context) error {
	c.setStatus(func(s *Status) { s.State = "Probing" })

	info, err := c.node.Info(ctx)
	if err != nil {
		return fmt.Errorf("probe node: %w", err)
	}

	st, err := c.store.GetSyncStatus(ctx)
	if err != nil {
		return fmt.Errorf("get sync status: %w", err)
	}
	c.setStatus(func(s *Status) { s.CurrentHeight = st.CurrentHeight; s.TargetHeight = info.FullHeight })

	if info.FullHeight <= st.CurrentHeight {
		c.setStatus(func(s *Status) { s.State = "Idle" })
		return nil
	}

	if st.CurrentHeight > 0 {
		c.setStatus(func(s *Status) { s.State = "Reorg-check" })
		tipID, err := c.store.GetBlockIDAtHeight(ctx, st.CurrentHeight)
		if err != nil {
			return fmt.Errorf("load stored tip id at %d: %w", st.CurrentHeight, err)
		}
		tip, err := c.store.GetHeader(ctx, tipID)
		if err != nil {
			return fmt.Errorf("load stored tip header %s: %w", tipID, err)
		}
		nodeBest, err := c.node.HeaderAt(ctx, info.FullHeight)
		if err != nil {
			return fmt.Errorf("fetch node best header: %w", err)
		}

		ev, err := c.reorg.Check(ctx, tip, nodeBest)
		if err != nil {
			return fmt.Errorf("reorg check: %w", err)
		}
		if ev != nil {
			metrics.ChainReorgEventsTotal.Inc()
			c.setStatus(func(s *Status) { s.State = "Rewinding" })
			if err := c.rewind(ctx, ev); err != nil {
				return fmt.Errorf("rewind: %w", err)
			}
			st.CurrentHeight = ev.FromHeight - 1
		}
	}

	lo := st.CurrentHeight + 1
	if st.CurrentHeight == 0 && c.cfg.InitialHeight > 0 {
		lo = c.cfg.InitialHeight
	}
	hi := info.FullHeight
	if lo > hi {
		c.setStatus(func(s *Status) { s.State = "Idle" })
		return nil
	}

	c.setStatus(func(s *Status) { s.State = "Ingesting" })
	if err := c.ingest(ctx, lo, hi); err != nil {
		return err
	}
	c.setStatus(func(s *Status) { s.State = "Idle" })
	return nil
}

// rewind persists a checkpoint before the destructive step so a crash
// mid-rewind is detectable, runs RewindToHeight in its own transaction,
// and clears the checkpoint once it commits.
func (c *Controller) rewind(ctx context.Context, ev *reorg.Event) error {
	if err := c.store.PutReorgCheckpoint(ctx, ev.FromHeight, ev.NewTip); err != nil {
		return fmt.Errorf("put reorg checkpoint: %w", err)
	}

	tx, err := c.rewinder.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rewind tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.RewindToHeight(ctx, ev.FromHeight-1, time.Now().Unix()); err != nil {
		return fmt.Errorf("rewind to height %d: %w", ev.FromHeight-1, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rewind: %w", err)
	}

	if err := c.store.DeleteReorgCheckpoint(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear reorg checkpoint after successful rewind")
	}
	return nil
}

// ingest runs the WorkPool across [lo, hi], retrying with halved
// concurrency on a transient batch failure and resuming from the last
// committed height. A poison block or context cancellation stops the
// retry loop immediately.
func (c *Controller) ingest(ctx context.Context, lo, hi uint64) error {
	workers := c.cfg.MaxWorkers

	for lo <= hi {
		pool := c.newPool(workers)
		err := pool.Run(ctx, lo, hi, func(pb model.ParsedBlock) error {
			return c.commitWithRetry(ctx, pb)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ierr.ErrPoisonBlock) {
			return err
		}

		metrics.WorkpoolBatchRetriesTotal.Inc()
		if workers > 1 {
			workers /= 2
		}

		st, serr := c.store.GetSyncStatus(ctx)
		if serr != nil {
			return fmt.Errorf("resume after batch failure: %w", serr)
		}
		resumeFrom := st.CurrentHeight + 1
		c.log.Warn().
			Err(err).
			Int("workers", workers).
			Uint64("resume_from", resumeFrom).
			Msg("ingest batch failed, retrying with reduced concurrency")
		lo = resumeFrom
	}
	return nil
}

// commitWithRetry retries a single block's Projector commit up to
// max_block_retries times with exponential backoff before poisoning it.
func (c *Controller) commitWithRetry(ctx context.Context, pb model.ParsedBlock) error {
	backoff := c.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxBlockRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.projector.CommitBlock(ctx, pb, time.Now()); err != nil {
			lastErr = err
			c.log.Warn().
				Err(err).
				Uint64("height", pb.Block.Height).
				Int("attempt", attempt+1).
				Msg("block commit failed")
			continue
		}

		metrics.IndexedBlocks.Inc()
		metrics.SyncCurrentHeight.Set(float64(pb.Block.Height))
		c.setStatus(func(s *Status) { s.CurrentHeight = pb.Block.Height })
		return nil
	}

	if err := c.store.InsertPoisonBlock(ctx, pb.Block.Height, pb.Block.ID, lastErr.Error(), time.Now().Unix()); err != nil {
		c.log.Error().Err(err).Msg("failed to record poison block")
	}
	return fmt.Errorf("block %d (%s) poisoned after %d attempts: %w: %v",
		pb.Block.Height, pb.Block.ID, c.cfg.MaxBlockRetries+1, ierr.ErrPoisonBlock, lastErr)
}

func (c *Controller) halt(err error) {
	c.setStatus(func(s *Status) {
		s.State = "Halted"
		s.Halted = true
		s.LastError = err.Error()
	})
	c.log.Error().Err(err).Msg("sync controller halted")
}
