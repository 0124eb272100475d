package syncctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
	"github.com/Klingon-tech/ergo-indexer/internal/model"
	"github.com/Klingon-tech/ergo-indexer/internal/nodeclient"
	"github.com/Klingon-tech/ergo-indexer/internal/reorg"
)

type fakeNode struct {
	fullHeight uint64
	headers    map[uint64]nodeclient.Header
	infoErr    error
}

func (n *fakeNode) Info(context.Context) (nodeclient.NodeInfo, error) {
	if n.infoErr != nil {
		return nodeclient.NodeInfo{}, n.infoErr
	}
	return nodeclient.NodeInfo{FullHeight: n.fullHeight}, nil
}

func (n *fakeNode) HeaderAt(_ context.Context, height uint64) (nodeclient.Header, error) {
	h, ok := n.headers[height]
	if !ok {
		return nodeclient.Header{}, fmt.Errorf("no header at %d", height)
	}
	return h, nil
}

type fakeStore struct {
	mu          sync.Mutex
	status      model.SyncStatus
	blockIDs    map[uint64]string
	headers     map[string]model.Block
	checkpoint  *reorg.Event
	poisoned    []uint64
}

func (s *fakeStore) GetSyncStatus(context.Context) (model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *fakeStore) GetBlockIDAtHeight(_ context.Context, height uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.blockIDs[height]
	if !ok {
		return "", fmt.Errorf("no block at %d", height)
	}
	return id, nil
}

func (s *fakeStore) GetHeader(_ context.Context, blockID string) (model.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.headers[blockID]
	if !ok {
		return model.Block{}, fmt.Errorf("no header %s", blockID)
	}
	return b, nil
}

func (s *fakeStore) GetReorgCheckpoint(context.Context) (uint64, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil {
		return 0, "", false, nil
	}
	return s.checkpoint.FromHeight, s.checkpoint.NewTip, true, nil
}

func (s *fakeStore) PutReorgCheckpoint(_ context.Context, fromHeight uint64, newTip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = &reorg.Event{FromHeight: fromHeight, NewTip: newTip}
	return nil
}

func (s *fakeStore) DeleteReorgCheckpoint(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = nil
	return nil
}

func (s *fakeStore) InsertPoisonBlock(_ context.Context, height uint64, _, _ string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poisoned = append(s.poisoned, height)
	return nil
}

type fakeRewindTx struct {
	rewindTo []uint64
	failErr  error
}

func (t *fakeRewindTx) RewindToHeight(_ context.Context, h uint64, _ int64) error {
	if t.failErr != nil {
		return t.failErr
	}
	t.rewindTo = append(t.rewindTo, h)
	return nil
}
func (t *fakeRewindTx) Commit(context.Context) error { return nil }
func (t *fakeRewindTx) Rollback(context.Context)     {}

type fakeRewinder struct {
	tx *fakeRewindTx
}

func (r *fakeRewinder) Begin(context.Context) (RewindTx, error) {
	return r.tx, nil
}

type fakeReorg struct {
	event *reorg.Event
	err   error
}

func (r *fakeReorg) Check(context.Context, model.Block, nodeclient.Header) (*reorg.Event, error) {
	return r.event, r.err
}

type fakeProjector struct {
	mu         sync.Mutex
	committed  []uint64
	failHeight uint64
	failCount  int
}

func (p *fakeProjector) CommitBlock(_ context.Context, pb model.ParsedBlock, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failHeight != 0 && pb.Block.Height == p.failHeight && p.failCount > 0 {
		p.failCount--
		return fmt.Errorf("synthetic commit failure")
	}
	p.committed = append(p.committed, pb.Block.Height)
	return nil
}

type fakePool struct {
	workers int
	run     func(ctx context.Context, lo, hi uint64, commit func(model.ParsedBlock) error) error
}

func (p *fakePool) Run(ctx context.Context, lo, hi uint64, commit func(model.ParsedBlock) error) error {
	return p.run(ctx, lo, hi, commit)
}

func newControllerForTest(node *fakeNode, st *fakeStore, rw *fakeRewinder, rd *fakeReorg,
	pr *fakeProjector, poolRun func(ctx context.Context, lo, hi uint64, commit func(model.ParsedBlock) error) error,
	cfg Config) *Controller {

	factory := func(workers int) WorkPool {
		return &fakePool{workers: workers, run: poolRun}
	}
	return New(node, st, rw, rd, pr, factory, cfg, zerolog.Nop())
}

func runBlocksFromHeaders(lo, hi uint64, commit func(model.ParsedBlock) error) error {
	for h := lo; h <= hi; h++ {
		if err := commit(model.ParsedBlock{Block: model.Block{ID: fmt.Sprintf("b%d", h), Height: h}}); err != nil {
			return err
		}
	}
	return nil
}

func TestController_Tick_NoNewHeight_StaysIdle(t *testing.T) {
	node := &fakeNode{fullHeight: 10}
	st := &fakeStore{status: model.SyncStatus{CurrentHeight: 10}}
	pr := &fakeProjector{}

	c := newControllerForTest(node, st, &fakeRewinder{}, &fakeReorg{}, pr, runBlocksFromHeaders, Config{})

	if err := c.tick(t.Context()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(pr.committed) != 0 {
		t.Fatalf("expected no commits, got %v", pr.committed)
	}
	if got := c.Status().State; got != "Idle" {
		t.Fatalf("state = %q, want Idle", got)
	}
}

func TestController_Tick_Ingests_FreshDatabase(t *testing.T) {
	node := &fakeNode{fullHeight: 5}
	st := &fakeStore{status: model.SyncStatus{CurrentHeight: 0}}
	pr := &fakeProjector{}

	c := newControllerForTest(node, st, &fakeRewinder{}, &fakeReorg{}, pr, runBlocksFromHeaders, Config{})

	if err := c.tick(t.Context()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	want := []uint64{1, 2, 3, 4, 5}
	if len(pr.committed) != len(want) {
		t.Fatalf("committed = %v, want %v", pr.committed, want)
	}
	for i, h := range want {
		if pr.committed[i] != h {
			t.Fatalf("committed[%d] = %d, want %d", i, pr.committed[i], h)
		}
	}
}

func TestController_Tick_DetectsReorg_AndRewinds(t *testing.T) {
	node := &fakeNode{
		fullHeight: 12,
		headers:    map[uint64]nodeclient.Header{12: {ID: "node-tip", ParentID: "other", Height: 12}},
	}
	st := &fakeStore{
		status:   model.SyncStatus{CurrentHeight: 10},
		blockIDs: map[uint64]string{10: "stored-tip"},
		headers:  map[string]model.Block{"stored-tip": {ID: "stored-tip", Height: 10}},
	}
	rwTx := &fakeRewindTx{}
	rw := &fakeRewinder{tx: rwTx}
	rd := &fakeReorg{event: &reorg.Event{FromHeight: 8, NewTip: "node-tip"}}
	pr := &fakeProjector{}

	c := newControllerForTest(node, st, rw, rd, pr, runBlocksFromHeaders, Config{})

	if err := c.tick(t.Context()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rwTx.rewindTo) != 1 || rwTx.rewindTo[0] != 7 {
		t.Fatalf("rewindTo = %v, want [7]", rwTx.rewindTo)
	}
	if st.checkpoint != nil {
		t.Fatalf("checkpoint should be cleared after successful rewind, got %v", st.checkpoint)
	}
	// ingestion should resume from height 8 (FromHeight) through node height 12.
	want := []uint64{8, 9, 10, 11, 12}
	if len(pr.committed) != len(want) {
		t.Fatalf("committed = %v, want %v", pr.committed, want)
	}
}

func TestController_RecoverCheckpoint_ResumesInterruptedRewind(t *testing.T) {
	st := &fakeStore{checkpoint: &reorg.Event{FromHeight: 5, NewTip: "tip"}}
	rwTx := &fakeRewindTx{}
	rw := &fakeRewinder{tx: rwTx}

	c := newControllerForTest(&fakeNode{}, st, rw, &fakeReorg{}, &fakeProjector{}, runBlocksFromHeaders, Config{})

	if err := c.recoverCheckpoint(t.Context()); err != nil {
		t.Fatalf("recoverCheckpoint: %v", err)
	}
	if len(rwTx.rewindTo) != 1 || rwTx.rewindTo[0] != 4 {
		t.Fatalf("rewindTo = %v, want [4]", rwTx.rewindTo)
	}
	if st.checkpoint != nil {
		t.Fatalf("checkpoint should be cleared, got %v", st.checkpoint)
	}
}

func TestController_CommitWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	pr := &fakeProjector{failHeight: 3, failCount: 2}
	c := newControllerForTest(&fakeNode{}, &fakeStore{}, &fakeRewinder{}, &fakeReorg{}, pr, runBlocksFromHeaders,
		Config{MaxBlockRetries: 5, RetryBackoff: time.Millisecond})

	err := c.commitWithRetry(t.Context(), model.ParsedBlock{Block: model.Block{ID: "b3", Height: 3}})
	if err != nil {
		t.Fatalf("commitWithRetry: %v", err)
	}
	if len(pr.committed) != 1 || pr.committed[0] != 3 {
		t.Fatalf("committed = %v, want [3]", pr.committed)
	}
}

func TestController_CommitWithRetry_PoisonsAfterExhaustingRetries(t *testing.T) {
	pr := &fakeProjector{failHeight: 7, failCount: 100}
	st := &fakeStore{}
	c := newControllerForTest(&fakeNode{}, st, &fakeRewinder{}, &fakeReorg{}, pr, runBlocksFromHeaders,
		Config{MaxBlockRetries: 2, RetryBackoff: time.Millisecond})

	err := c.commitWithRetry(t.Context(), model.ParsedBlock{Block: model.Block{ID: "b7", Height: 7}})
	if err == nil || !errors.Is(err, ierr.ErrPoisonBlock) {
		t.Fatalf("expected poison error, got %v", err)
	}
	if len(st.poisoned) != 1 || st.poisoned[0] != 7 {
		t.Fatalf("poisoned = %v, want [7]", st.poisoned)
	}
}

func TestController_Ingest_ThrottlesAndResumesOnTransientBatchFailure(t *testing.T) {
	attempts := 0
	poolRun := func(ctx context.Context, lo, hi uint64, commit func(model.ParsedBlock) error) error {
		attempts++
		if attempts == 1 {
			// Simulate a transient batch failure after committing nothing.
			return fmt.Errorf("synthetic batch failure")
		}
		return runBlocksFromHeaders(lo, hi, commit)
	}

	st := &fakeStore{status: model.SyncStatus{CurrentHeight: 2}}
	pr := &fakeProjector{}
	c := newControllerForTest(&fakeNode{}, st, &fakeRewinder{}, &fakeReorg{}, pr, poolRun,
		Config{MaxWorkers: 4})

	if err := c.ingest(t.Context(), 3, 6); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	want := []uint64{3, 4, 5, 6}
	if len(pr.committed) != len(want) {
		t.Fatalf("committed = %v, want %v", pr.committed, want)
	}
}

func TestController_Run_StopsCleanlyOnCancellation(t *testing.T) {
	node := &fakeNode{fullHeight: 10}
	st := &fakeStore{status: model.SyncStatus{CurrentHeight: 10}}
	c := newControllerForTest(node, st, &fakeRewinder{}, &fakeReorg{}, &fakeProjector{}, runBlocksFromHeaders,
		Config{PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
