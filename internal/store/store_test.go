package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Klingon-tech/ergo-indexer/internal/model"
)

// newTestStore spins up a disposable Postgres container, applies
// migrations, and returns a connected Store. Skipped with -short since it
// needs Docker.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping store integration test in -short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("indexer"),
		tcpostgres.WithUsername("indexer"),
		tcpostgres.WithPassword("indexer"),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	if err := Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s, err := Open(ctx, dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_UpsertBlockAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	blk := model.Block{ID: "b1", HeaderID: "b1", Height: 1, TimestampMs: 1000}
	if err := tx.UpsertBlock(ctx, blk); err != nil {
		t.Fatalf("upsert block: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetHeader(ctx, "b1")
	if err != nil {
		t.Fatalf("get header: %v", err)
	}
	if got.Height != 1 {
		t.Errorf("Height = %d, want 1", got.Height)
	}

	id, err := s.GetBlockIDAtHeight(ctx, 1)
	if err != nil {
		t.Fatalf("get block id at height: %v", err)
	}
	if id != "b1" {
		t.Errorf("id = %q, want b1", id)
	}
}

func TestStore_BalanceInvariantAfterIngestAndRewind(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	blk := model.Block{ID: "b1", HeaderID: "b1", Height: 1, TimestampMs: 1000}
	if err := tx.UpsertBlock(ctx, blk); err != nil {
		t.Fatalf("upsert block: %v", err)
	}
	txn := model.Transaction{ID: "t1", BlockID: "b1", IndexInBlock: 0, TimestampMs: 1000}
	if err := tx.UpsertTx(ctx, txn); err != nil {
		t.Fatalf("upsert tx: %v", err)
	}
	outs := []model.Output{
		{BoxID: "o1", TxID: "t1", IndexInTx: 0, Value: 1000, Address: "addr1"},
	}
	if err := tx.BulkInsertOutputs(ctx, outs); err != nil {
		t.Fatalf("bulk insert outputs: %v", err)
	}
	assets := []model.Asset{{TokenID: "tok1", BoxID: "o1", IndexInOutputs: 0, Amount: 50}}
	if err := tx.BulkInsertAssets(ctx, assets); err != nil {
		t.Fatalf("bulk insert assets: %v", err)
	}
	deltas := []model.BalanceDelta{
		{TokenID: model.ERGTokenID, Address: "addr1", Delta: 1000},
		{TokenID: "tok1", Address: "addr1", Delta: 50},
	}
	if err := tx.ApplyBalanceDeltas(ctx, deltas, 1000); err != nil {
		t.Fatalf("apply deltas: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	bal, err := s.GetTokenBalance(ctx, "tok1", "addr1")
	if err != nil {
		t.Fatalf("get token balance: %v", err)
	}
	if bal != 50 {
		t.Errorf("balance = %d, want 50", bal)
	}

	sum, err := s.SumAssetAmounts(ctx, "tok1")
	if err != nil {
		t.Fatalf("sum asset amounts: %v", err)
	}
	if sum != bal {
		t.Errorf("invariant violated: balance %d != unspent asset sum %d", bal, sum)
	}

	rtx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin rewind tx: %v", err)
	}
	defer rtx.Rollback(ctx)
	if err := rtx.RewindToHeight(ctx, 0, 2000); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if err := rtx.Commit(ctx); err != nil {
		t.Fatalf("commit rewind: %v", err)
	}

	bal, err = s.GetTokenBalance(ctx, "tok1", "addr1")
	if err != nil {
		t.Fatalf("get token balance after rewind: %v", err)
	}
	if bal != 0 {
		t.Errorf("balance after rewind = %d, want 0", bal)
	}
}

// TestStore_BalanceInvariantAfterRewind_SpendAcrossSurvivingBlock covers the
// case TestStore_BalanceInvariantAfterIngestAndRewind does not: a demoted
// block spends an output created in a block that survives the rewind. The
// rewind must not just un-credit what the demoted block created, it must
// also re-credit the balance debited when the demoted block spent o1 —
// otherwise the spent value is erased rather than returned to addr1.
func TestStore_BalanceInvariantAfterRewind_SpendAcrossSurvivingBlock(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	// Height 1 (survives the rewind): addr1 receives o1, tok1 amount 50.
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	blk1 := model.Block{ID: "b1", HeaderID: "b1", Height: 1, TimestampMs: 1000}
	if err := tx.UpsertBlock(ctx, blk1); err != nil {
		t.Fatalf("upsert block 1: %v", err)
	}
	t1 := model.Transaction{ID: "t1", BlockID: "b1", IndexInBlock: 0, TimestampMs: 1000}
	if err := tx.UpsertTx(ctx, t1); err != nil {
		t.Fatalf("upsert tx 1: %v", err)
	}
	if err := tx.BulkInsertOutputs(ctx, []model.Output{
		{BoxID: "o1", TxID: "t1", IndexInTx: 0, Value: 1000, Address: "addr1"},
	}); err != nil {
		t.Fatalf("bulk insert outputs 1: %v", err)
	}
	if err := tx.BulkInsertAssets(ctx, []model.Asset{
		{TokenID: "tok1", BoxID: "o1", IndexInOutputs: 0, Amount: 50},
	}); err != nil {
		t.Fatalf("bulk insert assets 1: %v", err)
	}
	if err := tx.ApplyBalanceDeltas(ctx, []model.BalanceDelta{
		{TokenID: model.ERGTokenID, Address: "addr1", Delta: 1000},
		{TokenID: "tok1", Address: "addr1", Delta: 50},
	}, 1000); err != nil {
		t.Fatalf("apply deltas 1: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	// Height 2 (demoted by the rewind): spends o1, creates o2 @ addr2.
	tx2, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin 2: %v", err)
	}
	blk2 := model.Block{ID: "b2", HeaderID: "b2", ParentID: "b1", Height: 2, TimestampMs: 2000}
	if err := tx2.UpsertBlock(ctx, blk2); err != nil {
		t.Fatalf("upsert block 2: %v", err)
	}
	t2 := model.Transaction{ID: "t2", BlockID: "b2", IndexInBlock: 0, TimestampMs: 2000}
	if err := tx2.UpsertTx(ctx, t2); err != nil {
		t.Fatalf("upsert tx 2: %v", err)
	}
	if err := tx2.MarkOutputSpent(ctx, "o1", "t2"); err != nil {
		t.Fatalf("mark o1 spent: %v", err)
	}
	if err := tx2.BulkInsertOutputs(ctx, []model.Output{
		{BoxID: "o2", TxID: "t2", IndexInTx: 0, Value: 1000, Address: "addr2"},
	}); err != nil {
		t.Fatalf("bulk insert outputs 2: %v", err)
	}
	if err := tx2.BulkInsertAssets(ctx, []model.Asset{
		{TokenID: "tok1", BoxID: "o2", IndexInOutputs: 0, Amount: 50},
	}); err != nil {
		t.Fatalf("bulk insert assets 2: %v", err)
	}
	if err := tx2.ApplyBalanceDeltas(ctx, []model.BalanceDelta{
		{TokenID: model.ERGTokenID, Address: "addr1", Delta: -1000},
		{TokenID: "tok1", Address: "addr1", Delta: -50},
		{TokenID: model.ERGTokenID, Address: "addr2", Delta: 1000},
		{TokenID: "tok1", Address: "addr2", Delta: 50},
	}, 2000); err != nil {
		t.Fatalf("apply deltas 2: %v", err)
	}
	if err := tx2.Commit(ctx); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	balAddr2, err := s.GetTokenBalance(ctx, "tok1", "addr2")
	if err != nil {
		t.Fatalf("get token balance addr2: %v", err)
	}
	if balAddr2 != 50 {
		t.Fatalf("pre-rewind balance addr2 = %d, want 50", balAddr2)
	}

	rtx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin rewind tx: %v", err)
	}
	defer rtx.Rollback(ctx)
	if err := rtx.RewindToHeight(ctx, 1, 3000); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if err := rtx.Commit(ctx); err != nil {
		t.Fatalf("commit rewind: %v", err)
	}

	balAddr1, err := s.GetTokenBalance(ctx, "tok1", "addr1")
	if err != nil {
		t.Fatalf("get token balance addr1 after rewind: %v", err)
	}
	if balAddr1 != 50 {
		t.Errorf("balance addr1 after rewind = %d, want 50 (re-credited, not erased)", balAddr1)
	}

	balAddr2, err = s.GetTokenBalance(ctx, "tok1", "addr2")
	if err != nil {
		t.Fatalf("get token balance addr2 after rewind: %v", err)
	}
	if balAddr2 != 0 {
		t.Errorf("balance addr2 after rewind = %d, want 0", balAddr2)
	}

	sum, err := s.SumAssetAmounts(ctx, "tok1")
	if err != nil {
		t.Fatalf("sum asset amounts after rewind: %v", err)
	}
	if sum != balAddr1+balAddr2 {
		t.Errorf("invariant violated: balances %d != unspent asset sum %d", balAddr1+balAddr2, sum)
	}
}
