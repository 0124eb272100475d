// Package projector is the sole writer to the Store during normal
// ingestion. For each parsed block it commits raw projection (block,
// transactions, outputs, inputs, assets) and the derived token-holder
// balances in one atomic transaction — the HolderAggregator role is
// performed inline as part of that same commit, not as a separate stage.
package projector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/model"
)

// Tx is the subset of store.Tx the Projector needs to commit one parsed
// block. Declaring it here (rather than depending on *store.Tx directly)
// lets the commit sequence be exercised against a fake in tests without a
// live Postgres instance.
type Tx interface {
	UpsertBlock(ctx context.Context, b model.Block) error
	UpsertTx(ctx context.Context, tx model.Transaction) error
	BulkInsertOutputs(ctx context.Context, outputs []model.Output) error
	BulkInsertInputs(ctx context.Context, inputs []model.Input) error
	BulkInsertAssets(ctx context.Context, assets []model.Asset) error
	MarkOutputSpent(ctx context.Context, boxID, spendingTxID string) error
	GetOutputForSpend(ctx context.Context, boxID string) (model.Output, []model.Asset, error)
	ApplyBalanceDeltas(ctx context.Context, deltas []model.BalanceDelta, updatedAt int64) error
	UpsertToken(ctx context.Context, tok model.Token) error
	UpsertAssetMetadata(ctx context.Context, tokenID, boxID, name, description string, decimals int) error
	TouchAddressStats(ctx context.Context, address string, height uint64) error
	UpdateSyncStatus(ctx context.Context, st model.SyncStatus) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

// Beginner starts a Tx. WrapStore adapts a *store.Store to this interface.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// Projector turns ParsedBlocks into committed store state, one block per
// transaction, in the order the caller presents them.
type Projector struct {
	begin Beginner
	log   zerolog.Logger
}

// New creates a Projector backed by begin.
func New(begin Beginner, log zerolog.Logger) *Projector {
	return &Projector{
		begin: begin,
		log:   log.With().Str("component", "projector").Logger(),
	}
}

// CommitBlock executes the full per-block commit sequence in a single
// transaction:
//  1. upsert Block, Transactions, Outputs, Assets
//  2. mark each Input's referenced Output spent (skipping the coinbase
//     sentinel; an Output created in the same block is resolved from the
//     block's own Outputs, any other from the store)
//  3. accumulate signed per-(token_id, address) balance deltas
//  4. apply the deltas and best-effort token metadata
//  5. update SyncStatus
//  6. commit
//
// On any failure the transaction is rolled back and the error (wrapped
// with context where available) returned for the caller to retry or
// poison the block.
func (p *Projector) CommitBlock(ctx context.Context, pb model.ParsedBlock, now time.Time) error {
	tx, err := p.begin.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin projector tx for block %s: %w", pb.Block.ID, err)
	}
	defer tx.Rollback(ctx)

	if err := tx.UpsertBlock(ctx, pb.Block); err != nil {
		return err
	}
	for _, t := range pb.Transactions {
		if err := tx.UpsertTx(ctx, t); err != nil {
			return err
		}
	}
	if err := tx.BulkInsertOutputs(ctx, pb.Outputs); err != nil {
		return err
	}
	if err := tx.BulkInsertAssets(ctx, pb.Assets); err != nil {
		return err
	}
	if err := tx.BulkInsertInputs(ctx, pb.Inputs); err != nil {
		return err
	}

	outputByID := make(map[string]model.Output, len(pb.Outputs))
	for _, o := range pb.Outputs {
		outputByID[o.BoxID] = o
	}
	assetsByBox := make(map[string][]model.Asset, len(pb.Outputs))
	for _, a := range pb.Assets {
		assetsByBox[a.BoxID] = append(assetsByBox[a.BoxID], a)
	}

	deltas := newDeltaSet()
	for _, o := range pb.Outputs {
		deltas.add(model.ERGTokenID, o.Address, int64(o.Value))
		for _, a := range assetsByBox[o.BoxID] {
			deltas.add(a.TokenID, o.Address, int64(a.Amount))
		}
	}

	for _, in := range pb.Inputs {
		if in.IsCoinbase() {
			continue
		}

		var spentOutput model.Output
		var spentAssets []model.Asset
		if localOut, found := outputByID[in.BoxID]; found {
			spentOutput = localOut
			spentAssets = assetsByBox[in.BoxID]
		} else {
			stored, storedAssets, err := tx.GetOutputForSpend(ctx, in.BoxID)
			if err != nil {
				return fmt.Errorf("tx %s input %s: resolve spent output: %w", in.TxID, in.BoxID, err)
			}
			spentOutput = stored
			spentAssets = storedAssets
		}

		if err := tx.MarkOutputSpent(ctx, in.BoxID, in.TxID); err != nil {
			return fmt.Errorf("mark %s spent by %s: %w", in.BoxID, in.TxID, err)
		}

		deltas.add(model.ERGTokenID, spentOutput.Address, -int64(spentOutput.Value))
		for _, a := range spentAssets {
			deltas.add(a.TokenID, spentOutput.Address, -int64(a.Amount))
		}
	}

	if err := tx.ApplyBalanceDeltas(ctx, deltas.list(), now.Unix()); err != nil {
		return fmt.Errorf("apply balance deltas for block %s: %w", pb.Block.ID, err)
	}

	if err := p.projectTokenMetadata(ctx, tx, pb); err != nil {
		return fmt.Errorf("project token metadata for block %s: %w", pb.Block.ID, err)
	}

	for _, o := range pb.Outputs {
		if err := tx.TouchAddressStats(ctx, o.Address, pb.Block.Height); err != nil {
			return fmt.Errorf("touch address stats for block %s: %w", pb.Block.ID, err)
		}
	}

	if err := tx.UpdateSyncStatus(ctx, model.SyncStatus{
		CurrentHeight: pb.Block.Height,
		IsSyncing:     true,
		LastBlockTime: pb.Block.TimestampMs,
		UpdatedAt:     now.Unix(),
	}); err != nil {
		return fmt.Errorf("update sync status for block %s: %w", pb.Block.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit block %s: %w", pb.Block.ID, err)
	}

	p.log.Debug().
		Uint64("height", pb.Block.Height).
		Str("block_id", pb.Block.ID).
		Int("deltas", deltas.len()).
		Msg("block committed")
	return nil
}

// projectTokenMetadata implements the HolderAggregator's best-effort token
// registry population: for each transaction, its first input's box id is
// the Ergo-convention id of any token it mints. When an asset in this
// block carries that id, the owning output's R4/R5/R6 registers are
// decoded for name/description/decimals. A decode failure degrades to
// empty/zero fields rather than failing the block.
func (p *Projector) projectTokenMetadata(ctx context.Context, tx Tx, pb model.ParsedBlock) error {
	mintCandidateByTx := make(map[string]string, len(pb.Transactions))
	for _, in := range pb.Inputs {
		if in.IndexInTx == 0 {
			mintCandidateByTx[in.TxID] = in.BoxID
		}
	}

	outputsByTx := make(map[string][]model.Output, len(pb.Transactions))
	for _, o := range pb.Outputs {
		outputsByTx[o.TxID] = append(outputsByTx[o.TxID], o)
	}
	assetsByBox := make(map[string][]model.Asset, len(pb.Outputs))
	for _, a := range pb.Assets {
		assetsByBox[a.BoxID] = append(assetsByBox[a.BoxID], a)
	}

	seen := make(map[string]bool)
	for txID, mintTokenID := range mintCandidateByTx {
		for _, o := range outputsByTx[txID] {
			for _, a := range assetsByBox[o.BoxID] {
				if a.TokenID != mintTokenID || seen[a.TokenID] {
					continue
				}
				seen[a.TokenID] = true

				meta := extractMintRegisters(o.AdditionalRegisters)
				if err := tx.UpsertToken(ctx, model.Token{
					TokenID:         a.TokenID,
					Name:            meta.Name,
					Description:     meta.Description,
					Decimals:        meta.Decimals,
					TotalSupply:     a.Amount,
					FirstSeenHeight: pb.Block.Height,
				}); err != nil {
					return fmt.Errorf("upsert token %s: %w", a.TokenID, err)
				}
				if err := tx.UpsertAssetMetadata(ctx, a.TokenID, o.BoxID, meta.Name, meta.Description, meta.Decimals); err != nil {
					return fmt.Errorf("upsert asset metadata %s/%s: %w", a.TokenID, o.BoxID, err)
				}
			}
		}
	}
	return nil
}

func distinctAddresses(outputs []model.Output) map[string]struct{} {
	set := make(map[string]struct{}, len(outputs))
	for _, o := range outputs {
		set[o.Address] = struct{}{}
	}
	return set
}
