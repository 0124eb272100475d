package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
	"github.com/Klingon-tech/ergo-indexer/internal/model"
)

// UpsertBlock inserts or updates a block row, always with main_chain=true;
// rewinds flip main_chain separately via RewindToHeight.
func (t *Tx) UpsertBlock(ctx context.Context, b model.Block) error {
	_, err := t.pgx.Exec(ctx, `
		INSERT INTO blocks (id, header_id, parent_id, height, timestamp_ms,
			difficulty, size, tx_count, miner_address, main_chain, version, pow_solutions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			height = EXCLUDED.height,
			timestamp_ms = EXCLUDED.timestamp_ms,
			difficulty = EXCLUDED.difficulty,
			size = EXCLUDED.size,
			tx_count = EXCLUDED.tx_count,
			miner_address = EXCLUDED.miner_address,
			main_chain = true,
			version = EXCLUDED.version,
			pow_solutions = EXCLUDED.pow_solutions
	`, b.ID, b.HeaderID, nullableID(b.ParentID), b.Height, b.TimestampMs,
		b.Difficulty, b.Size, b.TxCount, b.MinerAddress, b.Version, b.PowSolutions)
	if err != nil {
		return fmt.Errorf("upsert block %s: %w", b.ID, err)
	}
	return nil
}

// UpsertTx inserts or updates a transaction row.
func (t *Tx) UpsertTx(ctx context.Context, tx model.Transaction) error {
	_, err := t.pgx.Exec(ctx, `
		INSERT INTO transactions (id, block_id, index_in_block, timestamp_ms, size, main_chain)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (id) DO UPDATE SET
			block_id = EXCLUDED.block_id,
			index_in_block = EXCLUDED.index_in_block,
			timestamp_ms = EXCLUDED.timestamp_ms,
			size = EXCLUDED.size,
			main_chain = true
	`, tx.ID, tx.BlockID, tx.IndexInBlock, tx.TimestampMs, tx.Size)
	if err != nil {
		return fmt.Errorf("upsert tx %s: %w", tx.ID, err)
	}
	return nil
}

// BulkInsertOutputs inserts newly created outputs via a single batched
// round trip. Box ids are content-addressed, so an existing row is never
// updated: a conflicting box id is skipped (ON CONFLICT DO NOTHING).
func (t *Tx) BulkInsertOutputs(ctx context.Context, outputs []model.Output) error {
	if len(outputs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range outputs {
		registers, err := encodeRegisters(o.AdditionalRegisters)
		if err != nil {
			return fmt.Errorf("encode registers for output %s: %w", o.BoxID, err)
		}
		batch.Queue(`
			INSERT INTO outputs (box_id, tx_id, index_in_tx, value, creation_height,
				address, ergo_tree, additional_registers)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (box_id) DO NOTHING
		`, o.BoxID, o.TxID, o.IndexInTx, o.Value, o.CreationHeight, o.Address, o.ErgoTree, registers)
	}
	br := t.pgx.SendBatch(ctx, batch)
	defer br.Close()
	for range outputs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk insert outputs: %w", err)
		}
	}
	return nil
}

// BulkInsertInputs inserts a block's spending inputs. Coinbase-sentinel
// inputs are stored like any other row; linking to a spent Output happens
// separately in MarkOutputSpent, after all of the block's Outputs exist.
func (t *Tx) BulkInsertInputs(ctx context.Context, inputs []model.Input) error {
	if len(inputs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, in := range inputs {
		batch.Queue(`
			INSERT INTO inputs (box_id, tx_id, index_in_tx, proof_bytes, extension)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tx_id, index_in_tx) DO NOTHING
		`, in.BoxID, in.TxID, in.IndexInTx, in.ProofBytes, in.Extension)
	}
	br := t.pgx.SendBatch(ctx, batch)
	defer br.Close()
	for range inputs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk insert inputs: %w", err)
		}
	}
	return nil
}

// BulkInsertAssets inserts the per-output token assets of a block.
func (t *Tx) BulkInsertAssets(ctx context.Context, assets []model.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range assets {
		batch.Queue(`
			INSERT INTO assets (token_id, box_id, index_in_outputs, amount)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (box_id, index_in_outputs) DO NOTHING
		`, a.TokenID, a.BoxID, a.IndexInOutputs, a.Amount)
	}
	br := t.pgx.SendBatch(ctx, batch)
	defer br.Close()
	for range assets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk insert assets: %w", err)
		}
	}
	return nil
}

// MarkOutputSpent links boxID as spent by spendingTxID. The coinbase
// sentinel is never a real output and is silently ignored, per spec.
func (t *Tx) MarkOutputSpent(ctx context.Context, boxID, spendingTxID string) error {
	if boxID == model.CoinbaseSentinel {
		return nil
	}
	tag, err := t.pgx.Exec(ctx, `
		UPDATE outputs SET spent_by_tx_id = $2 WHERE box_id = $1
	`, boxID, spendingTxID)
	if err != nil {
		return fmt.Errorf("mark output %s spent: %w", boxID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("output %s: %w", boxID, ierr.ErrNotFound)
	}
	return nil
}

// GetOutputForSpend returns a previously-committed output's address, ERG
// value, and asset amounts, read inside the current transaction. The
// Projector uses this to compute balance deltas for inputs that spend
// outputs created in an earlier block.
func (t *Tx) GetOutputForSpend(ctx context.Context, boxID string) (model.Output, []model.Asset, error) {
	var o model.Output
	var registers []byte
	err := t.pgx.QueryRow(ctx, `
		SELECT box_id, tx_id, index_in_tx, value, creation_height, address, ergo_tree, additional_registers
		FROM outputs WHERE box_id = $1
	`, boxID).Scan(&o.BoxID, &o.TxID, &o.IndexInTx, &o.Value, &o.CreationHeight, &o.Address, &o.ErgoTree, &registers)
	if err != nil {
		return model.Output{}, nil, wrapNotFound(err)
	}
	regs, err := decodeRegisters(registers)
	if err != nil {
		return model.Output{}, nil, fmt.Errorf("decode registers for output %s: %w", boxID, err)
	}
	o.AdditionalRegisters = regs

	rows, err := t.pgx.Query(ctx, `
		SELECT token_id, index_in_outputs, amount FROM assets WHERE box_id = $1
	`, boxID)
	if err != nil {
		return model.Output{}, nil, fmt.Errorf("query assets for output %s: %w", boxID, err)
	}
	defer rows.Close()
	var assets []model.Asset
	for rows.Next() {
		a := model.Asset{BoxID: boxID}
		if err := rows.Scan(&a.TokenID, &a.IndexInOutputs, &a.Amount); err != nil {
			return model.Output{}, nil, fmt.Errorf("scan asset row for output %s: %w", boxID, err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return model.Output{}, nil, fmt.Errorf("iterate assets for output %s: %w", boxID, err)
	}
	return o, assets, nil
}

// GetBlockIDAtHeight returns the main-chain block id at height, if any.
func (s *Store) GetBlockIDAtHeight(ctx context.Context, height uint64) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM blocks WHERE height = $1 AND main_chain = true
	`, height).Scan(&id)
	if err != nil {
		return "", wrapNotFound(err)
	}
	return id, nil
}

// GetHeader returns the stored block's header-relevant fields, used by
// ReorgDetector to walk back the locally stored lineage.
func (s *Store) GetHeader(ctx context.Context, blockID string) (model.Block, error) {
	var b model.Block
	err := s.pool.QueryRow(ctx, `
		SELECT id, header_id, COALESCE(parent_id, ''), height, timestamp_ms,
			difficulty, size, tx_count, miner_address, main_chain, version
		FROM blocks WHERE id = $1
	`, blockID).Scan(&b.ID, &b.HeaderID, &b.ParentID, &b.Height, &b.TimestampMs,
		&b.Difficulty, &b.Size, &b.TxCount, &b.MinerAddress, &b.MainChain, &b.Version)
	if err != nil {
		return model.Block{}, wrapNotFound(err)
	}
	return b, nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
