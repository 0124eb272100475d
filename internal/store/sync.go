package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Klingon-tech/ergo-indexer/internal/model"
)

// GetSyncStatus returns the single sync_status row, or a zero-value status
// if ingestion has never run.
func (s *Store) GetSyncStatus(ctx context.Context) (model.SyncStatus, error) {
	var st model.SyncStatus
	err := s.pool.QueryRow(ctx, `
		SELECT current_height, target_height, is_syncing, last_block_time, updated_at
		FROM sync_status WHERE id = 1
	`).Scan(&st.CurrentHeight, &st.TargetHeight, &st.IsSyncing, &st.LastBlockTime, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SyncStatus{}, nil
	}
	if err != nil {
		return model.SyncStatus{}, fmt.Errorf("get sync status: %w", err)
	}
	return st, nil
}

// UpdateSyncStatus upserts the single sync_status row, called by the
// Projector at the end of every committed block.
func (t *Tx) UpdateSyncStatus(ctx context.Context, st model.SyncStatus) error {
	_, err := t.pgx.Exec(ctx, `
		INSERT INTO sync_status (id, current_height, target_height, is_syncing, last_block_time, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			current_height = EXCLUDED.current_height,
			target_height = EXCLUDED.target_height,
			is_syncing = EXCLUDED.is_syncing,
			last_block_time = EXCLUDED.last_block_time,
			updated_at = EXCLUDED.updated_at
	`, st.CurrentHeight, st.TargetHeight, st.IsSyncing, st.LastBlockTime, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	return nil
}

// RewindToHeight implements the reorg rewind path: every Block with
// height > h is demoted off the main chain, its outputs are re-credited
// (spent_by_tx_id unset where the spending tx belonged to a demoted
// block), and the balance deltas those blocks introduced are reversed.
// The whole operation runs inside the caller's Tx so it is all-or-nothing.
func (t *Tx) RewindToHeight(ctx context.Context, h uint64, updatedAt int64) error {
	rows, err := t.pgx.Query(ctx, `SELECT id FROM blocks WHERE height > $1 AND main_chain = true`, h)
	if err != nil {
		return fmt.Errorf("rewind: list demoted blocks: %w", err)
	}
	var demoted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("rewind: scan block id: %w", err)
		}
		demoted = append(demoted, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rewind: iterate demoted blocks: %w", err)
	}
	if len(demoted) == 0 {
		return nil
	}

	// Reversing a demoted block's balance effect has two halves: the
	// outputs it *created* must be un-credited, and the outputs it *spent*
	// (unspent again by the recredited CTE, which unsets spent_by_tx_id) must
	// be re-credited back onto the balances they were debited from. Both halves run as one
	// statement so the re-credit UPDATE's result feeds the delta calc.
	if _, err := t.pgx.Exec(ctx, `
		WITH demoted_txs AS (
			SELECT id FROM transactions WHERE block_id = ANY($1)
		),
		recredited AS (
			UPDATE outputs SET spent_by_tx_id = NULL
			WHERE spent_by_tx_id IN (SELECT id FROM demoted_txs)
			RETURNING box_id, value, address
		),
		created AS (
			SELECT box_id, value, address FROM outputs WHERE tx_id IN (SELECT id FROM demoted_txs)
		),
		erg_deltas AS (
			SELECT address, SUM(value)::bigint AS amt FROM recredited GROUP BY address
			UNION ALL
			SELECT address, -SUM(value)::bigint AS amt FROM created GROUP BY address
		),
		asset_deltas AS (
			SELECT a.token_id, r.address, SUM(a.amount)::bigint AS amt
			FROM recredited r JOIN assets a ON a.box_id = r.box_id
			GROUP BY a.token_id, r.address
			UNION ALL
			SELECT a.token_id, c.address, -SUM(a.amount)::bigint AS amt
			FROM created c JOIN assets a ON a.box_id = c.box_id
			GROUP BY a.token_id, c.address
		)
		INSERT INTO token_balances (token_id, address, balance, last_updated)
		SELECT 'ERG', address, SUM(amt)::bigint, $2 FROM erg_deltas GROUP BY address
		UNION ALL
		SELECT token_id, address, SUM(amt)::bigint, $2 FROM asset_deltas GROUP BY token_id, address
		ON CONFLICT (token_id, address) DO UPDATE SET
			balance = token_balances.balance + EXCLUDED.balance,
			last_updated = EXCLUDED.last_updated
	`, demoted, updatedAt); err != nil {
		return fmt.Errorf("rewind: reverse balance deltas: %w", err)
	}

	if _, err := t.pgx.Exec(ctx, `UPDATE blocks SET main_chain = false WHERE id = ANY($1)`, demoted); err != nil {
		return fmt.Errorf("rewind: demote blocks: %w", err)
	}
	if _, err := t.pgx.Exec(ctx, `UPDATE transactions SET main_chain = false WHERE block_id = ANY($1)`, demoted); err != nil {
		return fmt.Errorf("rewind: demote transactions: %w", err)
	}
	return nil
}

// PutReorgCheckpoint persists an in-progress rewind target so a crash
// mid-rewind is detectable on the next startup.
func (s *Store) PutReorgCheckpoint(ctx context.Context, fromHeight uint64, newTip string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reorg_checkpoint (id, from_height, new_tip)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET from_height = EXCLUDED.from_height, new_tip = EXCLUDED.new_tip
	`, fromHeight, newTip)
	if err != nil {
		return fmt.Errorf("put reorg checkpoint: %w", err)
	}
	return nil
}

// GetReorgCheckpoint returns the pending checkpoint, if any, used by the
// SyncController on startup to detect a crash mid-rewind.
func (s *Store) GetReorgCheckpoint(ctx context.Context) (fromHeight uint64, newTip string, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT from_height, new_tip FROM reorg_checkpoint WHERE id = 1`).Scan(&fromHeight, &newTip)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("get reorg checkpoint: %w", err)
	}
	return fromHeight, newTip, true, nil
}

// DeleteReorgCheckpoint clears the checkpoint once a rewind completes.
func (s *Store) DeleteReorgCheckpoint(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM reorg_checkpoint WHERE id = 1`); err != nil {
		return fmt.Errorf("delete reorg checkpoint: %w", err)
	}
	return nil
}

// InsertPoisonBlock flags a block that failed validation or projection
// after exhausting retries. The SyncController halts after calling this.
func (s *Store) InsertPoisonBlock(ctx context.Context, height uint64, blockID, reason string, occurredAt int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO poison_blocks (height, block_id, reason, occurred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (height) DO UPDATE SET block_id = EXCLUDED.block_id, reason = EXCLUDED.reason, occurred_at = EXCLUDED.occurred_at
	`, height, blockID, reason, occurredAt)
	if err != nil {
		return fmt.Errorf("insert poison block %d: %w", height, err)
	}
	return nil
}
