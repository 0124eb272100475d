package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Klingon-tech/ergo-indexer/internal/model"
)

// ApplyBalanceDeltas atomically adjusts token_balances rows keyed by
// (token_id, address). A delta driving a balance to zero leaves the row in
// place rather than deleting it, since a future spend/receive is common.
func (t *Tx) ApplyBalanceDeltas(ctx context.Context, deltas []model.BalanceDelta, updatedAt int64) error {
	if len(deltas) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range deltas {
		batch.Queue(`
			INSERT INTO token_balances (token_id, address, balance, last_updated)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (token_id, address) DO UPDATE SET
				balance = token_balances.balance + EXCLUDED.balance,
				last_updated = EXCLUDED.last_updated
		`, d.TokenID, d.Address, d.Delta, updatedAt)
	}
	br := t.pgx.SendBatch(ctx, batch)
	defer br.Close()
	for range deltas {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("apply balance deltas: %w", err)
		}
	}
	return nil
}

// UpsertToken records token metadata discovered at mint time. Fields left
// unknown by a best-effort register decode are passed as zero values and
// never overwrite a previously recorded non-zero value.
func (t *Tx) UpsertToken(ctx context.Context, tok model.Token) error {
	_, err := t.pgx.Exec(ctx, `
		INSERT INTO tokens (token_id, name, description, decimals, total_supply, first_seen_height)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), tokens.name),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), tokens.description),
			decimals = CASE WHEN EXCLUDED.decimals <> 0 THEN EXCLUDED.decimals ELSE tokens.decimals END
	`, tok.TokenID, tok.Name, tok.Description, tok.Decimals, tok.TotalSupply, tok.FirstSeenHeight)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", tok.TokenID, err)
	}
	return nil
}

// GetTokenBalance returns the current balance for (tokenID, address), or
// zero if no row exists yet.
func (s *Store) GetTokenBalance(ctx context.Context, tokenID, address string) (uint64, error) {
	var bal int64
	err := s.pool.QueryRow(ctx, `
		SELECT balance FROM token_balances WHERE token_id = $1 AND address = $2
	`, tokenID, address).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get token balance %s/%s: %w", tokenID, address, err)
	}
	if bal < 0 {
		bal = 0
	}
	return uint64(bal), nil
}

// SumAssetAmounts returns the total unspent asset.amount for tokenID on the
// main chain, used by tests to verify the holder-balance invariant against
// raw UTXOs. Orphaned outputs (main_chain = false) are audit-only and
// excluded, since a rewind never deletes them.
func (s *Store) SumAssetAmounts(ctx context.Context, tokenID string) (uint64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(a.amount), 0)
		FROM assets a
		JOIN outputs o ON o.box_id = a.box_id
		JOIN transactions tx ON tx.id = o.tx_id
		WHERE a.token_id = $1 AND o.spent_by_tx_id IS NULL AND tx.main_chain = true
	`, tokenID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum asset amounts for %s: %w", tokenID, err)
	}
	return uint64(total), nil
}
