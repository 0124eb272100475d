package store

import (
	"context"
	"fmt"
)

// TouchAddressStats records that address received an output at height,
// maintaining the distinct-output-count / first-seen / last-seen
// projection described alongside the main balance tables.
func (t *Tx) TouchAddressStats(ctx context.Context, address string, height uint64) error {
	_, err := t.pgx.Exec(ctx, `
		INSERT INTO address_stats (address, output_count, first_seen_height, last_seen_height)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (address) DO UPDATE SET
			output_count = address_stats.output_count + 1,
			last_seen_height = GREATEST(address_stats.last_seen_height, EXCLUDED.last_seen_height)
	`, address, height)
	if err != nil {
		return fmt.Errorf("touch address stats for %s: %w", address, err)
	}
	return nil
}

// UpsertAssetMetadata snapshots a token's name/description/decimals as
// observed at its minting box, for (token_id, box_id) provenance.
func (t *Tx) UpsertAssetMetadata(ctx context.Context, tokenID, boxID, name, description string, decimals int) error {
	_, err := t.pgx.Exec(ctx, `
		INSERT INTO asset_metadata (token_id, box_id, name, description, decimals)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id, box_id) DO NOTHING
	`, tokenID, boxID, name, description, decimals)
	if err != nil {
		return fmt.Errorf("upsert asset metadata for %s: %w", tokenID, err)
	}
	return nil
}
