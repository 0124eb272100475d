// Package parser is a pure transformation from node JSON into the
// indexer's internal entity records. It performs no I/O and is safe to run
// on many blocks concurrently.
package parser

import (
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
	"github.com/Klingon-tech/ergo-indexer/internal/model"
	"github.com/Klingon-tech/ergo-indexer/internal/nodeclient"
	"github.com/Klingon-tech/ergo-indexer/pkg/types"
)

// Parse converts a node FullBlock into a ParsedBlock, marking the block and
// its transactions as main chain. It is deterministic and side-effect-free:
// two calls on the same input yield identical output.
func Parse(blk nodeclient.FullBlock) (model.ParsedBlock, error) {
	h := blk.Header
	if h.ID == "" {
		return model.ParsedBlock{}, fmt.Errorf("block header missing id: %w", ierr.ErrBadBlock)
	}

	out := model.ParsedBlock{
		Block: model.Block{
			ID:           h.ID,
			HeaderID:     h.ID,
			ParentID:     h.ParentID,
			Height:       h.Height,
			TimestampMs:  h.Timestamp,
			Difficulty:   h.Difficulty,
			Size:         h.Size,
			TxCount:      len(blk.BlockTransactions.Transactions),
			Version:      h.Version,
			MainChain:    true,
			PowSolutions: h.PowSolutions,
		},
	}

	if out.Block.Height > 0 && len(blk.BlockTransactions.Transactions) == 0 {
		return model.ParsedBlock{}, fmt.Errorf("block %s at height %d has no transactions: %w", h.ID, h.Height, ierr.ErrBadBlock)
	}

	for txIdx, tx := range blk.BlockTransactions.Transactions {
		if tx.ID == "" {
			return model.ParsedBlock{}, fmt.Errorf("tx %d in block %s: missing id: %w", txIdx, h.ID, ierr.ErrBadBlock)
		}

		out.Transactions = append(out.Transactions, model.Transaction{
			ID:           tx.ID,
			BlockID:      h.ID,
			IndexInBlock: txIdx,
			TimestampMs:  h.Timestamp,
			Size:         tx.Size,
			MainChain:    true,
		})

		for outIdx, o := range tx.Outputs {
			if o.BoxID == "" {
				return model.ParsedBlock{}, fmt.Errorf("tx %s output %d: missing boxId: %w", tx.ID, outIdx, ierr.ErrBadBlock)
			}
			ergoTreeBytes, err := hex.DecodeString(o.ErgoTree)
			if err != nil {
				return model.ParsedBlock{}, fmt.Errorf("tx %s output %d: non-hex ergoTree: %w", tx.ID, outIdx, ierr.ErrBadBlock)
			}

			addr := types.AddressFromErgoTree(ergoTreeBytes)

			registers := make(map[string]model.RegisterValue, len(o.AdditionalRegisters))
			for k, v := range o.AdditionalRegisters {
				registers[k] = model.RegisterValue{Type: "", Value: v}
			}

			out.Outputs = append(out.Outputs, model.Output{
				BoxID:               o.BoxID,
				TxID:                tx.ID,
				IndexInTx:           outIdx,
				Value:               o.Value,
				CreationHeight:      o.CreationHeight,
				Address:             addr.String(),
				ErgoTree:            o.ErgoTree,
				AdditionalRegisters: registers,
			})

			for assetIdx, a := range o.Assets {
				if a.TokenID == "" {
					return model.ParsedBlock{}, fmt.Errorf("tx %s output %d asset %d: missing tokenId: %w", tx.ID, outIdx, assetIdx, ierr.ErrBadBlock)
				}
				out.Assets = append(out.Assets, model.Asset{
					TokenID:        a.TokenID,
					BoxID:          o.BoxID,
					IndexInOutputs: assetIdx,
					Amount:         a.Amount,
				})
			}
		}

		for inIdx, in := range tx.Inputs {
			if in.BoxID == "" {
				return model.ParsedBlock{}, fmt.Errorf("tx %s input %d: missing boxId: %w", tx.ID, inIdx, ierr.ErrBadBlock)
			}
			proof, err := hex.DecodeString(in.SpendingProof.ProofBytes)
			if err != nil {
				return model.ParsedBlock{}, fmt.Errorf("tx %s input %d: non-hex proofBytes: %w", tx.ID, inIdx, ierr.ErrBadBlock)
			}

			out.Inputs = append(out.Inputs, model.Input{
				BoxID:      in.BoxID,
				TxID:       tx.ID,
				IndexInTx:  inIdx,
				ProofBytes: proof,
			})
		}
	}

	return out, nil
}
