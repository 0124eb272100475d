package nodeclient

import "encoding/json"

// NodeInfo is the node's /info response, trimmed to the fields the
// SyncController needs to discover the tip.
type NodeInfo struct {
	FullHeight       uint64 `json:"fullHeight"`
	BestHeaderID     string `json:"bestFullHeaderId"`
	HeadersHeight    uint64 `json:"headersHeight"`
}

// Header is a block header as reported by /blocks/{id}/header (and, for the
// selected main-chain entry, by header_at).
type Header struct {
	ID           string          `json:"id"`
	ParentID     string          `json:"parentId"`
	Height       uint64          `json:"height"`
	Timestamp    int64           `json:"timestamp"`
	Difficulty   string          `json:"difficulty"`
	Version      int             `json:"version"`
	MainChain    bool            `json:"mainChain"`
	PowSolutions json.RawMessage `json:"powSolutions,omitempty"`
	Size         int             `json:"size"`
}

// Asset is one token amount carried by an output, as reported by the node.
type Asset struct {
	TokenID string `json:"tokenId"`
	Amount  uint64 `json:"amount"`
}

// Output is a transaction output (box) as reported by the node.
type Output struct {
	BoxID               string            `json:"boxId"`
	Value               uint64            `json:"value"`
	ErgoTree            string            `json:"ergoTree"`
	CreationHeight      uint64            `json:"creationHeight"`
	Assets              []Asset           `json:"assets"`
	AdditionalRegisters map[string]string `json:"additionalRegisters"`
	TransactionID       string            `json:"transactionId"`
	Index               int               `json:"index"`
}

// Input is a transaction input as reported by the node.
type Input struct {
	BoxID         string            `json:"boxId"`
	SpendingProof InputProof        `json:"spendingProof"`
}

// InputProof carries the spending proof bytes and opaque extension map.
type InputProof struct {
	ProofBytes string            `json:"proofBytes"`
	Extension  map[string]string `json:"extension"`
}

// Transaction is a transaction as reported by the node.
type Transaction struct {
	ID      string   `json:"id"`
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
	Size    int      `json:"size"`
}

// FullBlock is a complete block as reported by /blocks/{id}.
type FullBlock struct {
	Header            Header `json:"header"`
	BlockTransactions struct {
		Transactions []Transaction `json:"transactions"`
	} `json:"blockTransactions"`
}
