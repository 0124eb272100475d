// Package model defines the canonical entities the indexer projects into
// the store: blocks, transactions, boxes (outputs), inputs, assets, tokens,
// token balances, and the singleton sync status row.
package model

// CoinbaseSentinel is the well-known placeholder box id used by emission
// inputs. An Input referencing it is parsed and stored but never looked up
// against outputs and never produces a balance delta.
const CoinbaseSentinel = "0000000000000000000000000000000000000000000000000000000000000000"

// ERGTokenID is the reserved synthetic token id used for native ERG balance
// deltas, alongside the real token ids carried by box assets.
const ERGTokenID = "ERG"

// GenesisParentID is the parent id recorded on the height-0 block.
const GenesisParentID = CoinbaseSentinel

// Block is one entry of the main chain, or an orphan retained for audit.
type Block struct {
	ID             string
	HeaderID       string
	ParentID       string
	Height         uint64
	TimestampMs    int64
	Difficulty     string
	Size           int
	TxCount        int
	MinerAddress   string
	MainChain      bool
	Version        int
	PowSolutions   []byte // opaque JSON
}

// Transaction belongs to exactly one Block.
type Transaction struct {
	ID           string
	BlockID      string
	IndexInBlock int
	TimestampMs  int64
	Size         int
	MainChain    bool
}

// RegisterValue is one entry of an Output's additional_registers map.
type RegisterValue struct {
	Type  string
	Value string
}

// Output (a "box" in Ergo terms) is a UTxO record created by a Transaction.
type Output struct {
	BoxID               string
	TxID                string
	IndexInTx           int
	Value               uint64
	CreationHeight       uint64
	Address             string
	ErgoTree            string
	AdditionalRegisters map[string]RegisterValue
	SpentByTxID         string // empty when unspent
}

// Input references an Output it consumes. The store keys inputs by
// (TxID, IndexInTx); no uniqueness is enforced on (BoxID, TxID).
type Input struct {
	BoxID      string
	TxID       string
	IndexInTx  int
	ProofBytes []byte
	Extension  []byte // opaque JSON
}

// IsCoinbase reports whether this input references the emission sentinel.
func (i Input) IsCoinbase() bool {
	return i.BoxID == CoinbaseSentinel
}

// Asset is one token amount carried by an Output. The store keys assets by
// (BoxID, IndexInOutputs); no uniqueness is enforced on (TokenID, BoxID).
type Asset struct {
	TokenID        string
	BoxID          string
	IndexInOutputs int
	Amount         uint64
	Name           string
	Decimals       int
}

// Token is the registry row for a token id, populated best-effort from the
// minting transaction's registers.
type Token struct {
	TokenID          string
	Name             string
	Description      string
	Decimals         int
	TotalSupply      uint64
	FirstSeenHeight  uint64
}

// TokenBalance is the derived per-address holding for one token id.
type TokenBalance struct {
	TokenID     string
	Address     string
	Balance     uint64
	LastUpdated int64
}

// BalanceDelta is a signed adjustment to one (TokenID, Address) balance,
// emitted by the Projector and applied atomically by the Store.
type BalanceDelta struct {
	TokenID string
	Address string
	Delta   int64
}

// SyncStatus is the singleton row describing ingestion progress.
type SyncStatus struct {
	CurrentHeight  uint64
	TargetHeight   uint64
	IsSyncing      bool
	LastBlockTime  int64
	UpdatedAt      int64
}

// ParsedBlock is the Parser's pure output for one fetched block: everything
// the Projector needs to commit in a single transaction.
type ParsedBlock struct {
	Block        Block
	Transactions []Transaction
	Outputs      []Output
	Inputs       []Input
	Assets       []Asset
}
