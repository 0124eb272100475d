// Package crypto provides non-consensus cryptographic primitives used by
// the indexer outside of address derivation (which lives in pkg/types
// alongside the Address type it produces).
package crypto

import (
	"github.com/Klingon-tech/ergo-indexer/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data. No other package of
// the indexer calls it (the NodeClient cache is keyed by node ids); on-chain
// identity always comes from the node's own ids, never from this hash.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// HashConcat hashes the concatenation of two hashes.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
