package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// AddressSize is the length of the script hash embedded in an address, in bytes.
const AddressSize = 32

// Network prefixes for Base58Check address derivation.
const (
	MainnetPrefix byte = 0x00
	TestnetPrefix byte = 0x10
)

// activePrefix is the network prefix used by String() and MarshalJSON().
// Set once at startup via SetNetworkPrefix(). Default is mainnet.
var activePrefix = MainnetPrefix

// SetNetworkPrefix sets the active address network prefix (call once at startup).
func SetNetworkPrefix(prefix byte) {
	activePrefix = prefix
}

// GetNetworkPrefix returns the currently active network prefix.
func GetNetworkPrefix() byte {
	return activePrefix
}

// Address is the raw 32-byte script hash (blake2b-256 of an ergoTree) behind
// a Base58Check-encoded P2S address: prefix || scriptHash || checksum. The
// network prefix is applied only at encode/decode time.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the Base58Check-encoded address under the active network prefix.
func (a Address) String() string {
	return EncodeAddress(activePrefix, a)
}

// Hex returns the raw hex-encoded script hash without prefix or checksum.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the script hash as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a Base58Check string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a Base58Check or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ScriptHash returns the blake2b-256 hash of a serialized ergoTree, the
// value embedded in a P2S address.
func ScriptHash(ergoTree []byte) [AddressSize]byte {
	return blake2b.Sum256(ergoTree)
}

// AddressFromErgoTree derives the canonical address for an ergoTree by
// hashing it and wrapping the result in an Address value.
func AddressFromErgoTree(ergoTree []byte) Address {
	return Address(ScriptHash(ergoTree))
}

// EncodeAddress Base58Check-encodes a script hash under the given network
// prefix: base58(prefix || scriptHash || checksum), where checksum is the
// first 4 bytes of blake2b-256(prefix || scriptHash).
func EncodeAddress(prefix byte, hash Address) string {
	payload := make([]byte, 0, 1+AddressSize+4)
	payload = append(payload, prefix)
	payload = append(payload, hash[:]...)

	sum := blake2b.Sum256(payload)
	payload = append(payload, sum[:4]...)

	return base58.Encode(payload)
}

// DecodeAddress Base58Check-decodes s and verifies its checksum, returning
// the network prefix and the script hash.
func DecodeAddress(s string) (byte, Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return 0, Address{}, fmt.Errorf("invalid base58check address: %w", err)
	}
	if len(raw) != 1+AddressSize+4 {
		return 0, Address{}, fmt.Errorf("address has wrong length: got %d bytes", len(raw))
	}

	prefix := raw[0]
	hash := raw[1 : 1+AddressSize]
	wantChecksum := raw[1+AddressSize:]

	sum := blake2b.Sum256(raw[:1+AddressSize])
	if string(sum[:4]) != string(wantChecksum) {
		return 0, Address{}, fmt.Errorf("address checksum mismatch")
	}

	var a Address
	copy(a[:], hash)
	return prefix, a, nil
}

// ParseAddress parses a Base58Check address (any known network prefix) or a
// raw 64-char hex script hash (for tests and internal use).
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	if isHex64(s) {
		return HexToAddress(s)
	}

	_, hash, err := DecodeAddress(s)
	if err != nil {
		return Address{}, err
	}
	return hash, nil
}

// HexToAddress converts a raw hex string to an Address.
// Returns an error if the string is not exactly 64 hex characters.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// isHex64 returns true if s is exactly 64 hex characters.
func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
