package projector

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/Klingon-tech/ergo-indexer/internal/model"
)

// sigmaCollByte is the ErgoTree type prefix for a Coll[Byte] register value.
const sigmaCollByte = 0x0e

// sigmaInt is the ErgoTree type prefix for an SInt register value.
const sigmaInt = 0x04

// decodeRegisterString best-effort decodes a register's hex-encoded
// Coll[Byte] serialization (a type-prefix byte, a VLQ length, then the raw
// bytes) into its string contents. Ergo mint conventions store token name,
// description, and decimals this way in R4/R5/R6.
func decodeRegisterString(hexVal string) (string, error) {
	raw, err := hex.DecodeString(hexVal)
	if err != nil {
		return "", fmt.Errorf("non-hex register value: %w", err)
	}
	if len(raw) == 0 || raw[0] != sigmaCollByte {
		return "", fmt.Errorf("register does not start with Coll[Byte] prefix")
	}
	n, consumed, err := decodeVLQ(raw[1:])
	if err != nil {
		return "", err
	}
	body := raw[1+consumed:]
	if uint64(len(body)) < n {
		return "", fmt.Errorf("register length %d exceeds available bytes %d", n, len(body))
	}
	return string(body[:n]), nil
}

// decodeRegisterInt best-effort decodes a register's hex-encoded SInt
// serialization (a type-prefix byte followed by a zig-zag-encoded VLQ) into
// its signed integer value. Ergo mints that encode R6 as a literal Int
// rather than EIP-4's Coll[Byte] digit string use this form.
func decodeRegisterInt(hexVal string) (int, error) {
	raw, err := hex.DecodeString(hexVal)
	if err != nil {
		return 0, fmt.Errorf("non-hex register value: %w", err)
	}
	if len(raw) == 0 || raw[0] != sigmaInt {
		return 0, fmt.Errorf("register does not start with SInt prefix")
	}
	zigzag, _, err := decodeVLQ(raw[1:])
	if err != nil {
		return 0, err
	}
	return int(int64(zigzag>>1) ^ -int64(zigzag&1)), nil
}

// decodeVLQ decodes a base-128 varint (ErgoTree's length encoding) and
// reports how many bytes it consumed.
func decodeVLQ(b []byte) (value uint64, consumed int, err error) {
	var shift uint
	for i, bt := range b {
		value |= uint64(bt&0x7f) << shift
		consumed = i + 1
		if bt&0x80 == 0 {
			return value, consumed, nil
		}
		shift += 7
		if shift > 63 {
			return 0, 0, fmt.Errorf("VLQ too long")
		}
	}
	return 0, 0, fmt.Errorf("truncated VLQ")
}

// mintRegisters holds the best-effort-decoded metadata of a minting output.
type mintRegisters struct {
	Name        string
	Description string
	Decimals    int
}

// extractMintRegisters decodes R4 (name), R5 (description), and R6
// (decimals) from a minting output's registers. R6 is accepted in either of
// the two conventions seen on-chain: a literal SInt, or EIP-4's Coll[Byte]
// decimal digit string. Any individual field that fails to decode is left
// empty/zero rather than failing the whole extraction, matching the
// best-effort contract.
func extractMintRegisters(regs map[string]model.RegisterValue) mintRegisters {
	var m mintRegisters
	if r4, ok := regs["R4"]; ok {
		if name, err := decodeRegisterString(r4.Value); err == nil {
			m.Name = name
		}
	}
	if r5, ok := regs["R5"]; ok {
		if desc, err := decodeRegisterString(r5.Value); err == nil {
			m.Description = desc
		}
	}
	if r6, ok := regs["R6"]; ok {
		if d, err := decodeRegisterInt(r6.Value); err == nil {
			m.Decimals = d
		} else if digits, err := decodeRegisterString(r6.Value); err == nil {
			if d, err := strconv.Atoi(digits); err == nil {
				m.Decimals = d
			}
		}
	}
	return m
}
