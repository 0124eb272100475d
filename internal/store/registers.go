package store

import (
	"encoding/json"

	"github.com/Klingon-tech/ergo-indexer/internal/model"
)

// encodeRegisters serializes an output's additional registers to the jsonb
// column. A nil/empty map still round-trips as "{}".
func encodeRegisters(regs map[string]model.RegisterValue) ([]byte, error) {
	if regs == nil {
		regs = map[string]model.RegisterValue{}
	}
	return json.Marshal(regs)
}

func decodeRegisters(raw []byte) (map[string]model.RegisterValue, error) {
	if len(raw) == 0 {
		return map[string]model.RegisterValue{}, nil
	}
	var regs map[string]model.RegisterValue
	if err := json.Unmarshal(raw, &regs); err != nil {
		return nil, err
	}
	return regs, nil
}
