package chainadapter

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABI reads and parses a standard Hardhat/Foundry-style ABI JSON file
// (a bare array of fragments, the shape go-ethereum's abi.JSON parser
// expects). No prior ABI-loading implementation exists anywhere in this
// codebase (ContractClient's own doc comment notes the same gap), so
// this follows go-ethereum's documented abi.JSON(io.Reader)
// entrypoint directly.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("loadABI %s: %w", path, err)
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("loadABI %s: %w", path, err)
	}
	return parsed, nil
}
