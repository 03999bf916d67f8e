package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ContractAddresses are one chain's known deployment addresses, loaded
// from the deployments YAML file (LoadDeployments) in every environment;
// there is no built-in address table. Field layout mirrors a single-contract YAML
// client record, generalized from one contract entry to the full set
// §6.4 names.
type ContractAddresses struct {
	PoolManager     string `yaml:"poolManager"`
	StateView       string `yaml:"stateView"`
	Quoter          string `yaml:"quoter"`
	WETH            string `yaml:"weth"`
	USDC            string `yaml:"usdc"`
	UniversalRouter string `yaml:"universalRouter"`
	Vault           string `yaml:"vault,omitempty"` // parent chain only
}

// PoolConfig names the default pool a chain's AddLiquidity/RemoveLiquidity/
// SwapForBalance definitions operate against.
type PoolConfig struct {
	Address     string `yaml:"address"`
	QueryPool   string `yaml:"queryPool,omitempty"` // sibling pool used for AddLiquidity's tick sanity check
	Token0      string `yaml:"token0"`
	Token1      string `yaml:"token1"`
	TickSpacing int    `yaml:"tickSpacing"`
}

// ChainDeployment is one chain's full deployment record.
type ChainDeployment struct {
	ChainID   int64              `yaml:"chainId"`
	Contracts ContractAddresses  `yaml:"contracts"`
	Pool      PoolConfig         `yaml:"pool"`
	ABIPaths  map[string]string  `yaml:"abiPaths"` // contract role -> ABI JSON path
}

// Deployments is keyed by chain id, the same map-by-name YAML shape
// generalized one level up (per chain, not per contract).
type Deployments map[int64]ChainDeployment

// LoadDeployments reads a YAML file listing every chain's deployment
// record. cmd/agent uses it in every environment, including production.
func LoadDeployments(path string) (Deployments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	var raw struct {
		Chains []ChainDeployment `yaml:"chains"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse deployments YAML: %w", err)
	}

	deployments := make(Deployments, len(raw.Chains))
	for _, c := range raw.Chains {
		deployments[c.ChainID] = c
	}
	return deployments, nil
}
