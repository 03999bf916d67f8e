// Package config loads the agent's environment options (§6.4) and its
// per-chain contract/deployment configuration (teacher's configs/config.go
// YAML pattern, generalized from one chain to many).
package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// Environment names the deployment environment. LoadEnv validates it and
// stores it on EnvConfig; it does not select the data-file path or the
// deployment-address source, which cmd/agent takes from its -data-dir and
// -deployments flags in every environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTestnet     Environment = "testnet"
	EnvProduction  Environment = "production"
)

var privateKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// EnvConfig is the process-wide configuration read from the environment at
// startup, per §6.4.
type EnvConfig struct {
	Environment     Environment
	DefaultChainID  int64
	StatsInterval   time.Duration
	RPCEndpoints    map[int64]string // chain id -> RPC_<CHAIN> value
	VaultPrivateKey *ecdsa.PrivateKey
	AlertWebhookURL string
}

// LoadEnv reads .env (if present, via godotenv — already a teacher
// dependency) and then the recognized environment variables. Missing or
// malformed required values are configuration errors (#1 in the error
// taxonomy) and are fatal at startup.
func LoadEnv(chainIDs []int64) (*EnvConfig, error) {
	_ = godotenv.Load() // optional: production deploys set real env vars directly

	env := Environment(os.Getenv("ENVIRONMENT"))
	switch env {
	case EnvDevelopment, EnvTestnet, EnvProduction:
	case "":
		env = EnvDevelopment
	default:
		return nil, fmt.Errorf("config: unrecognized ENVIRONMENT %q", env)
	}

	defaultChainID, err := parseChainID(os.Getenv("CHAIN_ID"))
	if err != nil {
		return nil, fmt.Errorf("config: CHAIN_ID: %w", err)
	}

	intervalMs := int64(30_000)
	if raw := os.Getenv("AGENT_INTERVAL_MS"); raw != "" {
		intervalMs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: AGENT_INTERVAL_MS: %w", err)
		}
	}

	rpcEndpoints := make(map[int64]string, len(chainIDs))
	for _, id := range chainIDs {
		key := fmt.Sprintf("RPC_%d", id)
		value := os.Getenv(key)
		if value == "" {
			return nil, fmt.Errorf("config: %s not set", key)
		}
		rpcEndpoints[id] = value
	}

	rawKey := os.Getenv("VAULT_PRIVATE_KEY")
	if rawKey == "" {
		return nil, fmt.Errorf("config: VAULT_PRIVATE_KEY not set")
	}
	if !privateKeyPattern.MatchString(rawKey) {
		return nil, fmt.Errorf("config: VAULT_PRIVATE_KEY must be 0x + 64 hex chars")
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(rawKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("config: VAULT_PRIVATE_KEY: %w", err)
	}

	return &EnvConfig{
		Environment:     env,
		DefaultChainID:  defaultChainID,
		StatsInterval:   time.Duration(intervalMs) * time.Millisecond,
		RPCEndpoints:    rpcEndpoints,
		VaultPrivateKey: pk,
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
	}, nil
}

func parseChainID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
