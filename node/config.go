package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the top-level settings for one AT-node/swap-node instance:
// where it stores its bbolt database, which foreign-chain network it
// trusts for HTLC swaps, and the AT engine's per-round limits.
type Config struct {
	Network string `json:"network"`
	DataDir string `json:"data_dir"`

	ChainIDHex string `json:"chain_id_hex"`

	ForeignNetwork string `json:"foreign_network"` // "mainnet", "testnet3", "regtest"

	MaxStepsPerRound uint32 `json:"max_steps_per_round"`
	MinutesPerBlock  uint32 `json:"minutes_per_block"`

	LogLevel string `json:"log_level"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedForeignNetworks = map[string]struct{}{
	"mainnet":  {},
	"testnet3": {},
	"regtest":  {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".qortal-node"
	}
	return filepath.Join(home, ".qortal-node")
}

func DefaultConfig() Config {
	return Config{
		Network:          "devnet",
		DataDir:          DefaultDataDir(),
		ChainIDHex:       "00",
		ForeignNetwork:   "mainnet",
		MaxStepsPerRound: 500,
		MinutesPerBlock:  1,
		LogLevel:         "info",
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if strings.TrimSpace(cfg.ChainIDHex) == "" {
		return errors.New("chain_id_hex is required")
	}
	if _, ok := allowedForeignNetworks[strings.ToLower(strings.TrimSpace(cfg.ForeignNetwork))]; !ok {
		return fmt.Errorf("invalid foreign_network %q", cfg.ForeignNetwork)
	}
	if cfg.MaxStepsPerRound == 0 {
		return errors.New("max_steps_per_round must be > 0")
	}
	if cfg.MinutesPerBlock == 0 {
		return errors.New("minutes_per_block must be > 0")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	return nil
}
