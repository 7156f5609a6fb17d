// Package config loads node configuration and builds the genesis block.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/tolelom/tolbook/crypto"
)

// SaleGenesis seeds the book sale. Empty addresses default to the
// sequencer key.
type SaleGenesis struct {
	Owner    string `yaml:"owner" json:"owner"`
	Treasury string `yaml:"treasury" json:"treasury"`
	Vault    string `yaml:"vault" json:"vault"`
	MaxPerTx uint64 `yaml:"max_per_tx" json:"max_per_tx"`
}

// GenesisConfig describes the chain's initial state. Amounts are decimal
// strings so they survive YAML and JSON without precision loss.
type GenesisConfig struct {
	ChainID        string            `yaml:"chain_id" json:"chain_id"`
	Alloc          map[string]string `yaml:"alloc" json:"alloc"`                     // pubkey hex → native balance
	SecondaryAlloc map[string]string `yaml:"secondary_alloc" json:"secondary_alloc"` // pubkey hex → secondary balance
	Sale           SaleGenesis       `yaml:"sale" json:"sale"`
}

// RPCConfig controls the JSON-RPC listener.
type RPCConfig struct {
	Port          int     `yaml:"port" json:"port"`
	AuthToken     string  `yaml:"auth_token" json:"auth_token"`
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"` // 0 disables limiting
	Burst         int     `yaml:"burst" json:"burst"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Preset string `yaml:"preset" json:"preset"`
	Level  string `yaml:"level" json:"level"`
}

// Config holds all node configuration.
type Config struct {
	NodeID        string        `yaml:"node_id" json:"node_id"`
	DataDir       string        `yaml:"data_dir" json:"data_dir"`
	Sequencer     string        `yaml:"sequencer" json:"sequencer"` // block producer pubkey hex; empty → node key
	BlockInterval time.Duration `yaml:"block_interval" json:"block_interval"`
	MaxBlockTxs   int           `yaml:"max_block_txs" json:"max_block_txs"` // 0 → 500
	RPC           RPCConfig     `yaml:"rpc" json:"rpc"`
	Log           LogConfig     `yaml:"log" json:"log"`
	Genesis       GenesisConfig `yaml:"genesis" json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		BlockInterval: 2 * time.Second,
		MaxBlockTxs:   500,
		RPC: RPCConfig{
			Port:          8545,
			RatePerSecond: 50,
			Burst:         100,
		},
		Log: LogConfig{Preset: "development", Level: "info"},
		Genesis: GenesisConfig{
			ChainID:        "tolbook-dev",
			Alloc:          map[string]string{},
			SecondaryAlloc: map[string]string{},
			Sale:           SaleGenesis{MaxPerTx: 10},
		},
	}
}

// Load reads a config file from path. Files ending in .json are decoded as
// JSON; everything else as YAML. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isJSON(path) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path in the format its extension names.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields the node cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Genesis.ChainID) == "" {
		return errors.New("config: genesis.chain_id is required")
	}
	if c.MaxBlockTxs < 0 {
		return errors.New("config: max_block_txs must not be negative")
	}
	if c.BlockInterval < 0 {
		return errors.New("config: block_interval must not be negative")
	}
	if c.RPC.RatePerSecond < 0 || c.RPC.Burst < 0 {
		return errors.New("config: rpc rate limit must not be negative")
	}
	if c.Sequencer != "" {
		if _, err := crypto.NormalizeAddress(c.Sequencer); err != nil {
			return fmt.Errorf("config: sequencer: %w", err)
		}
	}
	if _, err := parseAlloc(c.Genesis.Alloc); err != nil {
		return fmt.Errorf("config: genesis.alloc: %w", err)
	}
	if _, err := parseAlloc(c.Genesis.SecondaryAlloc); err != nil {
		return fmt.Errorf("config: genesis.secondary_alloc: %w", err)
	}
	for name, addr := range map[string]string{
		"owner":    c.Genesis.Sale.Owner,
		"treasury": c.Genesis.Sale.Treasury,
		"vault":    c.Genesis.Sale.Vault,
	} {
		if addr == "" {
			continue
		}
		if _, err := crypto.NormalizeAddress(addr); err != nil {
			return fmt.Errorf("config: genesis.sale.%s: %w", name, err)
		}
	}
	return nil
}

// parseAlloc decodes a balance map keyed by normalized address.
func parseAlloc(alloc map[string]string) (map[string]*uint256.Int, error) {
	out := make(map[string]*uint256.Int, len(alloc))
	for addr, amount := range alloc {
		norm, err := crypto.NormalizeAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", addr, err)
		}
		v, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("%s: amount %q: %w", addr, amount, err)
		}
		if prev, ok := out[norm]; ok {
			if _, overflow := v.AddOverflow(v, prev); overflow {
				return nil, fmt.Errorf("%s: amount overflows", addr)
			}
		}
		out[norm] = v
	}
	return out, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
