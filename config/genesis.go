package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/ledger"
	"github.com/tolelom/tolbook/sale"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock credits the configured allocations, seeds the sale
// configuration and its admin round, commits the state and returns a signed
// block #0.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposer := proposerPriv.Public().Hex()

	native, err := parseAlloc(cfg.Genesis.Alloc)
	if err != nil {
		return nil, fmt.Errorf("genesis alloc: %w", err)
	}
	secondary, err := parseAlloc(cfg.Genesis.SecondaryAlloc)
	if err != nil {
		return nil, fmt.Errorf("genesis secondary alloc: %w", err)
	}

	ls := ledger.New(state, nil, "genesis", 0)
	for _, addr := range sortedKeys(native) {
		if err := ls.Native.Credit(addr, native[addr]); err != nil {
			return nil, fmt.Errorf("credit %s: %w", addr, err)
		}
	}
	for _, addr := range sortedKeys(secondary) {
		if err := ls.Secondary.Credit(addr, secondary[addr]); err != nil {
			return nil, fmt.Errorf("credit secondary %s: %w", addr, err)
		}
	}

	eng := sale.NewEngine(state, sale.Ledgers{
		Native:    ls.Native,
		Secondary: ls.Secondary,
		Assets:    ls.Assets,
		Tools:     ls.Tools,
	})
	sg := cfg.Genesis.Sale
	if err := eng.Initialize(sale.Params{
		Owner:    orDefault(sg.Owner, proposer),
		Treasury: orDefault(sg.Treasury, proposer),
		Vault:    orDefault(sg.Vault, proposer),
		MaxPerTx: sg.MaxPerTx,
	}); err != nil {
		return nil, fmt.Errorf("initialize sale: %w", err)
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposer, nil)
	block.Header.StateRoot = stateRoot
	// TxRoot carries the chain id so differently configured chains diverge at block 0.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}

func sortedKeys(m map[string]*uint256.Int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
