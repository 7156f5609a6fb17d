package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/internal/testutil"
)

func newKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return priv
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	owner := newKey(t).Public().Hex()
	path := writeFile(t, "node.yaml", `
data_dir: /var/lib/tolbook
block_interval: 500ms
rpc:
  port: 9000
  rate_per_second: 5
  burst: 10
log:
  preset: production
genesis:
  chain_id: tolbook-test
  alloc:
    `+strings.ToUpper(owner)+`: "1000000000000000000000"
  sale:
    owner: `+owner+`
    max_per_tx: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/tolbook", cfg.DataDir)
	require.Equal(t, 500*time.Millisecond, cfg.BlockInterval)
	require.Equal(t, 9000, cfg.RPC.Port)
	require.Equal(t, 10, cfg.RPC.Burst)
	require.Equal(t, "production", cfg.Log.Preset)
	require.Equal(t, "info", cfg.Log.Level, "unset fields keep defaults")
	require.Equal(t, 500, cfg.MaxBlockTxs)
	require.Equal(t, uint64(3), cfg.Genesis.Sale.MaxPerTx)

	alloc, err := parseAlloc(cfg.Genesis.Alloc)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", alloc[owner].Dec())
}

func TestLoadJSONAndSaveRoundTrip(t *testing.T) {
	path := writeFile(t, "node.json", `{"node_id":"n1","genesis":{"chain_id":"legacy"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "n1", cfg.NodeID)
	require.Equal(t, "legacy", cfg.Genesis.ChainID)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(cfg, out))
	again, err := Load(out)
	require.NoError(t, err)
	require.Equal(t, cfg.NodeID, again.NodeID)
	require.Equal(t, cfg.BlockInterval, again.BlockInterval)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"missing chain id":  func(c *Config) { c.Genesis.ChainID = " " },
		"bad alloc address": func(c *Config) { c.Genesis.Alloc["nothex"] = "1" },
		"bad alloc amount": func(c *Config) {
			c.Genesis.SecondaryAlloc[strings.Repeat("ab", 32)] = "12abc"
		},
		"bad sequencer":   func(c *Config) { c.Sequencer = "abc" },
		"bad sale vault":  func(c *Config) { c.Genesis.Sale.Vault = "xyz" },
		"negative burst":  func(c *Config) { c.RPC.Burst = -1 },
		"negative blocks": func(c *Config) { c.MaxBlockTxs = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, DefaultConfig().Validate())
}

func TestCreateGenesisBlock(t *testing.T) {
	seq := newKey(t)
	treasury := newKey(t).Public().Hex()
	buyer := newKey(t).Public().Hex()

	cfg := DefaultConfig()
	cfg.Genesis.Alloc[buyer] = "500"
	cfg.Genesis.SecondaryAlloc[buyer] = "70"
	cfg.Genesis.Sale.Treasury = treasury

	state := testutil.NewStateDB()
	block, err := CreateGenesisBlock(cfg, state, seq)
	require.NoError(t, err)
	require.Equal(t, int64(0), block.Header.Height)
	require.True(t, IsGenesisHash(block.Header.PrevHash))
	require.NoError(t, block.Verify(seq.Public()))
	require.Equal(t, crypto.Hash([]byte(cfg.Genesis.ChainID)), block.Header.TxRoot)

	acc, err := state.GetAccount(buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(500), acc.Balance.Uint64())
	sec, err := state.GetSecondaryBalance(buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(70), sec.Uint64())

	sc, err := state.GetSaleConfig()
	require.NoError(t, err)
	require.Equal(t, seq.Public().Hex(), sc.Owner, "owner defaults to the sequencer")
	require.Equal(t, seq.Public().Hex(), sc.Vault)
	require.Equal(t, treasury, sc.Treasury)
	require.Equal(t, uint64(10), sc.MaxPerTx)

	admin, err := state.GetRound(core.AdminRound)
	require.NoError(t, err)
	require.True(t, admin.Active)

	_, err = CreateGenesisBlock(cfg, state, seq)
	require.Error(t, err, "sale cannot be initialized twice")
}

func TestIsGenesisHash(t *testing.T) {
	require.True(t, IsGenesisHash(GenesisHash))
	require.False(t, IsGenesisHash(strings.Repeat("0", 63)+"1"))
	require.False(t, IsGenesisHash("00"))
}
