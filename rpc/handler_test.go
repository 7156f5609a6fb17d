package rpc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/config"
	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/indexer"
	"github.com/tolelom/tolbook/internal/testutil"
	"github.com/tolelom/tolbook/storage"
	"github.com/tolelom/tolbook/vm"
	"github.com/tolelom/tolbook/wallet"

	_ "github.com/tolelom/tolbook/vm/modules/economy"
)

const testChainID = "tolbook-test"

type fixture struct {
	handler *Handler
	state   *storage.StateDB
	emitter *events.Emitter
	mempool *core.Mempool
	owner   *wallet.Wallet
	buyer   *wallet.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner, err := wallet.Generate()
	require.NoError(t, err)
	buyer, err := wallet.Generate()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Genesis.ChainID = testChainID
	cfg.Genesis.Alloc[buyer.PubKey()] = "250"
	cfg.Genesis.SecondaryAlloc[buyer.PubKey()] = "7"

	state := testutil.NewStateDB()
	bc := core.NewBlockchain(testutil.NewBlockStore())
	genesis, err := config.CreateGenesisBlock(cfg, state, owner.PrivKey())
	require.NoError(t, err)
	require.NoError(t, bc.AddBlock(genesis))

	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter, nil)
	mempool := core.NewMempool()
	return &fixture{
		handler: NewHandler(bc, mempool, state.Committed(), idx, testChainID),
		state:   state,
		emitter: emitter,
		mempool: mempool,
		owner:   owner,
		buyer:   buyer,
	}
}

// call dispatches method and round-trips the result through JSON, as a
// client would see it.
func (f *fixture) call(t *testing.T, method string, params any) (json.RawMessage, *Error) {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	resp := f.handler.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
	if resp.Error != nil {
		return nil, resp.Error
	}
	out, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	return out, nil
}

func (f *fixture) ok(t *testing.T, method string, params, into any) {
	t.Helper()
	raw, rpcErr := f.call(t, method, params)
	require.Nil(t, rpcErr, "%s failed: %v", method, rpcErr)
	require.NoError(t, json.Unmarshal(raw, into))
}

func TestChainQueries(t *testing.T) {
	f := newFixture(t)

	var height int64
	f.ok(t, "getBlockHeight", nil, &height)
	require.Zero(t, height)

	var block core.Block
	f.ok(t, "getBlock", map[string]any{"height": 0}, &block)
	require.Equal(t, f.owner.PubKey(), block.Header.Proposer)

	_, rpcErr := f.call(t, "getBlock", map[string]any{"height": 9})
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeNotFound, rpcErr.Code)

	var bal struct {
		Address   string `json:"address"`
		Balance   string `json:"balance"`
		Secondary string `json:"secondary"`
		Nonce     uint64 `json:"nonce"`
	}
	f.ok(t, "getBalance", map[string]string{"address": strings.ToUpper(f.buyer.PubKey())}, &bal)
	require.Equal(t, f.buyer.PubKey(), bal.Address, "addresses are normalised")
	require.Equal(t, "250", bal.Balance)
	require.Equal(t, "7", bal.Secondary)

	_, rpcErr = f.call(t, "getBalance", map[string]string{"address": "nonexistent"})
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)

	_, rpcErr = f.call(t, "getBalance", nil)
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)

	_, rpcErr = f.call(t, "getAsset", map[string]string{"id": "missing"})
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeNotFound, rpcErr.Code)

	_, rpcErr = f.call(t, "noSuchMethod", nil)
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestQueriesReadCommittedState(t *testing.T) {
	f := newFixture(t)
	acc, err := f.state.GetAccount(f.buyer.PubKey())
	require.NoError(t, err)
	acc.Balance = uint256.NewInt(1)
	require.NoError(t, f.state.SetAccount(acc))

	var bal struct {
		Balance string `json:"balance"`
	}
	f.ok(t, "getBalance", map[string]string{"address": f.buyer.PubKey()}, &bal)
	require.Equal(t, "250", bal.Balance, "an unfinished block is not visible")

	require.NoError(t, f.state.Commit())
	f.ok(t, "getBalance", map[string]string{"address": f.buyer.PubKey()}, &bal)
	require.Equal(t, "1", bal.Balance)
}

func TestSendTx(t *testing.T) {
	f := newFixture(t)

	tx, err := f.buyer.Transfer(testChainID, f.owner.PubKey(), uint256.NewInt(5), 0, 1)
	require.NoError(t, err)
	var sent map[string]string
	f.ok(t, "sendTx", tx, &sent)
	require.Equal(t, tx.ID, sent["tx_id"])

	var size int
	f.ok(t, "getMempoolSize", nil, &size)
	require.Equal(t, 1, size)

	_, rpcErr := f.call(t, "sendTx", tx)
	require.NotNil(t, rpcErr, "duplicate tx")
	require.Equal(t, CodeInvalidRequest, rpcErr.Code)

	foreign, err := f.buyer.Transfer("other-chain", f.owner.PubKey(), uint256.NewInt(5), 1, 1)
	require.NoError(t, err)
	_, rpcErr = f.call(t, "sendTx", foreign)
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)
	require.Contains(t, rpcErr.Message, "chain ID mismatch")

	odd, err := f.buyer.NewTx(testChainID, core.TxType("mystery"), 1, 1, struct{}{})
	require.NoError(t, err)
	_, rpcErr = f.call(t, "sendTx", odd)
	require.NotNil(t, rpcErr)
	require.Contains(t, rpcErr.Message, "unknown tx type")
	require.Equal(t, 1, f.mempool.Size())

	var types []core.TxType
	f.ok(t, "getTxTypes", nil, &types)
	require.Contains(t, types, core.TxTransfer)
	require.Equal(t, vm.RegisteredTypes(), types)
}

func TestSaleQueries(t *testing.T) {
	f := newFixture(t)

	var cfg core.SaleConfig
	f.ok(t, "getSaleConfig", nil, &cfg)
	require.Equal(t, f.owner.PubKey(), cfg.Owner, "owner defaults to the genesis proposer")
	require.Equal(t, uint64(10), cfg.MaxPerTx)

	var round core.Round
	f.ok(t, "getCurrentRound", nil, &round)
	require.Equal(t, core.AdminRound, round.ID)

	f.ok(t, "getRound", map[string]uint8{"round": 3}, &round)
	require.Equal(t, core.RoundProof, round.Kind)
	require.False(t, round.Active)

	_, rpcErr := f.call(t, "getRound", map[string]uint8{"round": 5})
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)

	var container struct {
		Container core.Container `json:"container"`
		Remaining uint64         `json:"remaining"`
	}
	f.ok(t, "getContainer", core.BucketRef(3), &container)
	require.Zero(t, container.Remaining)
	_, rpcErr = f.call(t, "getContainer", core.PoolRef(3))
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)

	var allowance core.Allowance
	f.ok(t, "getAllowance", map[string]any{"round": 1, "address": f.buyer.PubKey()}, &allowance)
	require.Zero(t, allowance.Allowance)
	_, rpcErr = f.call(t, "getAllowance", map[string]any{"round": 4, "address": f.buyer.PubKey()})
	require.NotNil(t, rpcErr, "round 4 has no allowances")

	var eligible map[string]bool
	f.ok(t, "isEligible", map[string]any{"address": f.buyer.PubKey()}, &eligible)
	require.False(t, eligible["eligible"], "no merkle root is set")

	var top []core.MinterEntry
	f.ok(t, "topMinters", nil, &top)
	require.Empty(t, top)

	var total struct {
		Total uint64 `json:"total"`
	}
	f.ok(t, "getMinterTotal", map[string]string{"address": f.buyer.PubKey()}, &total)
	require.Zero(t, total.Total)

	_, rpcErr = f.call(t, "getBook", map[string]uint64{"id": 42})
	require.NotNil(t, rpcErr)
	require.Equal(t, CodeNotFound, rpcErr.Code)
}

func TestBooksByHolderFollowsEvents(t *testing.T) {
	f := newFixture(t)
	holder := f.buyer.PubKey()

	f.emitter.Emit(events.Event{Type: events.EventBookAllocated, Data: map[string]any{"to": holder, "book_id": uint64(7)}})
	f.emitter.Emit(events.Event{Type: events.EventBookAllocated, Data: map[string]any{"to": holder, "book_id": uint64(9)}})

	var ids []uint64
	f.ok(t, "getBooksByHolder", map[string]string{"holder": holder}, &ids)
	require.ElementsMatch(t, []uint64{7, 9}, ids)

	f.emitter.Emit(events.Event{Type: events.EventBookOpened, Data: map[string]any{"holder": holder, "book_id": uint64(7)}})
	f.ok(t, "getBooksByHolder", map[string]string{"holder": holder}, &ids)
	require.Equal(t, []uint64{9}, ids)

	var assets []string
	f.ok(t, "getAssetsByOwner", map[string]string{"owner": holder}, &assets)
	require.Empty(t, assets)
}
