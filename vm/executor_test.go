package vm_test

import (
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/config"
	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/internal/testutil"
	"github.com/tolelom/tolbook/sale"
	"github.com/tolelom/tolbook/storage"
	"github.com/tolelom/tolbook/vm"
	"github.com/tolelom/tolbook/wallet"

	_ "github.com/tolelom/tolbook/vm/modules/asset"
	_ "github.com/tolelom/tolbook/vm/modules/books"
	_ "github.com/tolelom/tolbook/vm/modules/economy"
)

const chainID = "tolbook-test"

type harness struct {
	t        *testing.T
	state    *storage.StateDB
	exec     *vm.Executor
	block    *core.Block
	seen     []events.Event
	nonces   map[string]uint64
	owner    *wallet.Wallet
	treasury *wallet.Wallet
	buyer    *wallet.Wallet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, state: testutil.NewStateDB(), nonces: map[string]uint64{}}
	var err error
	h.owner, err = wallet.Generate()
	require.NoError(t, err)
	h.treasury, err = wallet.Generate()
	require.NoError(t, err)
	h.buyer, err = wallet.Generate()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Genesis.ChainID = chainID
	cfg.Genesis.Alloc[h.owner.PubKey()] = "1000"
	cfg.Genesis.Alloc[h.buyer.PubKey()] = "100"
	cfg.Genesis.Sale.Treasury = h.treasury.PubKey()
	genesis, err := config.CreateGenesisBlock(cfg, h.state, h.owner.PrivKey())
	require.NoError(t, err)

	emitter := events.NewEmitter()
	for _, typ := range []events.EventType{
		events.EventTxExecuted, events.EventAssetMinted, events.EventBookAllocated,
		events.EventBookOpened, events.EventTokenTransfer,
	} {
		emitter.Subscribe(typ, func(ev events.Event) { h.seen = append(h.seen, ev) })
	}
	h.exec = vm.NewExecutor(h.state, emitter)
	h.exec.SetChainID(chainID)
	h.block = core.NewBlockAt(1, genesis.Hash, h.owner.PubKey(), time.Now().UnixNano(), nil)
	return h
}

func (h *harness) tx(w *wallet.Wallet, typ core.TxType, payload any) *core.Transaction {
	h.t.Helper()
	tx, err := w.NewTx(chainID, typ, h.nonces[w.PubKey()], 1, payload)
	require.NoError(h.t, err)
	return tx
}

func (h *harness) run(w *wallet.Wallet, typ core.TxType, payload any) error {
	err := h.exec.ExecuteTx(h.block, h.tx(w, typ, payload))
	if err == nil {
		h.nonces[w.PubKey()]++
	}
	return err
}

func (h *harness) must(w *wallet.Wallet, typ core.TxType, payload any) {
	h.t.Helper()
	require.NoError(h.t, h.run(w, typ, payload))
}

func (h *harness) balance(w *wallet.Wallet) uint64 {
	h.t.Helper()
	acc, err := h.state.GetAccount(w.PubKey())
	require.NoError(h.t, err)
	return acc.Balance.Uint64()
}

func (h *harness) count(typ events.EventType) int {
	n := 0
	for _, ev := range h.seen {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestTransferChargesFeeAndNonce(t *testing.T) {
	h := newHarness(t)
	h.must(h.buyer, core.TxTransfer, core.TransferPayload{To: h.treasury.PubKey(), Amount: uint256.NewInt(40)})

	require.Equal(t, uint64(59), h.balance(h.buyer))
	require.Equal(t, uint64(40), h.balance(h.treasury))
	require.Equal(t, 1, h.count(events.EventTokenTransfer))
	require.Equal(t, 1, h.count(events.EventTxExecuted))
}

func TestFailedTxRevertsEverything(t *testing.T) {
	h := newHarness(t)
	err := h.run(h.buyer, core.TxTransfer, core.TransferPayload{To: h.treasury.PubKey(), Amount: uint256.NewInt(1_000)})
	require.Error(t, err)

	acc, err := h.state.GetAccount(h.buyer.PubKey())
	require.NoError(t, err)
	require.Equal(t, uint64(100), acc.Balance.Uint64(), "fee is reverted with the call")
	require.Zero(t, acc.Nonce)
	require.Empty(t, h.seen, "no events escape a reverted tx")
}

func TestExecutorRejects(t *testing.T) {
	h := newHarness(t)
	pay := core.TransferPayload{To: h.treasury.PubKey(), Amount: uint256.NewInt(1)}

	replay := h.tx(h.buyer, core.TxTransfer, pay)
	require.NoError(t, h.exec.ExecuteTx(h.block, replay))
	h.nonces[h.buyer.PubKey()]++
	require.ErrorContains(t, h.exec.ExecuteTx(h.block, replay), "invalid nonce")

	foreign, err := h.buyer.NewTx("other-chain", core.TxTransfer, 1, 1, pay)
	require.NoError(t, err)
	require.ErrorContains(t, h.exec.ExecuteTx(h.block, foreign), "chain id mismatch")

	upper := h.tx(h.buyer, core.TxTransfer, pay)
	upper.From = strings.ToUpper(upper.From)
	require.Error(t, h.exec.ExecuteTx(h.block, upper))

	unknown := h.tx(h.buyer, core.TxType("no_such_type"), struct{}{})
	require.ErrorIs(t, h.exec.ExecuteTx(h.block, unknown), vm.ErrUnknownTxType)

	garbled := h.tx(h.buyer, core.TxTransfer, pay)
	garbled.Payload = []byte(`{"amount":"not-a-number"}`)
	garbled.Sign(h.buyer.PrivKey())
	require.ErrorIs(t, h.exec.ExecuteTx(h.block, garbled), vm.ErrBadPayload)
}

func TestSaleThroughTransactions(t *testing.T) {
	h := newHarness(t)
	now := h.block.UnixTime()
	vault := h.owner.PubKey()

	h.must(h.owner, core.TxRegisterTemplate, core.RegisterTemplatePayload{ID: "book-asset", Name: "Book asset"})
	h.must(h.owner, core.TxMintAsset, core.MintAssetPayload{TemplateID: "book-asset", Owner: vault})
	var assetID string
	for _, ev := range h.seen {
		if ev.Type == events.EventAssetMinted {
			assetID, _ = ev.Data["asset_id"].(string)
		}
	}
	require.NotEmpty(t, assetID)

	tools := [core.ToolsPerBook]uint64{100, 101, 102}
	h.must(h.owner, core.TxMintTools, core.MintToolsPayload{To: vault, IDs: tools[:], Amounts: []uint64{1, 1, 1}})
	h.must(h.owner, core.TxRegisterBooks, core.RegisterBooksPayload{Books: []core.BookSpec{
		{ID: 1, AssetID: assetID, ToolIDs: tools, Category: "rare"},
	}})
	h.must(h.owner, core.TxLoadBucket, core.LoadBucketPayload{Bucket: 0, IDs: []uint64{1}, Counts: [core.NumCategories]uint64{1}})
	h.must(h.owner, core.TxConfigureRound, core.ConfigureRoundPayload{Round: 4, Start: now - 10, End: now + 10})
	h.must(h.owner, core.TxConfigurePayment, core.ConfigurePaymentPayload{Round: 4, Single: uint256.NewInt(50)})

	// a buyer cannot administer the sale
	err := h.run(h.buyer, core.TxSetMaxPerTx, core.SetMaxPerTxPayload{MaxPerTx: 99})
	require.ErrorIs(t, err, sale.ErrUnauthorized)

	h.must(h.buyer, core.TxBuyBooks, core.BuyBooksPayload{Quantity: 1, Mode: core.PaySingle, Value: uint256.NewInt(60)})
	require.Equal(t, uint64(100-1-50), h.balance(h.buyer), "excess value is refunded")
	require.Equal(t, uint64(50), h.balance(h.treasury))
	require.Equal(t, 1, h.count(events.EventBookAllocated))

	book, err := h.state.GetBook(1)
	require.NoError(t, err)
	require.Equal(t, h.buyer.PubKey(), book.Holder)
	require.Equal(t, uint8(4), book.Round)

	// inventory is gone; the buyer can pay, so only the draw fails
	h.must(h.owner, core.TxTransfer, core.TransferPayload{To: h.buyer.PubKey(), Amount: uint256.NewInt(100)})
	require.Equal(t, uint64(149), h.balance(h.buyer))
	err = h.run(h.buyer, core.TxBuyBooks, core.BuyBooksPayload{Quantity: 1, Mode: core.PaySingle, Value: uint256.NewInt(50)})
	require.ErrorIs(t, err, sale.ErrPoolExhausted)
	require.Equal(t, uint64(149), h.balance(h.buyer), "payment and fee revert with the failed draw")
	require.Equal(t, uint64(50), h.balance(h.treasury))

	h.must(h.buyer, core.TxOpenBooks, core.OpenBooksPayload{BookIDs: []uint64{1}})
	asset, err := h.state.GetAsset(assetID)
	require.NoError(t, err)
	require.Equal(t, h.buyer.PubKey(), asset.Owner)
	require.True(t, asset.Revealed)
	for _, id := range tools {
		bal, err := h.state.GetToolBalance(h.buyer.PubKey(), id)
		require.NoError(t, err)
		require.Equal(t, uint64(1), bal)
	}
	opened, err := h.state.IsBookOpened(1)
	require.NoError(t, err)
	require.True(t, opened)
	require.Equal(t, 1, h.count(events.EventBookOpened))

	err = h.run(h.buyer, core.TxOpenBooks, core.OpenBooksPayload{BookIDs: []uint64{1}})
	require.ErrorIs(t, err, sale.ErrAlreadyOpened)
}
