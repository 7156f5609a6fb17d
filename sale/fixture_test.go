package sale_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/internal/testutil"
	"github.com/tolelom/tolbook/ledger"
	"github.com/tolelom/tolbook/sale"
	"github.com/tolelom/tolbook/storage"
)

var (
	owner    = addr(0x01)
	treasury = addr(0x02)
	vault    = addr(0x03)
	alice    = addr(0xa1)
	bob      = addr(0xb2)
	carol    = addr(0xc3)
)

var bookTools = [core.ToolsPerBook]uint64{100, 101, 102}

func addr(b byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", b), 32)
}

type fixture struct {
	t      *testing.T
	state  *storage.StateDB
	ledger *ledger.Set
	engine *sale.Engine
	events *events.Buffer
	now    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, state: testutil.NewStateDB(), events: &events.Buffer{}, now: 1_000}
	f.ledger = ledger.New(f.state, nil, "fixture", 1)
	f.engine = sale.NewEngine(f.state, sale.Ledgers{
		Native:    f.ledger.Native,
		Secondary: f.ledger.Secondary,
		Assets:    f.ledger.Assets,
		Tools:     f.ledger.Tools,
	})
	f.engine.SetNowFunc(func() int64 { return f.now })
	f.engine.SetSink(f.events)
	f.engine.SetEntropy([]byte("prev-block"))
	require.NoError(t, f.engine.Initialize(sale.Params{
		Owner: owner, Treasury: treasury, Vault: vault, MaxPerTx: 10,
	}))
	require.NoError(t, f.ledger.Assets.RegisterTemplate(owner, &core.AssetTemplate{ID: "book-asset", Name: "Book asset"}))
	return f
}

// addBooks mints a vault-held asset plus tools for each id and registers
// the books. Even ids carry a bonus collectible.
func (f *fixture) addBooks(ids ...uint64) {
	f.t.Helper()
	specs := make([]core.BookSpec, 0, len(ids))
	for _, id := range ids {
		mint := ledger.New(f.state, nil, fmt.Sprintf("mint-%d", id), 1)
		asset, err := mint.Assets.Mint("book-asset", vault, nil, f.now)
		require.NoError(f.t, err)
		require.NoError(f.t, mint.Tools.Mint(vault, bookTools[:], []uint64{1, 1, 1}))
		spec := core.BookSpec{ID: id, AssetID: asset.ID, ToolIDs: bookTools, Category: "common"}
		if id%2 == 0 {
			spec.BonusID = 900
			require.NoError(f.t, mint.Tools.Mint(vault, []uint64{900}, []uint64{1}))
		}
		specs = append(specs, spec)
	}
	require.NoError(f.t, f.engine.RegisterBooks(owner, specs))
}

func (f *fixture) openRound(id uint8) {
	f.t.Helper()
	require.NoError(f.t, f.engine.ConfigureRound(owner, id, f.now-10, f.now+10))
}

func (f *fixture) fund(who string, native uint64) {
	f.t.Helper()
	require.NoError(f.t, f.ledger.Native.Credit(who, uint256.NewInt(native)))
}

func (f *fixture) balance(who string) uint64 {
	f.t.Helper()
	bal, err := f.ledger.Native.BalanceOf(who)
	require.NoError(f.t, err)
	return bal.Uint64()
}

func (f *fixture) buy(who string, q uint64) (*sale.Receipt, error) {
	return f.engine.Buy(who, sale.BuyRequest{Quantity: q, Mode: core.PaySingle})
}

func (f *fixture) count(typ events.EventType) int {
	n := 0
	for _, ev := range f.events.Events() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
