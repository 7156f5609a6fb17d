package ledger_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/internal/testutil"
	"github.com/tolelom/tolbook/ledger"
)

const (
	alice = "aa00000000000000000000000000000000000000000000000000000000000000"
	bob   = "bb00000000000000000000000000000000000000000000000000000000000000"
	carol = "cc00000000000000000000000000000000000000000000000000000000000000"
)

func newSet(t *testing.T) (*ledger.Set, *events.Buffer) {
	t.Helper()
	buf := &events.Buffer{}
	return ledger.New(testutil.NewStateDB(), buf, "tx1", 1), buf
}

func TestNativeTransfer(t *testing.T) {
	l, buf := newSet(t)
	require.NoError(t, l.Native.Credit(alice, uint256.NewInt(100)))

	require.NoError(t, l.Native.Transfer(alice, bob, uint256.NewInt(40)))
	bal, err := l.Native.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(60), bal.Uint64())
	bal, err = l.Native.BalanceOf(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(40), bal.Uint64())
	require.Len(t, buf.Events(), 1)

	err = l.Native.Transfer(alice, bob, uint256.NewInt(61))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// self transfer keeps the balance intact
	require.NoError(t, l.Native.Transfer(alice, alice, uint256.NewInt(60)))
	bal, _ = l.Native.BalanceOf(alice)
	require.Equal(t, uint64(60), bal.Uint64())
}

func TestSecondaryTransferFrom(t *testing.T) {
	l, _ := newSet(t)
	require.NoError(t, l.Secondary.Credit(alice, uint256.NewInt(50)))

	err := l.Secondary.TransferFrom(bob, alice, carol, uint256.NewInt(10))
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	require.NoError(t, l.Secondary.Approve(alice, bob, uint256.NewInt(30)))
	require.NoError(t, l.Secondary.TransferFrom(bob, alice, carol, uint256.NewInt(20)))

	left, err := l.Secondary.AllowanceOf(alice, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(10), left.Uint64())
	bal, _ := l.Secondary.BalanceOf(carol)
	require.Equal(t, uint64(20), bal.Uint64())

	// allowance covers it but the balance does not
	require.NoError(t, l.Secondary.Approve(alice, bob, uint256.NewInt(1000)))
	err = l.Secondary.TransferFrom(bob, alice, carol, uint256.NewInt(31))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestAssetsLifecycle(t *testing.T) {
	l, buf := newSet(t)
	require.NoError(t, l.Assets.RegisterTemplate(alice, &core.AssetTemplate{ID: "hero", Name: "Hero"}))
	require.Error(t, l.Assets.RegisterTemplate(alice, &core.AssetTemplate{ID: "hero"}))

	asset, err := l.Assets.Mint("hero", alice, map[string]any{"str": 3}, 7)
	require.NoError(t, err)
	require.False(t, asset.Revealed)

	owner, err := l.Assets.OwnerOf(asset.ID)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	require.ErrorIs(t, l.Assets.Transfer(bob, carol, asset.ID), ledger.ErrNotOwner)
	require.NoError(t, l.Assets.Transfer(alice, bob, asset.ID))
	require.NoError(t, l.Assets.Reveal(asset.ID))
	require.NoError(t, l.Assets.Reveal(asset.ID))

	var revealed int
	for _, ev := range buf.Events() {
		if ev.Type == events.EventAssetRevealed {
			revealed++
		}
	}
	require.Equal(t, 1, revealed)

	require.ErrorIs(t, l.Assets.Burn(alice, asset.ID), ledger.ErrNotOwner)
	require.NoError(t, l.Assets.Burn(bob, asset.ID))
	_, err = l.Assets.OwnerOf(asset.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestToolsBatchTransferIsAllOrNothing(t *testing.T) {
	l, _ := newSet(t)
	require.NoError(t, l.Tools.Mint(alice, []uint64{1, 2}, []uint64{5, 1}))

	err := l.Tools.BatchTransfer(alice, bob, []uint64{1, 2, 2}, []uint64{1, 1, 1})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	bal, _ := l.Tools.BalanceOf(alice, 1)
	require.Equal(t, uint64(5), bal)

	require.NoError(t, l.Tools.BatchTransfer(alice, bob, []uint64{1, 2}, []uint64{2, 1}))
	bal, _ = l.Tools.BalanceOf(alice, 2)
	require.Zero(t, bal)
	bal, _ = l.Tools.BalanceOf(bob, 1)
	require.Equal(t, uint64(2), bal)

	require.ErrorIs(t, l.Tools.BatchTransfer(alice, bob, []uint64{1}, []uint64{1, 2}), ledger.ErrLengthMismatch)
	require.ErrorIs(t, l.Tools.BatchTransfer(alice, bob, nil, nil), ledger.ErrEmptyBatch)
	require.ErrorIs(t, l.Tools.Mint(alice, []uint64{1}, []uint64{0}), ledger.ErrZeroAmount)
}
