package core_test

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/internal/testutil"
	"github.com/tolelom/tolbook/wallet"
)

func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.Transfer("test-chain", w.PubKey(), uint256.NewInt(100), 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID, "signing sets the id")
	require.Equal(t, tx.Hash(), tx.ID)
	require.NoError(t, tx.Verify())

	tx.Fee = 999
	require.Error(t, tx.Verify(), "tampered tx must fail verification")

	tx.From = ""
	require.Error(t, tx.Verify())
}

func TestBlockHashAndSignature(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	block := core.NewBlockAt(1, "00ff", pub.Hex(), 3*int64(time.Second)+5, nil)
	block.Sign(priv)
	require.NotEmpty(t, block.Hash)
	require.Equal(t, block.ComputeHash(), block.Hash)
	require.NoError(t, block.Verify(pub))
	require.Equal(t, int64(3), block.UnixTime())
	require.Equal(t, []byte{0x00, 0xff}, block.Entropy())
	require.Equal(t, core.ComputeTxRoot(nil), block.Header.TxRoot)
}

func TestBlockchainLinkage(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	store := testutil.NewBlockStore()
	bc := core.NewBlockchain(store)
	require.NoError(t, bc.Init())
	require.Nil(t, bc.Tip())

	mk := func(height int64, prev string, ts int64) *core.Block {
		b := core.NewBlockAt(height, prev, pub.Hex(), ts, nil)
		b.Sign(priv)
		return b
	}
	require.ErrorIs(t, bc.AddBlock(mk(1, "genesis", 100)), core.ErrNotGenesis)
	genesis := mk(0, "genesis", 100)
	require.NoError(t, bc.AddBlock(genesis))

	require.ErrorIs(t, bc.AddBlock(mk(2, genesis.Hash, 200)), core.ErrHeightGap)
	require.ErrorIs(t, bc.AddBlock(mk(1, "bogus", 200)), core.ErrPrevHashMismatch)
	require.ErrorIs(t, bc.AddBlock(mk(1, genesis.Hash, 50)), core.ErrTimeReversed)

	next := mk(1, genesis.Hash, 100)
	require.NoError(t, bc.AddBlock(next))
	require.Equal(t, int64(1), bc.Height())

	got, err := bc.GetBlockByHeight(1)
	require.NoError(t, err)
	require.Equal(t, next.Hash, got.Hash)

	reopened := core.NewBlockchain(store)
	require.NoError(t, reopened.Init())
	require.Equal(t, next.Hash, reopened.Tip().Hash)
}

func TestMempool(t *testing.T) {
	mp := core.NewMempool()
	w, err := wallet.Generate()
	require.NoError(t, err)
	other, err := wallet.Generate()
	require.NoError(t, err)

	late, err := w.Transfer("test-chain", other.PubKey(), uint256.NewInt(1), 1, 0)
	require.NoError(t, err)
	early, err := w.Transfer("test-chain", other.PubKey(), uint256.NewInt(1), 0, 0)
	require.NoError(t, err)
	theirs, err := other.Transfer("test-chain", w.PubKey(), uint256.NewInt(1), 0, 0)
	require.NoError(t, err)

	require.NoError(t, mp.Add(late))
	require.NoError(t, mp.Add(theirs))
	require.NoError(t, mp.Add(early))
	require.ErrorIs(t, mp.Add(early), core.ErrDuplicateTx)
	require.Equal(t, 3, mp.Size())

	clash, err := w.Transfer("test-chain", other.PubKey(), uint256.NewInt(2), 0, 0)
	require.NoError(t, err)
	require.ErrorIs(t, mp.Add(clash), core.ErrNonceCollision)

	pending := mp.Pending(10)
	require.Len(t, pending, 3)
	require.Equal(t, early.ID, pending[0].ID, "a sender's txs are reordered by nonce")
	require.Equal(t, theirs.ID, pending[1].ID)
	require.Equal(t, late.ID, pending[2].ID)

	mp.Remove([]string{early.ID, late.ID, theirs.ID})
	require.Zero(t, mp.Size())
}

func TestContainerRemaining(t *testing.T) {
	c := &core.Container{Ref: core.BucketRef(2), IDs: []uint64{5, 6, 7}, Cursor: 1}
	require.Equal(t, uint64(2), c.Remaining())
	c.Exhausted = true
	require.Zero(t, c.Remaining())

	require.NoError(t, core.PoolRef(2).Validate())
	require.Error(t, core.PoolRef(0).Validate())
	require.Error(t, core.BucketRef(8).Validate())
	require.Equal(t, "bucket2", core.BucketRef(2).String())
	require.Equal(t, core.RoundProof, core.KindOfRound(3))
	require.Equal(t, core.RoundKind(""), core.KindOfRound(5))
}
