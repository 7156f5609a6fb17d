package wallet

import (
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/core"
)

func TestKeystoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	priv, created, err := LoadOrCreate(path, "secret")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := LoadOrCreate(path, "secret")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, priv.Public().Hex(), again.Public().Hex())

	_, err = LoadKey(path, "wrong")
	require.ErrorIs(t, err, ErrWrongPassword)
	_, _, err = LoadOrCreate(path, "")
	require.Error(t, err)
}

func TestSignedSaleTxs(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)

	tx, err := w.BuyBooks("tolbook-test", 2, core.PaySingle, uint256.NewInt(20), nil, 0, 1)
	require.NoError(t, err)
	require.Equal(t, core.TxBuyBooks, tx.Type)
	require.Equal(t, w.PubKey(), tx.From)
	require.NoError(t, tx.Verify())

	tx.ChainID = "other"
	require.Error(t, tx.Verify())

	open, err := w.OpenBooks("tolbook-test", []uint64{4, 5}, 1, 0)
	require.NoError(t, err)
	require.NoError(t, open.Verify())
}
