package vm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolbook/core"
)

type pingPayload struct {
	N int `json:"n"`
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	var got int
	r.Register("ping", Typed(func(_ *Context, p *pingPayload) error {
		got = p.N
		return nil
	}))
	require.Panics(t, func() { r.Register("ping", nil) })
	require.True(t, r.Has("ping"))
	require.False(t, r.Has("pong"))

	ctx := &Context{Tx: &core.Transaction{Type: "ping"}}
	require.NoError(t, r.Execute("ping", ctx, json.RawMessage(`{"n":7}`)))
	require.Equal(t, 7, got)

	require.ErrorIs(t, r.Execute("ping", ctx, json.RawMessage(`{"n":"x"}`)), ErrBadPayload)
	require.ErrorIs(t, r.Execute("pong", ctx, nil), ErrUnknownTxType)
}

func TestRegistryTypesSorted(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []core.TxType{"c", "a", "b"} {
		r.Register(typ, func(*Context, json.RawMessage) error { return nil })
	}
	require.Equal(t, []core.TxType{"a", "b", "c"}, r.Types())
}
