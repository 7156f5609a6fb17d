// Package ledger implements the asset ledgers the book sale settles against:
// the native coin, a pull-based secondary coin, unique assets, and batch
// tokens (tools and bonus collectibles). Each operation writes through
// core.State and reports its change to an event sink.
package ledger

import (
	"errors"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
)

var (
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrNotOwner              = errors.New("ledger: not asset owner")
	ErrLengthMismatch        = errors.New("ledger: ids and amounts length mismatch")
	ErrEmptyBatch            = errors.New("ledger: empty batch")
	ErrZeroAmount            = errors.New("ledger: amount must be > 0")
	ErrOverflow              = errors.New("ledger: balance overflow")
	ErrMissingRecipient      = errors.New("ledger: recipient required")
)

// Set bundles the four ledgers bound to one transaction.
type Set struct {
	Native    *Native
	Secondary *Secondary
	Assets    *Assets
	Tools     *Tools
}

// New binds every ledger to state, reporting changes to sink under the
// given transaction id and block height. sink may be nil.
func New(state core.State, sink events.Sink, txID string, height int64) *Set {
	b := base{state: state, sink: sink, txID: txID, height: height}
	return &Set{
		Native:    &Native{base: b},
		Secondary: &Secondary{base: b},
		Assets:    &Assets{base: b},
		Tools:     &Tools{base: b},
	}
}

type base struct {
	state  core.State
	sink   events.Sink
	txID   string
	height int64
}

func (b *base) emit(typ events.EventType, data map[string]any) {
	if b.sink == nil {
		return
	}
	b.sink.Emit(events.Event{Type: typ, TxID: b.txID, BlockHeight: b.height, Data: data})
}
