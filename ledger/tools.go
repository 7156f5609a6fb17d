package ledger

import (
	"fmt"
	"math"

	"github.com/tolelom/tolbook/events"
)

// Tools is the batch-token ledger holding tool units and bonus collectibles.
type Tools struct{ base }

// BalanceOf returns owner's units of tokenID.
func (t *Tools) BalanceOf(owner string, tokenID uint64) (uint64, error) {
	return t.state.GetToolBalance(owner, tokenID)
}

// Mint credits units to owner.
func (t *Tools) Mint(to string, ids, amounts []uint64) error {
	if err := checkBatch(ids, amounts); err != nil {
		return err
	}
	if to == "" {
		return ErrMissingRecipient
	}
	for i, id := range ids {
		if err := t.credit(to, id, amounts[i]); err != nil {
			return err
		}
	}
	t.emit(events.EventToolsTransfer, map[string]any{"from": "", "to": to, "ids": ids, "amounts": amounts})
	return nil
}

// BatchTransfer moves units of several token ids at once. Either every
// entry moves or none does.
func (t *Tools) BatchTransfer(from, to string, ids, amounts []uint64) error {
	if err := checkBatch(ids, amounts); err != nil {
		return err
	}
	if to == "" {
		return ErrMissingRecipient
	}
	// Check all debits before writing so a short balance leaves no partial move.
	need := make(map[uint64]uint64, len(ids))
	for i, id := range ids {
		if need[id] > math.MaxUint64-amounts[i] {
			return ErrOverflow
		}
		need[id] += amounts[i]
	}
	for id, n := range need {
		bal, err := t.state.GetToolBalance(from, id)
		if err != nil {
			return err
		}
		if bal < n {
			return fmt.Errorf("%w: token %d have %d need %d", ErrInsufficientBalance, id, bal, n)
		}
	}
	for i, id := range ids {
		bal, err := t.state.GetToolBalance(from, id)
		if err != nil {
			return err
		}
		if err := t.state.SetToolBalance(from, id, bal-amounts[i]); err != nil {
			return err
		}
		if err := t.credit(to, id, amounts[i]); err != nil {
			return err
		}
	}
	t.emit(events.EventToolsTransfer, map[string]any{"from": from, "to": to, "ids": ids, "amounts": amounts})
	return nil
}

func (t *Tools) credit(owner string, id, amount uint64) error {
	bal, err := t.state.GetToolBalance(owner, id)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrOverflow
	}
	return t.state.SetToolBalance(owner, id, bal+amount)
}

func checkBatch(ids, amounts []uint64) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	if len(ids) != len(amounts) {
		return ErrLengthMismatch
	}
	for _, a := range amounts {
		if a == 0 {
			return ErrZeroAmount
		}
	}
	return nil
}
