// Package economy exposes the native, secondary and tool ledgers as
// transactions.
package economy

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/vm"
)

func init() {
	vm.Register(core.TxTransfer, vm.Typed(transfer))
	vm.Register(core.TxTransferSecondary, vm.Typed(transferSecondary))
	vm.Register(core.TxApproveSecondary, vm.Typed(approveSecondary))
}

func transfer(ctx *vm.Context, p *core.TransferPayload) error {
	if p.Amount == nil || p.Amount.IsZero() {
		return errors.New("transfer amount must be > 0")
	}
	to, err := crypto.NormalizeAddress(p.To)
	if err != nil {
		return fmt.Errorf("transfer to: %w", err)
	}
	return ctx.Ledgers().Native.Transfer(ctx.Tx.From, to, p.Amount)
}

func transferSecondary(ctx *vm.Context, p *core.TransferSecondaryPayload) error {
	to, err := crypto.NormalizeAddress(p.To)
	if err != nil {
		return fmt.Errorf("transfer to: %w", err)
	}
	return ctx.Ledgers().Secondary.Transfer(ctx.Tx.From, to, p.Amount)
}

func approveSecondary(ctx *vm.Context, p *core.ApproveSecondaryPayload) error {
	spender, err := crypto.NormalizeAddress(p.Spender)
	if err != nil {
		return fmt.Errorf("spender: %w", err)
	}
	return ctx.Ledgers().Secondary.Approve(ctx.Tx.From, spender, p.Amount)
}
