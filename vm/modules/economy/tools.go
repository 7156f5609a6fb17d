package economy

import (
	"fmt"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/sale"
	"github.com/tolelom/tolbook/vm"
)

func init() {
	vm.Register(core.TxMintTools, vm.Typed(mintTools))
	vm.Register(core.TxTransferTools, vm.Typed(transferTools))
}

// mintTools issues tool units and bonus collectibles. Only the sale owner
// may mint them.
func mintTools(ctx *vm.Context, p *core.MintToolsPayload) error {
	cfg, err := ctx.State.GetSaleConfig()
	if err != nil {
		return fmt.Errorf("sale config: %w", err)
	}
	if cfg.Owner != ctx.Tx.From {
		return sale.ErrUnauthorized
	}
	to, err := crypto.NormalizeAddress(p.To)
	if err != nil {
		return fmt.Errorf("mint to: %w", err)
	}
	return ctx.Ledgers().Tools.Mint(to, p.IDs, p.Amounts)
}

func transferTools(ctx *vm.Context, p *core.TransferToolsPayload) error {
	to, err := crypto.NormalizeAddress(p.To)
	if err != nil {
		return fmt.Errorf("transfer to: %w", err)
	}
	return ctx.Ledgers().Tools.BatchTransfer(ctx.Tx.From, to, p.IDs, p.Amounts)
}
