// Package asset exposes the unique-asset ledger as transactions.
package asset

import (
	"fmt"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/vm"
)

func init() {
	vm.Register(core.TxMintAsset, vm.Typed(mintAsset))
	vm.Register(core.TxBurnAsset, vm.Typed(burnAsset))
	vm.Register(core.TxTransferAsset, vm.Typed(transferAsset))
}

// mintAsset creates an asset from a template. Only the template's creator
// may mint from it; the owner defaults to the sender.
func mintAsset(ctx *vm.Context, p *core.MintAssetPayload) error {
	owner := ctx.Tx.From
	if p.Owner != "" {
		norm, err := crypto.NormalizeAddress(p.Owner)
		if err != nil {
			return fmt.Errorf("invalid owner pubkey: %w", err)
		}
		owner = norm
	}

	tmpl, err := ctx.State.GetTemplate(p.TemplateID)
	if err != nil {
		return fmt.Errorf("template %q not found: %w", p.TemplateID, err)
	}
	if tmpl.Creator != ctx.Tx.From {
		return fmt.Errorf("only the creator of template %q can mint from it", p.TemplateID)
	}

	_, err = ctx.Ledgers().Assets.Mint(p.TemplateID, owner, p.Properties, ctx.Block.Header.Timestamp)
	return err
}

func burnAsset(ctx *vm.Context, p *core.BurnAssetPayload) error {
	return ctx.Ledgers().Assets.Burn(ctx.Tx.From, p.AssetID)
}

func transferAsset(ctx *vm.Context, p *core.TransferAssetPayload) error {
	to, err := crypto.NormalizeAddress(p.To)
	if err != nil {
		return fmt.Errorf("invalid to pubkey: %w", err)
	}
	return ctx.Ledgers().Assets.Transfer(ctx.Tx.From, to, p.AssetID)
}
