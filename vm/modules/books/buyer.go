package books

import (
	"go.uber.org/zap"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/sale"
	"github.com/tolelom/tolbook/vm"
)

func init() {
	vm.Register(core.TxBuyBooks, vm.Typed(buyBooks))
	vm.Register(core.TxOpenBooks, vm.Typed(openBooks))
	vm.Register(core.TxTransferBook, vm.Typed(transferBook))
}

func buyBooks(ctx *vm.Context, p *core.BuyBooksPayload) error {
	receipt, err := ctx.Sale().Buy(ctx.Tx.From, sale.BuyRequest{
		Quantity: p.Quantity,
		Mode:     p.Mode,
		Value:    p.Value,
		Proof:    p.Proof,
	})
	if err != nil {
		return err
	}
	ctx.Logger.Debug("books bought",
		zap.String("tx", ctx.Tx.ID),
		zap.Uint8("round", receipt.Round),
		zap.Uint64s("books", receipt.BookIDs),
		zap.String("refund", receipt.Refund.Dec()))
	return nil
}

func openBooks(ctx *vm.Context, p *core.OpenBooksPayload) error {
	return ctx.Sale().OpenBooks(ctx.Tx.From, p.BookIDs)
}

func transferBook(ctx *vm.Context, p *core.TransferBookPayload) error {
	return ctx.Sale().TransferBook(ctx.Tx.From, p.BookID, p.To)
}
