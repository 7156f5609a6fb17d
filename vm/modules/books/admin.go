// Package books exposes the book sale as transactions.
package books

import (
	"go.uber.org/zap"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/vm"
)

func init() {
	vm.Register(core.TxConfigureRound, vm.Typed(configureRound))
	vm.Register(core.TxConfigurePayment, vm.Typed(configurePayment))
	vm.Register(core.TxSetAllowances, vm.Typed(setAllowances))
	vm.Register(core.TxSetMerkleRoot, vm.Typed(setMerkleRoot))
	vm.Register(core.TxRegisterBooks, vm.Typed(registerBooks))
	vm.Register(core.TxLoadPool, vm.Typed(loadPool))
	vm.Register(core.TxLoadBucket, vm.Typed(loadBucket))
	vm.Register(core.TxDistributeSpill, vm.Typed(distributeSpillover))
	vm.Register(core.TxSetTreasury, vm.Typed(setTreasury))
	vm.Register(core.TxSetMaxPerTx, vm.Typed(setMaxPerTx))
	vm.Register(core.TxAdminAllocate, vm.Typed(adminAllocate))
	vm.Register(core.TxTransferSaleOwner, vm.Typed(transferSaleOwner))
}

func configureRound(ctx *vm.Context, p *core.ConfigureRoundPayload) error {
	return ctx.Sale().ConfigureRound(ctx.Tx.From, p.Round, p.Start, p.End)
}

func configurePayment(ctx *vm.Context, p *core.ConfigurePaymentPayload) error {
	return ctx.Sale().ConfigurePayment(ctx.Tx.From, p.Round, core.PaymentTerms{
		Single:        p.Single,
		DualNative:    p.DualNative,
		DualSecondary: p.DualSecondary,
	})
}

func setAllowances(ctx *vm.Context, p *core.SetAllowancesPayload) error {
	return ctx.Sale().SetAllowances(ctx.Tx.From, p.Round, p.Addresses, p.Allowances)
}

func setMerkleRoot(ctx *vm.Context, p *core.SetMerkleRootPayload) error {
	return ctx.Sale().SetMerkleRoot(ctx.Tx.From, p.Root)
}

func registerBooks(ctx *vm.Context, p *core.RegisterBooksPayload) error {
	return ctx.Sale().RegisterBooks(ctx.Tx.From, p.Books)
}

func loadPool(ctx *vm.Context, p *core.LoadPoolPayload) error {
	return ctx.Sale().LoadPool(ctx.Tx.From, p.Pool, p.IDs)
}

func loadBucket(ctx *vm.Context, p *core.LoadBucketPayload) error {
	return ctx.Sale().LoadBucket(ctx.Tx.From, p.Bucket, p.IDs, p.Counts)
}

// distributeSpillover takes no payload fields; the draw is seeded from the
// enclosing block.
func distributeSpillover(ctx *vm.Context, _ *struct{}) error {
	report, err := ctx.Sale().DistributeSpillover(ctx.Tx.From)
	if err != nil {
		return err
	}
	ctx.Logger.Info("spillover distributed",
		zap.String("tx", ctx.Tx.ID),
		zap.Uint64("total", report.Total),
		zap.Uint64s("per_bucket", report.PerBucket[:]))
	return nil
}

func setTreasury(ctx *vm.Context, p *core.SetTreasuryPayload) error {
	return ctx.Sale().SetTreasury(ctx.Tx.From, p.Treasury)
}

func setMaxPerTx(ctx *vm.Context, p *core.SetMaxPerTxPayload) error {
	return ctx.Sale().SetMaxPerTx(ctx.Tx.From, p.MaxPerTx)
}

func adminAllocate(ctx *vm.Context, p *core.AdminAllocatePayload) error {
	ids, err := ctx.Sale().AdminAllocate(ctx.Tx.From, p.To, p.Source, p.Quantity)
	if err != nil {
		return err
	}
	ctx.Logger.Debug("books allocated by owner",
		zap.String("tx", ctx.Tx.ID), zap.String("source", p.Source.String()), zap.Uint64s("books", ids))
	return nil
}

func transferSaleOwner(ctx *vm.Context, p *core.TransferSaleOwnerPayload) error {
	return ctx.Sale().TransferOwnership(ctx.Tx.From, p.Owner)
}
