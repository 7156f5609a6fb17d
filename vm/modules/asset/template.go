package asset

import (
	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/vm"
)

func init() {
	vm.Register(core.TxRegisterTemplate, vm.Typed(registerTemplate))
}

func registerTemplate(ctx *vm.Context, p *core.RegisterTemplatePayload) error {
	return ctx.Ledgers().Assets.RegisterTemplate(ctx.Tx.From, &core.AssetTemplate{
		ID:     p.ID,
		Name:   p.Name,
		Schema: p.Schema,
	})
}
