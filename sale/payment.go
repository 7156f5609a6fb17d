package sale

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/core"
)

// Quote is the price of a purchase.
type Quote struct {
	Native    *uint256.Int
	Secondary *uint256.Int
}

// Price computes what q books cost in round r under mode.
func Price(r *core.Round, mode core.PaymentMode, q uint64) (*Quote, error) {
	qty := uint256.NewInt(q)
	switch mode {
	case core.PaySingle, "":
		native, overflow := new(uint256.Int).MulOverflow(orZero(r.Payment.Single), qty)
		if overflow {
			return nil, ErrPriceOverflow
		}
		return &Quote{Native: native, Secondary: new(uint256.Int)}, nil
	case core.PayDual:
		rate := orZero(r.Payment.DualSecondary)
		if rate.IsZero() {
			return nil, fmt.Errorf("%w: round %d has no dual price", ErrPaymentModeUnavailable, r.ID)
		}
		native, o1 := new(uint256.Int).MulOverflow(orZero(r.Payment.DualNative), qty)
		secondary, o2 := new(uint256.Int).MulOverflow(rate, qty)
		if o1 || o2 {
			return nil, ErrPriceOverflow
		}
		return &Quote{Native: native, Secondary: secondary}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrPaymentModeUnavailable, mode)
}

// settle collects payment from buyer, who attached value in native coin.
// The attached value is escrowed in the vault, the secondary amount is
// pulled straight to the treasury, the native price is forwarded and any
// excess is refunded. It returns the refund.
func (e *Engine) settle(cfg *core.SaleConfig, buyer string, value *uint256.Int, q *Quote) (*uint256.Int, error) {
	value = orZero(value)
	if value.Lt(q.Native) {
		return nil, fmt.Errorf("%w: sent %s need %s", ErrInsufficientPayment, value.Dec(), q.Native.Dec())
	}
	if err := e.ledgers.Native.Transfer(buyer, cfg.Vault, value); err != nil {
		return nil, fmt.Errorf("%w: escrow: %v", ErrTransferFailed, err)
	}
	if !q.Secondary.IsZero() {
		if err := e.ledgers.Secondary.TransferFrom(cfg.Vault, buyer, cfg.Treasury, q.Secondary); err != nil {
			return nil, fmt.Errorf("%w: secondary: %v", ErrTransferFailed, err)
		}
	}
	if err := e.ledgers.Native.Transfer(cfg.Vault, cfg.Treasury, q.Native); err != nil {
		return nil, fmt.Errorf("%w: treasury: %v", ErrTransferFailed, err)
	}
	refund := new(uint256.Int).Sub(value, q.Native)
	if !refund.IsZero() {
		if err := e.ledgers.Native.Transfer(cfg.Vault, buyer, refund); err != nil {
			return nil, fmt.Errorf("%w: refund: %v", ErrTransferFailed, err)
		}
	}
	return refund, nil
}
