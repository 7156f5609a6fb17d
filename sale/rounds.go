package sale

import (
	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
)

// CurrentRound returns the first of rounds 1..4 that is active and whose
// window contains now, or the admin round when none does. Lower ids win when
// windows overlap.
func (e *Engine) CurrentRound() (*core.Round, error) {
	now := e.nowFn()
	for id := uint8(1); id <= core.MaxRound; id++ {
		r, err := e.store.GetRound(id)
		if err != nil {
			return nil, err
		}
		if r.Active && r.Contains(now) {
			return r, nil
		}
	}
	return e.store.GetRound(core.AdminRound)
}

// Round returns round id, configured or not.
func (e *Engine) Round(id uint8) (*core.Round, error) {
	if id > core.MaxRound {
		return nil, ErrBadRound
	}
	return e.store.GetRound(id)
}

// ConfigureRound sets the window of a sale round and activates it. A round
// cannot be deactivated; it lapses when its window passes.
func (e *Engine) ConfigureRound(caller string, id uint8, start, end int64) error {
	if id < 1 || id > core.MaxRound {
		return ErrBadRound
	}
	if end < start {
		return ErrBadWindow
	}
	return e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		r, err := e.store.GetRound(id)
		if err != nil {
			return err
		}
		r.Kind = core.KindOfRound(id)
		r.Start, r.End, r.Active = start, end, true
		if err := e.store.SetRound(r); err != nil {
			return err
		}
		e.emit(events.EventRoundUpdated, map[string]any{
			"round": id, "kind": string(r.Kind), "start": start, "end": end,
		})
		return nil
	})
}

// ConfigurePayment sets the per-book prices of a sale round. Nil prices are
// stored as zero; a zero secondary price disables the dual mode.
func (e *Engine) ConfigurePayment(caller string, id uint8, terms core.PaymentTerms) error {
	if id < 1 || id > core.MaxRound {
		return ErrBadRound
	}
	terms = core.PaymentTerms{
		Single:        orZero(terms.Single),
		DualNative:    orZero(terms.DualNative),
		DualSecondary: orZero(terms.DualSecondary),
	}
	return e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		r, err := e.store.GetRound(id)
		if err != nil {
			return err
		}
		r.Payment = terms
		if err := e.store.SetRound(r); err != nil {
			return err
		}
		e.emit(events.EventPaymentConfigured, map[string]any{
			"round":          id,
			"single":         terms.Single.Dec(),
			"dual_native":    terms.DualNative.Dec(),
			"dual_secondary": terms.DualSecondary.Dec(),
		})
		return nil
	})
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
