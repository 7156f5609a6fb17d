package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/core"
)

// BuyRequest is a purchase in the active round. Value is the native amount
// the buyer attaches; anything above the price is refunded.
type BuyRequest struct {
	Quantity uint64
	Mode     core.PaymentMode
	Value    *uint256.Int
	Proof    []common.Hash
}

// Receipt describes a completed purchase.
type Receipt struct {
	Round         uint8        `json:"round"`
	BookIDs       []uint64     `json:"book_ids"`
	PaidNative    *uint256.Int `json:"paid_native"`
	PaidSecondary *uint256.Int `json:"paid_secondary"`
	Refund        *uint256.Int `json:"refund"`
}

// Buy allocates req.Quantity books to buyer in the current round after
// checking eligibility and settling payment. Nothing is kept on failure.
func (e *Engine) Buy(buyer string, req BuyRequest) (*Receipt, error) {
	buyer, err := normalize(buyer)
	if err != nil {
		return nil, err
	}
	var receipt *Receipt
	err = e.guarded(func(cfg *core.SaleConfig) error {
		round, err := e.CurrentRound()
		if err != nil {
			return err
		}
		if round.ID == core.AdminRound {
			return ErrNoActiveRound
		}
		q := req.Quantity
		if q == 0 {
			return ErrZeroQuantity
		}
		if q > cfg.MaxPerTx {
			return fmt.Errorf("%w: %d > %d", ErrQuantityCap, q, cfg.MaxPerTx)
		}

		switch round.Kind {
		case core.RoundAllowance:
			if err := e.consumeAllowance(round.ID, buyer, q); err != nil {
				return err
			}
		case core.RoundProof:
			leaf, err := Leaf(buyer)
			if err != nil {
				return err
			}
			if !VerifyProof(req.Proof, cfg.MerkleRoot, leaf) {
				return ErrInvalidProof
			}
		}

		quote, err := Price(round, req.Mode, q)
		if err != nil {
			return err
		}
		refund, err := e.settle(cfg, buyer, req.Value, quote)
		if err != nil {
			return err
		}

		d := e.newDrawer(cfg)
		ids := make([]uint64, 0, q)
		for i := uint64(0); i < q; i++ {
			id, err := d.forRound(round.ID)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := d.flush(); err != nil {
			return err
		}
		if err := e.allocate(buyer, round.ID, ids); err != nil {
			return err
		}
		receipt = &Receipt{
			Round:         round.ID,
			BookIDs:       ids,
			PaidNative:    quote.Native,
			PaidSecondary: quote.Secondary,
			Refund:        refund,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
