package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
)

// SetAllowances overwrites the purchase ceiling of each address in an
// allowance round. Minted counts are kept.
func (e *Engine) SetAllowances(caller string, round uint8, addrs []string, allowances []uint64) error {
	if core.KindOfRound(round) != core.RoundAllowance {
		return ErrBadRound
	}
	if len(addrs) != len(allowances) {
		return ErrLengthMismatch
	}
	if len(addrs) == 0 {
		return ErrEmptyBatch
	}
	return e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		for i, raw := range addrs {
			addr, err := normalize(raw)
			if err != nil {
				return err
			}
			a, err := e.store.GetAllowance(round, addr)
			if err != nil {
				return err
			}
			if allowances[i] < a.Minted {
				return fmt.Errorf("%w: %s minted %d", ErrAllowanceBelowMinted, addr, a.Minted)
			}
			a.Allowance = allowances[i]
			if err := e.store.SetAllowance(a); err != nil {
				return err
			}
			e.emit(events.EventAllowanceSet, map[string]any{
				"round": round, "address": addr, "allowance": a.Allowance,
			})
		}
		return nil
	})
}

// Allowance returns addr's ceiling and minted count in an allowance round.
func (e *Engine) Allowance(round uint8, addr string) (*core.Allowance, error) {
	if core.KindOfRound(round) != core.RoundAllowance {
		return nil, ErrBadRound
	}
	norm, err := normalize(addr)
	if err != nil {
		return nil, err
	}
	return e.store.GetAllowance(round, norm)
}

// consumeAllowance checks and records q purchases against addr's ceiling as
// a single read-modify-write.
func (e *Engine) consumeAllowance(round uint8, addr string, q uint64) error {
	a, err := e.store.GetAllowance(round, addr)
	if err != nil {
		return err
	}
	if a.Allowance == 0 || a.Minted > a.Allowance || q > a.Allowance-a.Minted {
		return fmt.Errorf("%w: allowance %d minted %d requested %d",
			ErrInsufficientAllowance, a.Allowance, a.Minted, q)
	}
	a.Minted += q
	return e.store.SetAllowance(a)
}

// SetMerkleRoot replaces the proof-round allowlist commitment.
func (e *Engine) SetMerkleRoot(caller string, root common.Hash) error {
	return e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		cfg.MerkleRoot = root
		e.emit(events.EventMerkleRootSet, map[string]any{"root": root.Hex()})
		return nil
	})
}

// IsEligible reports whether proof shows addr is on the proof-round
// allowlist. It mutates nothing, so a proof can be replayed.
func (e *Engine) IsEligible(addr string, proof []common.Hash) (bool, error) {
	cfg, err := e.Config()
	if err != nil {
		return false, err
	}
	leaf, err := Leaf(addr)
	if err != nil {
		return false, err
	}
	return VerifyProof(proof, cfg.MerkleRoot, leaf), nil
}
