package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/events"
)

// Native is the chain's settlement coin, held in core.Account balances.
type Native struct{ base }

// BalanceOf returns addr's native balance.
func (n *Native) BalanceOf(addr string) (*uint256.Int, error) {
	acc, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance, nil
}

// Transfer moves amount from one account to another. A zero amount is a no-op.
func (n *Native) Transfer(from, to string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if to == "" {
		return ErrMissingRecipient
	}
	sender, err := n.state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Lt(amount) {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, sender.Balance.Dec(), amount.Dec())
	}
	sender.Balance = new(uint256.Int).Sub(sender.Balance, amount)
	if err := n.state.SetAccount(sender); err != nil {
		return err
	}
	if err := n.Credit(to, amount); err != nil {
		return err
	}
	n.emit(events.EventTokenTransfer, map[string]any{"from": from, "to": to, "amount": amount.Dec()})
	return nil
}

// Credit adds newly issued coins to addr (genesis allocation).
func (n *Native) Credit(addr string, amount *uint256.Int) error {
	acc, err := n.state.GetAccount(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(acc.Balance, amount)
	if overflow {
		return ErrOverflow
	}
	acc.Balance = sum
	return n.state.SetAccount(acc)
}

// Secondary is a fungible coin that third parties can pull from a holder up
// to an approved allowance.
type Secondary struct{ base }

// BalanceOf returns addr's secondary balance.
func (s *Secondary) BalanceOf(addr string) (*uint256.Int, error) {
	return s.state.GetSecondaryBalance(addr)
}

// AllowanceOf returns how much spender may still pull from owner.
func (s *Secondary) AllowanceOf(owner, spender string) (*uint256.Int, error) {
	return s.state.GetSecondaryAllowance(owner, spender)
}

// Credit adds newly issued coins to addr (genesis allocation).
func (s *Secondary) Credit(addr string, amount *uint256.Int) error {
	bal, err := s.state.GetSecondaryBalance(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return ErrOverflow
	}
	return s.state.SetSecondaryBalance(addr, sum)
}

// Approve overwrites the amount spender may pull from owner.
func (s *Secondary) Approve(owner, spender string, amount *uint256.Int) error {
	if spender == "" {
		return ErrMissingRecipient
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	if err := s.state.SetSecondaryAllowance(owner, spender, amount); err != nil {
		return err
	}
	s.emit(events.EventSecondaryApproval, map[string]any{"owner": owner, "spender": spender, "amount": amount.Dec()})
	return nil
}

// Transfer moves the sender's own coins.
func (s *Secondary) Transfer(from, to string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	return s.move(from, to, amount)
}

// TransferFrom pulls amount from owner to recipient on behalf of spender,
// consuming spender's allowance.
func (s *Secondary) TransferFrom(spender, from, to string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	allowed, err := s.state.GetSecondaryAllowance(from, spender)
	if err != nil {
		return err
	}
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientAllowance, allowed.Dec(), amount.Dec())
	}
	if err := s.move(from, to, amount); err != nil {
		return err
	}
	return s.state.SetSecondaryAllowance(from, spender, new(uint256.Int).Sub(allowed, amount))
}

func (s *Secondary) move(from, to string, amount *uint256.Int) error {
	if to == "" {
		return ErrMissingRecipient
	}
	bal, err := s.state.GetSecondaryBalance(from)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, bal.Dec(), amount.Dec())
	}
	if err := s.state.SetSecondaryBalance(from, new(uint256.Int).Sub(bal, amount)); err != nil {
		return err
	}
	if err := s.Credit(to, amount); err != nil {
		return err
	}
	s.emit(events.EventSecondaryTransfer, map[string]any{"from": from, "to": to, "amount": amount.Dec()})
	return nil
}
