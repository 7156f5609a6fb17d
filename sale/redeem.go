package sale

import (
	"fmt"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
)

var oneEach = []uint64{1, 1, 1}

// OpenBooks redeems the caller's books: each book's asset is moved out of
// the vault and revealed, its three tools and any bonus are transferred, and
// the book record is retired. One bad id aborts the whole batch.
func (e *Engine) OpenBooks(caller string, ids []uint64) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	return e.guarded(func(cfg *core.SaleConfig) error {
		for _, id := range ids {
			if err := e.open(cfg, caller, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) open(cfg *core.SaleConfig, caller string, id uint64) error {
	opened, err := e.store.IsBookOpened(id)
	if err != nil {
		return err
	}
	if opened {
		return fmt.Errorf("%w: %d", ErrAlreadyOpened, id)
	}
	b, err := e.book(id)
	if err != nil {
		return err
	}
	if b.Holder == "" || b.Holder != caller {
		return fmt.Errorf("%w: %d", ErrOwnerMismatch, id)
	}
	if err := e.store.MarkBookOpened(id); err != nil {
		return err
	}

	if err := e.ledgers.Assets.Transfer(cfg.Vault, caller, b.AssetID); err != nil {
		return fmt.Errorf("%w: book %d asset: %v", ErrTransferFailed, id, err)
	}
	if err := e.ledgers.Assets.Reveal(b.AssetID); err != nil {
		return fmt.Errorf("%w: book %d reveal: %v", ErrTransferFailed, id, err)
	}
	if err := e.ledgers.Tools.BatchTransfer(cfg.Vault, caller, b.ToolIDs[:], oneEach); err != nil {
		return fmt.Errorf("%w: book %d tools: %v", ErrTransferFailed, id, err)
	}
	if b.HasBonus {
		if err := e.ledgers.Tools.BatchTransfer(cfg.Vault, caller, []uint64{b.BonusID}, []uint64{1}); err != nil {
			return fmt.Errorf("%w: book %d bonus: %v", ErrTransferFailed, id, err)
		}
	}

	if err := e.store.DeleteBook(id); err != nil {
		return err
	}
	e.emit(events.EventBookOpened, map[string]any{
		"book_id":  id,
		"holder":   caller,
		"asset_id": b.AssetID,
		"tool_ids": b.ToolIDs,
		"bonus_id": b.BonusID,
	})
	return nil
}
