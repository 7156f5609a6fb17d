package sale

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
)

// RegisterBooks records new books. Each book's asset must already sit in the
// sale vault; its tools and bonus are checked when the book is opened.
func (e *Engine) RegisterBooks(caller string, specs []core.BookSpec) error {
	if len(specs) == 0 {
		return ErrEmptyBatch
	}
	return e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		for _, s := range specs {
			if err := e.registerBook(cfg, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) registerBook(cfg *core.SaleConfig, s core.BookSpec) error {
	if s.ID == 0 || s.AssetID == "" {
		return fmt.Errorf("%w: id and asset_id required", ErrInvalidBook)
	}
	for _, t := range s.ToolIDs {
		if t == 0 {
			return fmt.Errorf("%w: book %d has a zero tool id", ErrInvalidBook, s.ID)
		}
	}
	if _, err := e.store.GetBook(s.ID); err == nil {
		return fmt.Errorf("%w: %d", ErrBookExists, s.ID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	// Opened books are retired; their ids stay burned.
	opened, err := e.store.IsBookOpened(s.ID)
	if err != nil {
		return err
	}
	if opened {
		return fmt.Errorf("%w: %d was opened", ErrBookExists, s.ID)
	}
	owner, err := e.ledgers.Assets.OwnerOf(s.AssetID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssetNotInVault, err)
	}
	if owner != cfg.Vault {
		return fmt.Errorf("%w: %s", ErrAssetNotInVault, s.AssetID)
	}
	b := &core.Book{
		ID:        s.ID,
		AssetID:   s.AssetID,
		ToolIDs:   s.ToolIDs,
		BonusID:   s.BonusID,
		HasBonus:  s.BonusID != 0,
		Category:  s.Category,
		CreatedAt: e.nowFn(),
	}
	if err := e.store.SetBook(b); err != nil {
		return err
	}
	e.emit(events.EventBookRegistered, map[string]any{
		"book_id": b.ID, "asset_id": b.AssetID, "category": b.Category, "has_bonus": b.HasBonus,
	})
	return nil
}

// Book returns book id. Opened books no longer exist.
func (e *Engine) Book(id uint64) (*core.Book, error) {
	return e.book(id)
}

// allocate hands the drawn books to holder and credits the leaderboard.
func (e *Engine) allocate(holder string, round uint8, ids []uint64) error {
	for _, id := range ids {
		b, err := e.book(id)
		if err != nil {
			return err
		}
		if b.Holder != "" {
			return fmt.Errorf("%w: %d", ErrBookAllocated, id)
		}
		b.Holder = holder
		b.Round = round
		if err := e.store.SetBook(b); err != nil {
			return err
		}
		e.emit(events.EventBookAllocated, map[string]any{"book_id": id, "to": holder, "round": round})
	}
	return e.recordMint(holder, uint64(len(ids)))
}

// AdminAllocate draws qty books from a named container and gives them to
// recipient outside the round system. The books are recorded under the
// admin round and count toward the leaderboard.
func (e *Engine) AdminAllocate(caller, recipient string, source core.ContainerRef, qty uint64) ([]uint64, error) {
	if qty == 0 {
		return nil, ErrZeroQuantity
	}
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadContainer, err)
	}
	to, err := normalize(recipient)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	err = e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		d := e.newDrawer(cfg)
		ids = make([]uint64, 0, qty)
		for i := uint64(0); i < qty; i++ {
			id, err := d.from(source)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := d.flush(); err != nil {
			return err
		}
		return e.allocate(to, core.AdminRound, ids)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TransferBook moves an unopened book to a new holder.
func (e *Engine) TransferBook(caller string, id uint64, recipient string) error {
	to, err := normalize(recipient)
	if err != nil {
		return err
	}
	return e.atomic(func(cfg *core.SaleConfig) error {
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
		b.Holder = to
		if err := e.store.SetBook(b); err != nil {
			return err
		}
		e.emit(events.EventBookTransferred, map[string]any{"book_id": id, "from": caller, "to": to})
		return nil
	})
}

// SetTreasury changes the account that receives payments.
func (e *Engine) SetTreasury(caller, treasury string) error {
	addr, err := normalize(treasury)
	if err != nil {
		return err
	}
	return e.updateConfig(caller, func(cfg *core.SaleConfig) { cfg.Treasury = addr })
}

// SetMaxPerTx changes how many books one buy may request.
func (e *Engine) SetMaxPerTx(caller string, limit uint64) error {
	if limit == 0 {
		return ErrZeroQuantity
	}
	return e.updateConfig(caller, func(cfg *core.SaleConfig) { cfg.MaxPerTx = limit })
}

// TransferOwnership hands sale administration to owner.
func (e *Engine) TransferOwnership(caller, owner string) error {
	addr, err := normalize(owner)
	if err != nil {
		return err
	}
	return e.updateConfig(caller, func(cfg *core.SaleConfig) { cfg.Owner = addr })
}

func (e *Engine) updateConfig(caller string, mutate func(cfg *core.SaleConfig)) error {
	return e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		mutate(cfg)
		e.emit(events.EventSaleConfigUpdated, map[string]any{
			"owner": cfg.Owner, "treasury": cfg.Treasury, "max_per_tx": cfg.MaxPerTx,
		})
		return nil
	})
}
