package sale

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
)

// LoadPool replaces the contents of pool n (1 or 2) and rewinds it.
func (e *Engine) LoadPool(caller string, n uint8, ids []uint64) error {
	ref := core.PoolRef(n)
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadContainer, err)
	}
	return e.load(caller, ref, ids, [core.NumCategories]uint64{}, events.EventPoolLoaded)
}

// LoadBucket replaces the contents of bucket i (0..7) and rewinds it.
// counts records how many books of each category it holds.
func (e *Engine) LoadBucket(caller string, i uint8, ids []uint64, counts [core.NumCategories]uint64) error {
	ref := core.BucketRef(i)
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadContainer, err)
	}
	return e.load(caller, ref, ids, counts, events.EventBucketLoaded)
}

func (e *Engine) load(caller string, ref core.ContainerRef, ids []uint64, counts [core.NumCategories]uint64, typ events.EventType) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	return e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		queued, err := e.queuedElsewhere(ref)
		if err != nil {
			return err
		}
		seen := make(map[uint64]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				return fmt.Errorf("%w: %d", ErrDuplicateBook, id)
			}
			seen[id] = true
			b, err := e.book(id)
			if err != nil {
				return err
			}
			if b.Holder != "" {
				return fmt.Errorf("%w: %d", ErrBookAllocated, id)
			}
			if other, ok := queued[id]; ok {
				return fmt.Errorf("%w: %d in %s", ErrBookQueued, id, other)
			}
		}
		c := &core.Container{
			Ref:    ref,
			IDs:    append([]uint64(nil), ids...),
			Counts: counts,
		}
		if err := e.store.SetContainer(c); err != nil {
			return err
		}
		data := map[string]any{"container": ref.String(), "index": ref.Index, "size": len(ids)}
		if ref.Kind == core.KindBucket {
			data["counts"] = counts
		}
		e.emit(typ, data)
		return nil
	})
}

// queuedElsewhere maps every undispensed id of every container other than
// skip to the container holding it.
func (e *Engine) queuedElsewhere(skip core.ContainerRef) (map[uint64]core.ContainerRef, error) {
	refs := make([]core.ContainerRef, 0, core.NumPools+core.NumBuckets)
	for n := uint8(1); n <= core.NumPools; n++ {
		refs = append(refs, core.PoolRef(n))
	}
	for i := uint8(0); i < core.NumBuckets; i++ {
		refs = append(refs, core.BucketRef(i))
	}
	queued := make(map[uint64]core.ContainerRef)
	for _, ref := range refs {
		if ref == skip {
			continue
		}
		c, err := e.store.GetContainer(ref)
		if err != nil {
			return nil, err
		}
		if c.Remaining() == 0 {
			continue
		}
		for _, id := range c.IDs[c.Cursor:] {
			queued[id] = ref
		}
	}
	return queued, nil
}

// Container returns the state of one pool or bucket.
func (e *Engine) Container(ref core.ContainerRef) (*core.Container, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadContainer, err)
	}
	return e.store.GetContainer(ref)
}

// Remaining returns how many books ref can still dispense.
func (e *Engine) Remaining(ref core.ContainerRef) (uint64, error) {
	c, err := e.Container(ref)
	if err != nil {
		return 0, err
	}
	return c.Remaining(), nil
}

func (e *Engine) book(id uint64) (*core.Book, error) {
	b, err := e.store.GetBook(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBook, id)
	}
	return b, err
}

// drawer dispenses ids for one request. Containers are cached and written
// back by flush so a multi-book draw touches each container once.
type drawer struct {
	e     *Engine
	cfg   *core.SaleConfig
	cache map[core.ContainerRef]*core.Container
}

func (e *Engine) newDrawer(cfg *core.SaleConfig) *drawer {
	return &drawer{e: e, cfg: cfg, cache: make(map[core.ContainerRef]*core.Container)}
}

func (d *drawer) container(ref core.ContainerRef) (*core.Container, error) {
	if c, ok := d.cache[ref]; ok {
		return c, nil
	}
	c, err := d.e.store.GetContainer(ref)
	if err != nil {
		return nil, err
	}
	d.cache[ref] = c
	return c, nil
}

// from dispenses the next id of ref.
func (d *drawer) from(ref core.ContainerRef) (uint64, error) {
	c, err := d.container(ref)
	if err != nil {
		return 0, err
	}
	if c.Remaining() == 0 {
		c.Exhausted = true
		return 0, fmt.Errorf("%w: %s", ErrPoolExhausted, ref)
	}
	id := c.IDs[c.Cursor]
	c.Cursor++
	if c.Cursor == uint64(len(c.IDs)) {
		c.Exhausted = true
	}
	return id, nil
}

// fromBuckets dispenses from the bucket under the shared cursor, moving the
// cursor past empty buckets. The cursor only moves forward.
func (d *drawer) fromBuckets() (uint64, error) {
	for step := 0; step < core.NumBuckets; step++ {
		if d.cfg.BucketCursor >= core.NumBuckets {
			break
		}
		c, err := d.container(core.BucketRef(d.cfg.BucketCursor))
		if err != nil {
			return 0, err
		}
		if c.Remaining() > 0 {
			return d.from(c.Ref)
		}
		d.cfg.BucketCursor++
	}
	return 0, fmt.Errorf("%w: all buckets", ErrPoolExhausted)
}

// forRound dispenses the next id for a buyer in round.
func (d *drawer) forRound(round uint8) (uint64, error) {
	switch core.KindOfRound(round) {
	case core.RoundAllowance:
		return d.from(core.PoolRef(round))
	case core.RoundProof, core.RoundOpen:
		return d.fromBuckets()
	}
	return 0, ErrNoActiveRound
}

func (d *drawer) flush() error {
	for _, c := range d.cache {
		if err := d.e.store.SetContainer(c); err != nil {
			return err
		}
	}
	return nil
}
