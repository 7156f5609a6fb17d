package sale

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/holiman/uint256"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/events"
)

// SpillReport summarises a spillover run.
type SpillReport struct {
	Total     uint64                  `json:"total"`
	PerBucket [core.NumBuckets]uint64 `json:"per_bucket"`
}

// DistributeSpillover moves every undispensed pool book into the buckets.
// Pool 1's remainder comes first, then pool 2's; both pools end exhausted.
// The first total%8 buckets take one extra book. Each book lands at a
// pseudo-random position of its bucket as it stands at that moment.
//
// Placement mixes the block entropy, the block time, the bucket, a running
// counter and the caller. The block producer can predict all of these, so
// this is a weak shuffle that only spreads books, not a fairness guarantee.
// Run it before anything is drawn from the buckets: draws read by position.
func (e *Engine) DistributeSpillover(caller string) (*SpillReport, error) {
	var report *SpillReport
	err := e.atomic(func(cfg *core.SaleConfig) error {
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		var spill []uint64
		for n := uint8(1); n <= core.NumPools; n++ {
			c, err := e.store.GetContainer(core.PoolRef(n))
			if err != nil {
				return err
			}
			if c.Remaining() > 0 {
				spill = append(spill, c.IDs[c.Cursor:]...)
			}
			c.Cursor = uint64(len(c.IDs))
			c.Exhausted = true
			if err := e.store.SetContainer(c); err != nil {
				return err
			}
		}

		report = &SpillReport{Total: uint64(len(spill))}
		seed := spillSeed{entropy: e.entropy, time: e.nowFn(), caller: callerBytes(caller)}
		per, extra := len(spill)/core.NumBuckets, len(spill)%core.NumBuckets
		var counter uint64
		offset := 0
		for b := 0; b < core.NumBuckets; b++ {
			n := per
			if b < extra {
				n++
			}
			share := spill[offset : offset+n]
			offset += n
			report.PerBucket[b] = uint64(n)
			if n == 0 {
				continue
			}
			c, err := e.store.GetContainer(core.BucketRef(uint8(b)))
			if err != nil {
				return err
			}
			positions := make([]uint64, n)
			for k := range share {
				positions[k] = seed.position(uint8(b), counter, uint64(len(c.IDs)+k))
				counter++
			}
			c.IDs = insertAll(c.IDs, share, positions)
			c.Exhausted = c.Cursor >= uint64(len(c.IDs))
			if err := e.store.SetContainer(c); err != nil {
				return err
			}
		}

		cfg.Spilled = true
		e.emit(events.EventSpillover, map[string]any{
			"total": report.Total, "per_bucket": report.PerBucket,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

type spillSeed struct {
	entropy []byte
	time    int64
	caller  []byte
}

// position picks an insertion index in [0, length] for the counter-th
// spilled book going into bucket.
func (s spillSeed) position(bucket uint8, counter, length uint64) uint64 {
	var ts, ctr [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.time))
	binary.BigEndian.PutUint64(ctr[:], counter)
	h := crypto.Keccak256(s.entropy, ts[:], []byte{bucket}, ctr[:], s.caller)
	v := new(uint256.Int).SetBytes(h[:])
	return v.Mod(v, uint256.NewInt(length+1)).Uint64()
}

func callerBytes(caller string) []byte {
	if raw, err := hex.DecodeString(caller); err == nil {
		return raw
	}
	return []byte(caller)
}

// insertAll returns base with items inserted one after another, item k at
// index positions[k] of the slice as it stood after the first k inserts.
// The result equals repeated shift-insertion but is built in one pass:
// walking the inserts backwards, item k owns the positions[k]-th slot still
// free in the final slice, found with a Fenwick tree over free slots.
func insertAll(base, items []uint64, positions []uint64) []uint64 {
	size := len(base) + len(items)
	out := make([]uint64, size)
	taken := make([]bool, size)
	free := newFenwick(size)
	for k := len(items) - 1; k >= 0; k-- {
		slot := free.findKth(int(positions[k]))
		free.add(slot, -1)
		out[slot] = items[k]
		taken[slot] = true
	}
	j := 0
	for i := range out {
		if !taken[i] {
			out[i] = base[j]
			j++
		}
	}
	return out
}

// fenwick counts free slots; every slot starts free.
type fenwick struct {
	tree []int
	step int
}

func newFenwick(n int) *fenwick {
	f := &fenwick{tree: make([]int, n+1), step: 1}
	for i := 1; i <= n; i++ {
		f.tree[i]++
		if p := i + (i & -i); p <= n {
			f.tree[p] += f.tree[i]
		}
	}
	for f.step*2 <= n {
		f.step *= 2
	}
	return f
}

func (f *fenwick) add(slot, delta int) {
	for i := slot + 1; i < len(f.tree); i += i & -i {
		f.tree[i] += delta
	}
}

// findKth returns the 0-based slot of the k-th (0-based) free slot.
func (f *fenwick) findKth(k int) int {
	pos, rem := 0, k+1
	for step := f.step; step > 0; step /= 2 {
		if next := pos + step; next < len(f.tree) && f.tree[next] < rem {
			pos = next
			rem -= f.tree[next]
		}
	}
	return pos
}
