package sale

import (
	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
)

// recordMint credits q books to addr on the leaderboard, listing addr on
// its first allocation.
func (e *Engine) recordMint(addr string, q uint64) error {
	total, err := e.store.GetMinterTotal(addr)
	if err != nil {
		return err
	}
	if total == 0 {
		if err := e.store.AppendMinter(addr); err != nil {
			return err
		}
	}
	total += q
	if err := e.store.SetMinterTotal(addr, total); err != nil {
		return err
	}
	e.emit(events.EventLeaderboardUpdated, map[string]any{"address": addr, "total": total})
	return nil
}

// MinterTotal returns how many books addr has been allocated.
func (e *Engine) MinterTotal(addr string) (uint64, error) {
	norm, err := normalize(addr)
	if err != nil {
		return 0, err
	}
	return e.store.GetMinterTotal(norm)
}

// TopMinters returns up to limit minters ordered by total descending, ties
// going to the smaller address. limit is clamped to [0, 50].
//
// Selection is O(n*limit) over the full minters list.
func (e *Engine) TopMinters(limit int) ([]core.MinterEntry, error) {
	if limit <= 0 {
		return []core.MinterEntry{}, nil
	}
	if limit > core.MaxLeaderboard {
		limit = core.MaxLeaderboard
	}
	addrs, err := e.store.GetMinters()
	if err != nil {
		return nil, err
	}
	rows := make([]core.MinterEntry, len(addrs))
	for i, a := range addrs {
		total, err := e.store.GetMinterTotal(a)
		if err != nil {
			return nil, err
		}
		rows[i] = core.MinterEntry{Address: a, Total: total}
	}
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		best := i
		for j := i + 1; j < len(rows); j++ {
			if ranksAbove(rows[j], rows[best]) {
				best = j
			}
		}
		rows[i], rows[best] = rows[best], rows[i]
	}
	return rows[:limit], nil
}

func ranksAbove(a, b core.MinterEntry) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	return a.Address < b.Address
}
