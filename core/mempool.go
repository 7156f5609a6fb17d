package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	maxMempoolSize = 10_000
	maxPerSender   = 256
	maxTxAge       = int64(time.Hour)       // reject txs older than 1 hour
	maxTxFuture    = int64(5 * time.Minute) // reject txs more than 5 min in the future
)

// Mempool errors.
var (
	ErrMempoolFull    = errors.New("mempool full")
	ErrSenderLimit    = errors.New("too many pending transactions from sender")
	ErrDuplicateTx    = errors.New("tx already in pool")
	ErrTxExpired      = errors.New("transaction expired")
	ErrTxFromFuture   = errors.New("transaction timestamp too far in the future")
	ErrNonceCollision = errors.New("pending transaction with same sender and nonce")
)

// Mempool is a thread-safe pending-transaction pool. Pending returns
// transactions in arrival order, except that each sender's transactions are
// reordered by nonce so a buyer's queued requests apply in sequence.
type Mempool struct {
	mu       sync.RWMutex
	txs      map[string]*Transaction
	ord      []string // insertion-ordered IDs
	bySender map[string]map[uint64]string
	nowFn    func() int64
}

// NewMempool creates an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{
		txs:      make(map[string]*Transaction),
		bySender: make(map[string]map[uint64]string),
		nowFn:    func() int64 { return time.Now().UnixNano() },
	}
}

// Add validates and inserts a transaction.
func (m *Mempool) Add(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	now := m.nowFn()
	if now-tx.Timestamp > maxTxAge {
		return ErrTxExpired
	}
	if tx.Timestamp-now > maxTxFuture {
		return ErrTxFromFuture
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= maxMempoolSize {
		return ErrMempoolFull
	}
	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	nonces := m.bySender[tx.From]
	if nonces == nil {
		nonces = make(map[uint64]string)
		m.bySender[tx.From] = nonces
	}
	if _, taken := nonces[tx.Nonce]; taken {
		return ErrNonceCollision
	}
	if len(nonces) >= maxPerSender {
		return ErrSenderLimit
	}
	nonces[tx.Nonce] = tx.ID
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	return nil
}

// Get returns a transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n pending transactions.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Slots keep arrival order across senders; within a sender the slots
	// are refilled in nonce order.
	slots := make(map[string][]int)
	result := make([]*Transaction, 0, min(n, len(m.ord)))
	for _, id := range m.ord {
		tx, ok := m.txs[id]
		if !ok {
			continue
		}
		slots[tx.From] = append(slots[tx.From], len(result))
		result = append(result, tx)
	}
	for _, idx := range slots {
		if len(idx) < 2 {
			continue
		}
		sorted := make([]*Transaction, len(idx))
		for i, at := range idx {
			sorted[i] = result[at]
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Nonce < sorted[j].Nonce })
		for i, at := range idx {
			result[at] = sorted[i]
		}
	}
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Remove deletes transactions by ID (called after block commit).
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if tx, ok := m.txs[id]; ok {
			if nonces := m.bySender[tx.From]; nonces != nil {
				delete(nonces, tx.Nonce)
				if len(nonces) == 0 {
					delete(m.bySender, tx.From)
				}
			}
		}
		delete(m.txs, id)
		removed[id] = true
	}
	filtered := m.ord[:0]
	for _, id := range m.ord {
		if !removed[id] {
			filtered = append(filtered, id)
		}
	}
	m.ord = filtered
}

// Size returns the current number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
