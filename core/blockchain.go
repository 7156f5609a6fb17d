package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when a requested object does not exist in storage.
	ErrNotFound = errors.New("not found")

	ErrHeightGap        = errors.New("chain: block does not follow tip")
	ErrPrevHashMismatch = errors.New("chain: prev hash does not match tip")
	ErrTimeReversed     = errors.New("chain: block time precedes tip")
	ErrNotGenesis       = errors.New("chain: first block must have height 0")
)

// BlockStore is the persistence interface used by Blockchain.
// Implementations live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	// CommitBlock atomically writes the block, its height index entry, and
	// updates the tip pointer in a single batch operation.
	CommitBlock(block *Block) error
}

// Blockchain tracks the sequenced chain of blocks and its tip.
type Blockchain struct {
	mu     sync.RWMutex
	store  BlockStore
	tip    *Block
	height int64
}

// NewBlockchain returns a Blockchain backed by store.
// Call Init() to load an existing chain tip from storage.
func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init loads the persisted tip from the block store.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip = tip
	bc.height = tip.Header.Height
	return nil
}

// AddBlock checks height continuity, PrevHash linkage and timestamp
// monotonicity, then persists the block and advances the tip.
func (bc *Blockchain) AddBlock(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if err := bc.follows(block); err != nil {
		return err
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	bc.tip = block
	bc.height = block.Header.Height
	return nil
}

func (bc *Blockchain) follows(block *Block) error {
	h := block.Header
	if bc.tip == nil {
		if h.Height != 0 {
			return fmt.Errorf("%w: got %d", ErrNotGenesis, h.Height)
		}
		return nil
	}
	switch {
	case h.Height != bc.height+1:
		return fmt.Errorf("%w: height %d after %d", ErrHeightGap, h.Height, bc.height)
	case h.PrevHash != bc.tip.Hash:
		return fmt.Errorf("%w: got %s want %s", ErrPrevHashMismatch, h.PrevHash, bc.tip.Hash)
	case h.Timestamp < bc.tip.Header.Timestamp:
		// round windows resolve against block time
		return fmt.Errorf("%w: %d < %d", ErrTimeReversed, h.Timestamp, bc.tip.Header.Timestamp)
	}
	return nil
}

// GetBlock returns a block by its hash.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlock(hash)
}

// GetBlockByHeight returns the block at the given height.
func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the current chain tip, or nil for a fresh chain.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the height of the current tip (0 for a fresh chain).
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}
