// Package indexer maintains secondary indexes over committed transactions so
// clients can list assets and unopened books by holder without scanning the
// full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/storage"
)

const (
	prefixOwnerAssets = "idx:owner:asset:"
	prefixHolderBooks = "idx:holder:book:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
// The executor only publishes events of committed transactions, so the
// indexes never observe rolled-back changes.
type Indexer struct {
	db     storage.DB
	logger *zap.Logger
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := &Indexer{db: db, logger: logger}
	emitter.Subscribe(events.EventAssetMinted, idx.onAssetMinted)
	emitter.Subscribe(events.EventAssetTransfer, idx.onAssetTransferred)
	emitter.Subscribe(events.EventAssetBurned, idx.onAssetBurned)
	emitter.Subscribe(events.EventBookAllocated, idx.onBookAllocated)
	emitter.Subscribe(events.EventBookTransferred, idx.onBookTransferred)
	emitter.Subscribe(events.EventBookOpened, idx.onBookOpened)
	return idx
}

// GetAssetsByOwner returns all asset IDs owned by the given pubkey.
func (idx *Indexer) GetAssetsByOwner(owner string) ([]string, error) {
	return getList[string](idx.db, prefixOwnerAssets+owner)
}

// GetBooksByHolder returns the unopened books currently held by holder.
func (idx *Indexer) GetBooksByHolder(holder string) ([]uint64, error) {
	return getList[uint64](idx.db, prefixHolderBooks+holder)
}

// ---- event handlers ----

func (idx *Indexer) onAssetMinted(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if owner == "" || assetID == "" {
		return
	}
	idx.check(ev, addToList(idx.db, prefixOwnerAssets+owner, assetID))
}

func (idx *Indexer) onAssetTransferred(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if assetID == "" || from == "" || to == "" {
		return
	}
	idx.check(ev, moveInList(idx.db, prefixOwnerAssets, from, to, assetID))
}

func (idx *Indexer) onAssetBurned(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if owner == "" || assetID == "" {
		return
	}
	idx.check(ev, removeFromList(idx.db, prefixOwnerAssets+owner, assetID))
}

func (idx *Indexer) onBookAllocated(ev events.Event) {
	to, _ := ev.Data["to"].(string)
	id, ok := ev.Data["book_id"].(uint64)
	if to == "" || !ok {
		return
	}
	idx.check(ev, addToList(idx.db, prefixHolderBooks+to, id))
}

func (idx *Indexer) onBookTransferred(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	id, ok := ev.Data["book_id"].(uint64)
	if from == "" || to == "" || !ok {
		return
	}
	idx.check(ev, moveInList(idx.db, prefixHolderBooks, from, to, id))
}

func (idx *Indexer) onBookOpened(ev events.Event) {
	holder, _ := ev.Data["holder"].(string)
	id, ok := ev.Data["book_id"].(uint64)
	if holder == "" || !ok {
		return
	}
	idx.check(ev, removeFromList(idx.db, prefixHolderBooks+holder, id))
}

func (idx *Indexer) check(ev events.Event, err error) {
	if err != nil {
		idx.logger.Warn("index update failed",
			zap.String("event", string(ev.Type)), zap.String("tx", ev.TxID), zap.Error(err))
	}
}

// ---- list helpers ----

func getList[T comparable](db storage.DB, key string) ([]T, error) {
	data, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []T
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func putList[T comparable](db storage.DB, key string, ids []T) error {
	if len(ids) == 0 {
		return db.Delete([]byte(key))
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), data)
}

func addToList[T comparable](db storage.DB, key string, value T) error {
	ids, err := getList[T](db, key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	return putList(db, key, append(ids, value))
}

func removeFromList[T comparable](db storage.DB, key string, value T) error {
	ids, err := getList[T](db, key)
	if err != nil {
		return err
	}
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	return putList(db, key, filtered)
}

func moveInList[T comparable](db storage.DB, prefix, from, to string, value T) error {
	if err := removeFromList(db, prefix+from, value); err != nil {
		return err
	}
	return addToList(db, prefix+to, value)
}
