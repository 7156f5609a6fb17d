// Package sale implements the book sale state machine: round scheduling,
// eligibility, payment settlement, pool and bucket inventory, spillover
// redistribution, redemption and the minter leaderboard.
//
// An Engine is bound to one transaction. Every mutating method runs inside a
// state snapshot and either commits all of its writes or none of them.
package sale

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/events"
)

// Store is the persistence surface the engine needs.
type Store interface {
	core.SaleState
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
}

// Params seed the sale configuration at genesis.
type Params struct {
	Owner    string
	Treasury string
	Vault    string
	MaxPerTx uint64
}

// Engine executes sale operations against a Store and the external ledgers.
type Engine struct {
	store   Store
	ledgers Ledgers
	sink    events.Sink
	nowFn   func() int64
	entropy []byte
	txID    string
	height  int64

	pending events.Buffer
	busy    bool
}

// NewEngine returns an engine over store that settles through ledgers.
func NewEngine(store Store, ledgers Ledgers) *Engine {
	return &Engine{
		store:   store,
		ledgers: ledgers,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetSink configures where events go once an operation commits.
func (e *Engine) SetSink(sink events.Sink) { e.sink = sink }

// SetNowFunc overrides the clock, in unix seconds, used to resolve rounds.
func (e *Engine) SetNowFunc(fn func() int64) {
	if fn != nil {
		e.nowFn = fn
	}
}

// SetEntropy sets the seed bytes mixed into spillover placement. Block
// producers know this value in advance.
func (e *Engine) SetEntropy(seed []byte) { e.entropy = seed }

// SetTxContext labels emitted events with the running transaction.
func (e *Engine) SetTxContext(txID string, height int64) {
	e.txID = txID
	e.height = height
}

// Initialize writes the sale configuration and the always-open admin round.
func (e *Engine) Initialize(p Params) error {
	if _, err := e.store.GetSaleConfig(); err == nil {
		return ErrInitialized
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	cfg := &core.SaleConfig{MaxPerTx: p.MaxPerTx}
	var err error
	if cfg.Owner, err = normalize(p.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if cfg.Treasury, err = normalize(p.Treasury); err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	if cfg.Vault, err = normalize(p.Vault); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if cfg.MaxPerTx == 0 {
		return ErrZeroQuantity
	}
	admin := &core.Round{
		ID:     core.AdminRound,
		Kind:   core.RoundAdmin,
		Start:  0,
		End:    math.MaxInt64,
		Active: true,
	}
	if err := e.store.SetRound(admin); err != nil {
		return err
	}
	return e.store.SetSaleConfig(cfg)
}

// Config returns the current sale configuration.
func (e *Engine) Config() (*core.SaleConfig, error) {
	cfg, err := e.store.GetSaleConfig()
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	return cfg, err
}

// atomic runs fn against the current config inside a snapshot. On success
// the config is persisted with its version bumped and buffered events are
// released to the sink; on failure every write and event is dropped.
func (e *Engine) atomic(fn func(cfg *core.SaleConfig) error) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	snap, err := e.store.Snapshot()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		e.pending.Discard()
		if rerr := e.store.RevertToSnapshot(snap); rerr != nil {
			return fmt.Errorf("%w (revert failed: %v)", err, rerr)
		}
		return err
	}
	cfg.Version++
	if err := e.store.SetSaleConfig(cfg); err != nil {
		e.pending.Discard()
		_ = e.store.RevertToSnapshot(snap)
		return err
	}
	e.store.DiscardSnapshot(snap)
	e.pending.Flush(e.sink)
	return nil
}

// guarded wraps atomic with the reentrancy lock used by buy and open. A
// ledger that calls back into the same engine while one of them runs gets
// ErrReentrant.
func (e *Engine) guarded(fn func(cfg *core.SaleConfig) error) error {
	if e.busy {
		return ErrReentrant
	}
	e.busy = true
	defer func() { e.busy = false }()
	return e.atomic(fn)
}

func (e *Engine) emit(typ events.EventType, data map[string]any) {
	e.pending.Emit(events.Event{Type: typ, TxID: e.txID, BlockHeight: e.height, Data: data})
}

func requireOwner(cfg *core.SaleConfig, caller string) error {
	if caller == "" || caller != cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

func normalize(addr string) (string, error) {
	out, err := crypto.NormalizeAddress(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return out, nil
}
