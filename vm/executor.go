package vm

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/internal/metrics"
	"github.com/tolelom/tolbook/ledger"
	"github.com/tolelom/tolbook/sale"
)

// Context is passed to every Handler and provides access to the chain state,
// the current block, the triggering transaction, and the event sink. Events
// sent to Emitter are held until the transaction commits.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	Emitter events.Sink
	Logger  *zap.Logger
}

// Ledgers returns the asset ledgers bound to this transaction.
func (c *Context) Ledgers() *ledger.Set {
	return ledger.New(c.State, c.Emitter, c.Tx.ID, c.Block.Header.Height)
}

// Sale returns a sale engine bound to this transaction. Rounds resolve
// against the block time and spillover draws on the previous block hash.
func (c *Context) Sale() *sale.Engine {
	ls := c.Ledgers()
	eng := sale.NewEngine(c.State, sale.Ledgers{
		Native:    ls.Native,
		Secondary: ls.Secondary,
		Assets:    ls.Assets,
		Tools:     ls.Tools,
	})
	blockTime := c.Block.UnixTime()
	eng.SetNowFunc(func() int64 { return blockTime })
	eng.SetEntropy(c.Block.Entropy())
	eng.SetTxContext(c.Tx.ID, c.Block.Header.Height)
	eng.SetSink(c.Emitter)
	return eng
}

// Executor applies transactions to the state using the global Handler
// registry. Calls are serialized: one transaction runs at a time.
type Executor struct {
	mu      sync.Mutex
	state   core.State
	emitter *events.Emitter
	chainID string
	logger  *zap.Logger
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter, logger: zap.NewNop()}
}

// SetChainID makes the executor reject transactions signed for another chain.
func (e *Executor) SetChainID(id string) { e.chainID = id }

// SetLogger sets the executor's logger.
func (e *Executor) SetLogger(l *zap.Logger) {
	if l != nil {
		e.logger = l
	}
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// Events raised by the handler reach subscribers only if it succeeds.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	defer func() {
		metrics.ObserveTx(string(tx.Type), err, started)
	}()

	if e.chainID != "" && tx.ChainID != e.chainID {
		return fmt.Errorf("chain id mismatch: got %q want %q", tx.ChainID, e.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	// Addresses are compared as strings everywhere.
	if tx.From != strings.ToLower(tx.From) {
		return fmt.Errorf("from must be lowercase hex: %s", tx.From)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	var buf events.Buffer
	if err := e.applyTx(block, tx, &buf); err != nil {
		buf.Discard()
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		e.logger.Debug("tx reverted", zap.String("tx", tx.ID), zap.String("type", string(tx.Type)), zap.Error(err))
		return err
	}
	e.state.DiscardSnapshot(snapID)

	observeSale(buf.Events())
	if e.emitter != nil {
		buf.Flush(e.emitter)
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return nil
}

// applyTx deducts the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction, sink events.Sink) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	fee := uint256.NewInt(tx.Fee)
	if acc.Balance.Lt(fee) {
		return fmt.Errorf("insufficient balance for fee: have %s need %d", acc.Balance.Dec(), tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance = new(uint256.Int).Sub(acc.Balance, fee)
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}

	ctx := &Context{
		State:   e.state,
		Block:   block,
		Tx:      tx,
		Emitter: sink,
		Logger:  e.logger,
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}

func observeSale(evs []events.Event) {
	for _, ev := range evs {
		switch ev.Type {
		case events.EventBookAllocated:
			metrics.BooksAllocated(fmt.Sprint(ev.Data["round"]), 1)
		case events.EventBookOpened:
			metrics.BookOpened()
		}
	}
}
