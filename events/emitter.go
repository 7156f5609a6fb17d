package events

import (
	"sync"

	"go.uber.org/zap"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit EventType = "block_commit"
	EventTxExecuted  EventType = "tx_executed"

	// ledgers
	EventTokenTransfer     EventType = "token_transfer"
	EventAssetMinted       EventType = "asset_minted"
	EventAssetBurned       EventType = "asset_burned"
	EventAssetTransfer     EventType = "asset_transfer"
	EventAssetRevealed     EventType = "asset_revealed"
	EventTemplateReg       EventType = "template_registered"
	EventToolsTransfer     EventType = "tools_transfer"
	EventSecondaryTransfer EventType = "secondary_transfer"
	EventSecondaryApproval EventType = "secondary_approval"

	// sale
	EventRoundUpdated       EventType = "round_updated"
	EventPaymentConfigured  EventType = "payment_configured"
	EventAllowanceSet       EventType = "allowance_set"
	EventMerkleRootSet      EventType = "merkle_root_set"
	EventPoolLoaded         EventType = "pool_loaded"
	EventBucketLoaded       EventType = "bucket_loaded"
	EventBookRegistered     EventType = "book_registered"
	EventBookAllocated      EventType = "book_allocated"
	EventBookOpened         EventType = "book_opened"
	EventBookTransferred    EventType = "book_transferred"
	EventLeaderboardUpdated EventType = "leaderboard_updated"
	EventSpillover          EventType = "spillover_distributed"
	EventSaleConfigUpdated  EventType = "sale_config_updated"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Sink accepts events. Both Emitter and Buffer implement it.
type Sink interface {
	Emit(ev Event)
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	logger   *zap.Logger
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler), logger: zap.NewNop()}
}

// SetLogger sets the logger used to report panicking subscribers.
func (e *Emitter) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	e.logger = l
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("event handler panicked",
						zap.String("event", string(ev.Type)), zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}

// Buffer collects events raised while a transaction executes. The executor
// flushes it only once the transaction commits, so subscribers never observe
// changes that were rolled back.
type Buffer struct {
	events []Event
}

// Emit records ev.
func (b *Buffer) Emit(ev Event) {
	b.events = append(b.events, ev)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	return b.events
}

// Flush delivers the buffered events to sink and empties the buffer.
func (b *Buffer) Flush(sink Sink) {
	if sink != nil {
		for _, ev := range b.events {
			sink.Emit(ev)
		}
	}
	b.events = nil
}

// Discard drops every buffered event.
func (b *Buffer) Discard() {
	b.events = nil
}
