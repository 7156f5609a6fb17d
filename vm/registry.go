package vm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/tolbook/core"
)

var (
	// ErrUnknownTxType is returned for a transaction type no module handles.
	ErrUnknownTxType = errors.New("vm: no handler registered for tx type")
	// ErrBadPayload is returned when a payload does not decode into the
	// handler's payload type.
	ErrBadPayload = errors.New("vm: malformed payload")
)

// Handler executes one transaction against ctx.
type Handler func(ctx *Context, payload json.RawMessage) error

// Typed adapts fn, which takes a decoded payload, into a Handler. A payload
// that fails to decode is rejected with ErrBadPayload before fn runs.
func Typed[P any](fn func(ctx *Context, p *P) error) Handler {
	return func(ctx *Context, payload json.RawMessage) error {
		var p P
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrBadPayload, ctx.Tx.Type, err)
			}
		}
		return fn(ctx, &p)
	}
}

// Registry maps transaction types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.TxType]Handler)}
}

// Register binds typ to h. It panics on a duplicate type, which can only
// happen through a programming error in module init.
func (r *Registry) Register(typ core.TxType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("vm: handler already registered for %q", typ))
	}
	r.handlers[typ] = h
}

// Has reports whether typ has a handler.
func (r *Registry) Has(typ core.TxType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[typ]
	return ok
}

// Types returns every registered type in sorted order.
func (r *Registry) Types() []core.TxType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.TxType, 0, len(r.handlers))
	for typ := range r.handlers {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs the handler registered for typ.
func (r *Registry) Execute(typ core.TxType, ctx *Context, payload json.RawMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[typ]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTxType, typ)
	}
	return h(ctx, payload)
}

var globalRegistry = NewRegistry()

// Register adds a handler to the process-wide registry. Modules call it
// from init.
func Register(typ core.TxType, h Handler) {
	globalRegistry.Register(typ, h)
}

// Registered reports whether the process-wide registry handles typ.
func Registered(typ core.TxType) bool {
	return globalRegistry.Has(typ)
}

// RegisteredTypes lists the transaction types the node accepts.
func RegisteredTypes() []core.TxType {
	return globalRegistry.Types()
}
