package events

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEmitterDeliversByType(t *testing.T) {
	e := NewEmitter()
	var got []EventType
	e.Subscribe(EventBookAllocated, func(ev Event) { got = append(got, ev.Type) })
	e.Subscribe(EventBookOpened, func(ev Event) { got = append(got, ev.Type) })

	e.Emit(Event{Type: EventBookOpened})
	e.Emit(Event{Type: EventRoundUpdated})
	e.Emit(Event{Type: EventBookAllocated})
	require.Equal(t, []EventType{EventBookOpened, EventBookAllocated}, got)
}

func TestPanickingHandlerIsContained(t *testing.T) {
	obs, logs := observer.New(zap.ErrorLevel)
	e := NewEmitter()
	e.SetLogger(zap.New(obs))

	reached := false
	e.Subscribe(EventBookOpened, func(Event) { panic("boom") })
	e.Subscribe(EventBookOpened, func(Event) { reached = true })

	require.NotPanics(t, func() { e.Emit(Event{Type: EventBookOpened}) })
	require.True(t, reached, "later handlers still run")
	require.Equal(t, 1, logs.FilterMessage("event handler panicked").Len())
}

func TestBufferFlushesOnlyOnDemand(t *testing.T) {
	e := NewEmitter()
	var seen int
	e.Subscribe(EventBookAllocated, func(Event) { seen++ })

	var b Buffer
	b.Emit(Event{Type: EventBookAllocated})
	b.Emit(Event{Type: EventBookAllocated})
	require.Len(t, b.Events(), 2)
	require.Zero(t, seen)

	b.Discard()
	b.Flush(e)
	require.Zero(t, seen, "discarded events are never delivered")

	b.Emit(Event{Type: EventBookAllocated})
	b.Flush(e)
	require.Equal(t, 1, seen)
	require.Empty(t, b.Events())
}
