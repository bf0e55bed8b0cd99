package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
//
// Each subscriber runs on its own queue per event type, so two typed
// subscriptions (for example logs and status) may observe each other's events
// out of order. Consumers that need the exact per-server order across kinds
// use SubscribeOrdered.
type Bus struct {
	dispatcher *event.Dispatcher
	dropped    atomic.Uint64
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Server events are additionally published inside an Envelope.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case LogReceivedEvent:
		event.Publish(b.dispatcher, e)
	case StatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case RosterReceivedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
		return
	default:
		return
	}

	if se, ok := ev.(ServerEvent); ok {
		event.Publish(b.dispatcher, Envelope{Event: se})
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e StatusChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(LogReceivedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RosterReceivedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(Envelope):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Dropped returns how many events channel subscriptions discarded because
// the receiving channel was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscribeOrdered delivers every server event to handler on one queue, in
// the order the events were published.
func (b *Bus) SubscribeOrdered(handler func(ServerEvent)) func() {
	return event.Subscribe(b.dispatcher, func(e Envelope) {
		handler(e.Event)
	})
}
