package events

import (
	"sync/atomic"

	"github.com/kelindar/event"

	"github.com/smazurov/pzmanager/internal/logging"
)

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// Events are dropped when ch is full and counted in Bus.Dropped.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	var full atomic.Bool
	return event.Subscribe(bus.dispatcher, func(e T) {
		send(bus, ch, any(e), &full, e.Type())
	})
}

// SubscribeServerToChannel forwards the ordered stream of one server's
// events (or all servers when serverID is empty) to ch. Like
// SubscribeToChannel it drops and counts events when ch is full.
func SubscribeServerToChannel(bus *Bus, serverID string, ch chan<- ServerEvent) func() {
	var full atomic.Bool
	return bus.SubscribeOrdered(func(e ServerEvent) {
		if serverID != "" && e.Server() != serverID {
			return
		}
		send(bus, ch, e, &full, e.Type())
	})
}

// send delivers ev without blocking the bus. Only the first drop of a run
// is logged; a full log stream would otherwise feed itself.
func send[T any](bus *Bus, ch chan<- T, ev T, full *atomic.Bool, kind uint32) {
	select {
	case ch <- ev:
		full.Store(false)
	default:
		bus.dropped.Add(1)
		if !full.Swap(true) {
			logging.GetLogger("events").Debug("Subscriber channel full, dropping events", "type", kind)
		}
	}
}
