package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/pzmanager/internal/events"
)

var (
	trackedBus atomic.Pointer[events.Bus]

	eventsDropped = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "pzmanager",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events discarded because a subscriber channel was full",
	}, func() float64 {
		if bus := trackedBus.Load(); bus != nil {
			return float64(bus.Dropped())
		}
		return 0
	})
)

// Track feeds server events from bus into the metrics and exports its drop
// count. It returns the unsubscribe function.
func Track(bus *events.Bus) func() {
	trackedBus.Store(bus)
	return bus.SubscribeOrdered(Record)
}

// Record applies one server event to the metrics.
func Record(ev events.ServerEvent) {
	switch e := ev.(type) {
	case events.LogReceivedEvent:
		IncConsoleLine(e.ServerID, e.Stream())
	case events.RosterReceivedEvent:
		SetPlayers(e.ServerID, len(e.Players), e.Timestamp)
	case events.StatusChangedEvent:
		switch e.State {
		case "starting":
			IncStarts(e.ServerID)
		case "stopped":
			if e.RunID != "" {
				IncExits(e.ServerID)
			}
		}
		SetServerState(e.ServerID, e.State)
	}
}
