// Package metrics provides Prometheus metrics for supervised game servers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/pzmanager/internal/events"
)

// States tracked by the state gauge.
var States = []string{"stopped", "starting", "running", "stopping"}

var (
	serverState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pzmanager",
		Subsystem: "server",
		Name:      "state",
		Help:      "Lifecycle state of a server, 1 for the current state",
	}, []string{"server_id", "state"})

	serverPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pzmanager",
		Subsystem: "server",
		Name:      "players",
		Help:      "Players in the most recent roster",
	}, []string{"server_id"})

	consoleLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pzmanager",
		Subsystem: "console",
		Name:      "lines_total",
		Help:      "Console lines per server by stream; stream=\"manager\" counts messages the manager reports itself",
	}, []string{"server_id", "stream"})

	serverStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pzmanager",
		Subsystem: "server",
		Name:      "starts_total",
		Help:      "Processes spawned",
	}, []string{"server_id"})

	serverExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pzmanager",
		Subsystem: "server",
		Name:      "exits_total",
		Help:      "Processes that exited",
	}, []string{"server_id"})

	// Local cache for the API.
	cache   = make(map[string]*ServerMetrics)
	cacheMu sync.RWMutex
)

// ServerMetrics holds current metric values for a server.
type ServerMetrics struct {
	State        string
	Players      int
	StdoutLines  float64
	StderrLines  float64
	ManagerLines float64
	Starts       float64
	Exits        float64
	LastRosterAt string
}

// SetServerState marks state as the current state of serverID.
func SetServerState(serverID, state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		serverState.WithLabelValues(serverID, s).Set(v)
	}
	updateCache(serverID, func(m *ServerMetrics) { m.State = state })
}

// SetPlayers records the size of the latest roster.
func SetPlayers(serverID string, count int, at string) {
	serverPlayers.WithLabelValues(serverID).Set(float64(count))
	updateCache(serverID, func(m *ServerMetrics) {
		m.Players = count
		m.LastRosterAt = at
	})
}

// IncConsoleLine counts one line of stream: stdout, stderr or manager.
func IncConsoleLine(serverID, stream string) {
	consoleLines.WithLabelValues(serverID, stream).Inc()
	updateCache(serverID, func(m *ServerMetrics) {
		switch stream {
		case events.SourceStderr:
			m.StderrLines++
		case events.SourceManager:
			m.ManagerLines++
		default:
			m.StdoutLines++
		}
	})
}

// IncStarts counts a spawned process.
func IncStarts(serverID string) {
	serverStarts.WithLabelValues(serverID).Inc()
	updateCache(serverID, func(m *ServerMetrics) { m.Starts++ })
}

// IncExits counts an exited process.
func IncExits(serverID string) {
	serverExits.WithLabelValues(serverID).Inc()
	updateCache(serverID, func(m *ServerMetrics) { m.Exits++ })
}

// DeleteServerMetrics removes all metrics for a server.
func DeleteServerMetrics(serverID string) {
	for _, s := range States {
		serverState.DeleteLabelValues(serverID, s)
	}
	serverPlayers.DeleteLabelValues(serverID)
	for _, stream := range []string{events.SourceStdout, events.SourceStderr, events.SourceManager} {
		consoleLines.DeleteLabelValues(serverID, stream)
	}
	serverStarts.DeleteLabelValues(serverID)
	serverExits.DeleteLabelValues(serverID)

	cacheMu.Lock()
	delete(cache, serverID)
	cacheMu.Unlock()
}

// GetServerMetrics returns current metric values for a server.
func GetServerMetrics(serverID string) *ServerMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if m, ok := cache[serverID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(serverID string, update func(*ServerMetrics)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	m, ok := cache[serverID]
	if !ok {
		m = &ServerMetrics{}
		cache[serverID] = m
	}
	update(m)
}
