package process

import (
	"slices"
	"sync"
	"time"

	"github.com/smazurov/pzmanager/internal/console"
	"github.com/smazurov/pzmanager/internal/launch"
)

// entry is one registered server. Every field is guarded by mu, and all
// event emission for the server happens while mu is held.
type entry struct {
	mu sync.Mutex

	id          string
	runID       string
	state       State
	handle      *Handle
	parser      *console.Parser
	spec        *launch.CommandSpec
	startedAt   time.Time
	killTimer   *time.Timer
	rosterTimer *time.Timer
}

// running reports whether the entry owns a live process. Caller holds mu.
func (e *entry) running() bool {
	return e.handle != nil && !e.handle.Exited()
}

// stopTimers cancels pending timers. Caller holds mu.
func (e *entry) stopTimers() {
	if e.killTimer != nil {
		e.killTimer.Stop()
		e.killTimer = nil
	}
	if e.rosterTimer != nil {
		e.rosterTimer.Stop()
		e.rosterTimer = nil
	}
}

// info snapshots the entry. Caller holds mu.
func (e *entry) info() Info {
	info := Info{
		ID:        e.id,
		State:     e.state,
		RunID:     e.runID,
		StartedAt: e.startedAt,
	}
	if e.handle != nil {
		info.PID = e.handle.PID()
	}
	if e.spec != nil {
		info.Mode = string(e.spec.Mode)
		info.Command = e.spec.String()
	}
	return info
}

// registry maps server ids to their entries. There is at most one entry per
// id; it is created by claim and removed once its process has exited.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

// claim returns a new locked entry for id, or false when id is taken.
func (r *registry) claim(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return nil, false
	}

	e := &entry{id: id, state: StateStopped}
	e.mu.Lock()
	r.entries[id] = e
	return e, true
}

// get returns the entry for id or nil.
func (r *registry) get(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// remove deletes id only while it still maps to e.
func (r *registry) remove(id string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
}

// snapshot returns all entries ordered by id.
func (r *registry) snapshot() []*entry {
	r.mu.RLock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *entry) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return out
}

// len returns the number of registered servers.
func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
