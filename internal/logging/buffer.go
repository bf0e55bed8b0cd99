package logging

import (
	"sync"
	"time"
)

// LogEntry is one application log record as kept in memory and streamed
// over /api/logs/stream.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries. Entry n is stored at slot
// n % cap; written counts every entry ever stored.
type RingBuffer struct {
	mu      sync.RWMutex
	slots   []LogEntry
	written uint64
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{slots: make([]LogEntry, size)}
}

// Write stores entry, dropping the oldest one when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	rb.slots[rb.written%uint64(len(rb.slots))] = entry
	rb.written++
	rb.mu.Unlock()
}

// ReadAll returns the buffered entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Tail(-1)
}

// Tail returns the newest n entries, oldest first. A negative n returns
// everything buffered.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	held := rb.held()
	if n < 0 || n > held {
		n = held
	}
	if n == 0 {
		return nil
	}

	out := make([]LogEntry, n)
	size := uint64(len(rb.slots))
	for i, seq := 0, rb.written-uint64(n); seq < rb.written; i, seq = i+1, seq+1 {
		out[i] = rb.slots[seq%size]
	}
	return out
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.held()
}

func (rb *RingBuffer) held() int {
	if rb.written < uint64(len(rb.slots)) {
		return int(rb.written)
	}
	return len(rb.slots)
}
