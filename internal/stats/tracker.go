// Package stats tracks traffic counters and uptime for a single serial connection.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of a connection's counters
type Snapshot struct {
	BytesReceived uint64 `json:"bytes_received"`
	BytesSent     uint64 `json:"bytes_sent"`
	IsConnected   bool   `json:"is_connected"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
}

// Tracker holds monotonic RX/TX counters. Counters are never reset.
type Tracker struct {
	rx atomic.Uint64
	tx atomic.Uint64

	mu        sync.RWMutex
	openedAt  time.Time
	closedAt  time.Time
	connected bool

	now func() time.Time
}

// NewTracker creates a tracker for a connection that has not opened yet
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordRx adds n received bytes
func (t *Tracker) RecordRx(n int) {
	if n > 0 {
		t.rx.Add(uint64(n))
	}
}

// RecordTx adds n sent bytes
func (t *Tracker) RecordTx(n int) {
	if n > 0 {
		t.tx.Add(uint64(n))
	}
}

// MarkOpen captures opened_at. Only the first call has an effect.
func (t *Tracker) MarkOpen() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.openedAt.IsZero() {
		return
	}
	t.openedAt = t.now()
	t.connected = true
}

// MarkClosed freezes uptime. Only the first call has an effect.
func (t *Tracker) MarkClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return
	}
	t.closedAt = t.now()
	t.connected = false
}

// Snapshot returns the current counters
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	openedAt, closedAt, connected := t.openedAt, t.closedAt, t.connected
	t.mu.RUnlock()

	snap := Snapshot{
		BytesReceived: t.rx.Load(),
		BytesSent:     t.tx.Load(),
		IsConnected:   connected,
	}

	if !openedAt.IsZero() {
		end := closedAt
		if connected {
			end = t.now()
		}
		if d := end.Sub(openedAt); d > 0 {
			snap.UptimeSeconds = uint64(d / time.Second)
		}
	}
	return snap
}
