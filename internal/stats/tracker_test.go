package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker()
	tr.now = clock.Now
	return tr, clock
}

func TestTracker_Counters(t *testing.T) {
	tr, _ := newTestTracker()
	tr.MarkOpen()

	tr.RecordRx(10)
	tr.RecordTx(6)
	tr.RecordRx(0)
	tr.RecordTx(-1)

	snap := tr.Snapshot()
	assert.Equal(t, uint64(10), snap.BytesReceived)
	assert.Equal(t, uint64(6), snap.BytesSent)
	assert.True(t, snap.IsConnected)
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	tr, _ := newTestTracker()
	tr.MarkOpen()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tr.RecordRx(3)
				tr.RecordTx(2)
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.Equal(t, uint64(16*1000*3), snap.BytesReceived)
	assert.Equal(t, uint64(16*1000*2), snap.BytesSent)
}

func TestTracker_UptimeFreezesOnClose(t *testing.T) {
	tr, clock := newTestTracker()

	assert.Equal(t, uint64(0), tr.Snapshot().UptimeSeconds)
	assert.False(t, tr.Snapshot().IsConnected)

	tr.MarkOpen()
	clock.Advance(42 * time.Second)
	assert.Equal(t, uint64(42), tr.Snapshot().UptimeSeconds)

	tr.MarkClosed()
	clock.Advance(time.Hour)

	snap := tr.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.Equal(t, uint64(42), snap.UptimeSeconds)

	// Reopening a tracker does not reset it
	tr.MarkOpen()
	assert.False(t, tr.Snapshot().IsConnected)
}

func TestTracker_CountersSurviveClose(t *testing.T) {
	tr, _ := newTestTracker()
	tr.MarkOpen()
	tr.RecordRx(5)
	tr.MarkClosed()

	assert.Equal(t, uint64(5), tr.Snapshot().BytesReceived)
}
