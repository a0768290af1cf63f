package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/model"
	"github.com/alexconrey/webmux/internal/repository"
	"github.com/alexconrey/webmux/internal/stats"
)

type fakeJournalRepo struct {
	mu        sync.Mutex
	events    []*model.ConnectionEvent
	samples   []*model.StatsSample
	cutoff    time.Time
	failEvent bool
}

func (r *fakeJournalRepo) RecordEvent(_ context.Context, event *model.ConnectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEvent {
		return errors.New("connection refused")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *fakeJournalRepo) ListEvents(_ context.Context, filter *repository.EventFilter) ([]*model.ConnectionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ConnectionEvent
	for _, e := range r.events {
		if filter.Connection == "" || filter.Connection == e.Connection {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeJournalRepo) RecordSamples(_ context.Context, samples []*model.StatsSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, samples...)
	return nil
}

func (r *fakeJournalRepo) ListSamples(_ context.Context, name string, _ int) ([]*model.StatsSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StatsSample
	for _, s := range r.samples {
		if s.Connection == name {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeJournalRepo) DeleteOlderThan(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoff = olderThan
	return 3, nil
}

func (r *fakeJournalRepo) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *fakeJournalRepo) sampleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

type staticStats []connection.Stats

func (s staticStats) Stats() []connection.Stats { return s }

func testStats() staticStats {
	return staticStats{{
		Name:        "plc",
		Port:        "/dev/ttyS0",
		Snapshot:    stats.Snapshot{BytesReceived: 120, BytesSent: 16, IsConnected: true, UptimeSeconds: 42},
		State:       connection.StateOpen,
		Subscribers: 2,
	}}
}

func TestJournalService_RecordsStateChanges(t *testing.T) {
	repo := &fakeJournalRepo{}
	js := NewJournalService(repo, nil, config.DatabaseConfig{}, zap.NewNop())
	js.Start(context.Background())

	js.OnStateChange("plc", connection.StateOpening, connection.StateOpen, nil)
	js.OnStateChange("plc", connection.StateOpen, connection.StateFaulted, errors.New("device unplugged"))
	js.RecordOpenFailure("spare", errors.New("no such file or directory"))
	js.Stop()

	events, err := js.ListEvents(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, model.EventStateChanged, events[0].EventType)
	assert.Equal(t, "opening", events[0].FromState)
	assert.Equal(t, "open", events[0].ToState)
	assert.Nil(t, events[0].Error)

	require.NotNil(t, events[1].Error)
	assert.Equal(t, "device unplugged", *events[1].Error)

	assert.Equal(t, model.EventOpenFailed, events[2].EventType)
	assert.Equal(t, "spare", events[2].Connection)
}

func TestJournalService_DropsWhenQueueFull(t *testing.T) {
	repo := &fakeJournalRepo{}
	js := NewJournalService(repo, nil, config.DatabaseConfig{}, zap.NewNop())

	for i := 0; i < journalQueueSize+5; i++ {
		js.OnStateChange("plc", connection.StateOpen, connection.StateClosing, nil)
	}
	assert.Equal(t, uint64(5), js.Dropped())

	js.Start(context.Background())
	js.Stop()
	assert.Equal(t, journalQueueSize, repo.eventCount())
}

func TestJournalService_RepositoryErrorsDoNotStopWriter(t *testing.T) {
	repo := &fakeJournalRepo{failEvent: true}
	js := NewJournalService(repo, nil, config.DatabaseConfig{}, zap.NewNop())
	js.Start(context.Background())

	js.OnStateChange("plc", connection.StateOpening, connection.StateOpen, nil)
	time.Sleep(20 * time.Millisecond)

	repo.mu.Lock()
	repo.failEvent = false
	repo.mu.Unlock()

	js.OnStateChange("plc", connection.StateOpen, connection.StateClosing, nil)
	js.Stop()

	assert.Equal(t, 1, repo.eventCount())
}

func TestJournalService_SamplesStats(t *testing.T) {
	repo := &fakeJournalRepo{}
	js := NewJournalService(repo, testStats(), config.DatabaseConfig{}, zap.NewNop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	js.now = func() time.Time { return fixed }

	js.sample(context.Background())

	samples, err := js.ListSamples(context.Background(), "plc", 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "open", samples[0].State)
	assert.Equal(t, int64(120), samples[0].BytesReceived)
	assert.Equal(t, int64(16), samples[0].BytesSent)
	assert.Equal(t, int64(42), samples[0].UptimeSeconds)
	assert.Equal(t, 2, samples[0].Subscribers)
	assert.Equal(t, fixed, samples[0].SampledAt)
}

func TestJournalService_PeriodicSampling(t *testing.T) {
	repo := &fakeJournalRepo{}
	js := NewJournalService(repo, nil, config.DatabaseConfig{
		SnapshotInterval: 10 * time.Millisecond,
	}, zap.NewNop())
	js.SetSource(testStats())
	js.Start(context.Background())
	defer js.Stop()

	assert.Eventually(t, func() bool { return repo.sampleCount() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestJournalService_Cleanup(t *testing.T) {
	repo := &fakeJournalRepo{}
	js := NewJournalService(repo, nil, config.DatabaseConfig{Retention: 24 * time.Hour}, zap.NewNop())
	fixed := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	js.now = func() time.Time { return fixed }

	js.cleanup(context.Background())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), repo.cutoff)
}
