// internal/service/journal_service.go
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/model"
	"github.com/alexconrey/webmux/internal/repository"
	"github.com/alexconrey/webmux/internal/utils"
)

const (
	journalQueueSize    = 256
	journalWriteTimeout = 5 * time.Second
	cleanupInterval     = time.Hour
)

// StatsSource provides the current counters of every connection
type StatsSource interface {
	Stats() []connection.Stats
}

// JournalService persists connection lifecycle events and periodic stats
// samples. Recording never blocks the connection that reported it.
type JournalService struct {
	repo   repository.JournalRepository
	source StatsSource
	config config.DatabaseConfig
	logger *utils.ServiceLogger

	events   chan *model.ConnectionEvent
	dropped  atomic.Uint64
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewJournalService creates a new journal service
func NewJournalService(
	repo repository.JournalRepository,
	source StatsSource,
	cfg config.DatabaseConfig,
	logger *zap.Logger,
) *JournalService {
	return &JournalService{
		repo:   repo,
		source: source,
		config: cfg,
		logger: utils.NewServiceLogger(logger, "journal-service"),
		events: make(chan *model.ConnectionEvent, journalQueueSize),
		stop:   make(chan struct{}),
		now:    time.Now,
	}
}

// SetSource sets the connections sampled for stats. Must be called before Start.
func (js *JournalService) SetSource(source StatsSource) {
	js.source = source
}

// OnStateChange queues a state change for persistence
func (js *JournalService) OnStateChange(name string, from, to connection.State, err error) {
	js.enqueue(model.NewConnectionEvent(model.EventStateChanged, name, from.String(), to.String(), err))
}

// RecordOpenFailure queues an event for a connection that never opened
func (js *JournalService) RecordOpenFailure(name string, err error) {
	js.enqueue(model.NewConnectionEvent(
		model.EventOpenFailed, name,
		connection.StateOpening.String(), connection.StateFaulted.String(), err,
	))
}

// Dropped returns how many events were discarded because the queue was full
func (js *JournalService) Dropped() uint64 {
	return js.dropped.Load()
}

func (js *JournalService) enqueue(event *model.ConnectionEvent) {
	select {
	case js.events <- event:
	default:
		if n := js.dropped.Add(1); n == 1 || n%100 == 0 {
			js.logger.Warn("Journal queue full, dropping event",
				zap.String("connection", event.Connection),
				zap.String("to_state", event.ToState),
				zap.Uint64("dropped", n),
			)
		}
	}
}

// Start launches the event writer, the stats sampler and retention cleanup
func (js *JournalService) Start(ctx context.Context) {
	js.wg.Add(1)
	go js.writeEvents()

	if js.config.SnapshotInterval > 0 && js.source != nil {
		js.wg.Add(1)
		go js.every(ctx, js.config.SnapshotInterval, js.sample)
	}

	if js.config.Retention > 0 {
		js.wg.Add(1)
		go js.every(ctx, cleanupInterval, js.cleanup)
	}

	js.logger.Info("Journal service started",
		zap.Duration("snapshot_interval", js.config.SnapshotInterval),
		zap.Duration("retention", js.config.Retention),
	)
}

// Stop halts background work and flushes queued events
func (js *JournalService) Stop() {
	js.stopOnce.Do(func() {
		close(js.stop)
	})
	js.wg.Wait()
	js.logger.LogServiceStop("shutdown")
}

// ListEvents returns journaled events matching the filter
func (js *JournalService) ListEvents(ctx context.Context, filter *repository.EventFilter) ([]*model.ConnectionEvent, error) {
	if filter == nil {
		filter = &repository.EventFilter{}
	}
	return js.repo.ListEvents(ctx, filter)
}

// ListSamples returns the latest stats samples of a connection
func (js *JournalService) ListSamples(ctx context.Context, name string, limit int) ([]*model.StatsSample, error) {
	return js.repo.ListSamples(ctx, name, limit)
}

// writeEvents runs until Stop so that shutdown transitions are still recorded
func (js *JournalService) writeEvents() {
	defer js.wg.Done()

	for {
		select {
		case event := <-js.events:
			js.record(event)
		case <-js.stop:
			js.drain()
			return
		}
	}
}

func (js *JournalService) drain() {
	for {
		select {
		case event := <-js.events:
			js.record(event)
		default:
			return
		}
	}
}

func (js *JournalService) record(event *model.ConnectionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := js.repo.RecordEvent(ctx, event); err != nil {
		js.logger.Warn("Failed to journal connection event",
			zap.String("connection", event.Connection),
			zap.Error(err),
		)
	}
}

func (js *JournalService) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer js.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-js.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (js *JournalService) sample(ctx context.Context) {
	stats := js.source.Stats()
	if len(stats) == 0 {
		return
	}

	now := js.now().UTC()
	samples := make([]*model.StatsSample, 0, len(stats))
	for _, s := range stats {
		samples = append(samples, &model.StatsSample{
			ID:            uuid.New(),
			Connection:    s.Name,
			State:         s.State.String(),
			BytesReceived: int64(s.BytesReceived),
			BytesSent:     int64(s.BytesSent),
			IsConnected:   s.IsConnected,
			UptimeSeconds: int64(s.UptimeSeconds),
			Subscribers:   s.Subscribers,
			DroppedChunks: int64(s.DroppedChunks),
			SampledAt:     now,
		})
	}

	writeCtx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()

	if err := js.repo.RecordSamples(writeCtx, samples); err != nil {
		js.logger.Warn("Failed to record stats samples", zap.Error(err))
	}
}

func (js *JournalService) cleanup(ctx context.Context) {
	cutoff := js.now().Add(-js.config.Retention)

	writeCtx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()

	deleted, err := js.repo.DeleteOlderThan(writeCtx, cutoff)
	if err != nil {
		js.logger.Warn("Journal cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		js.logger.Info("Journal cleanup completed",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
