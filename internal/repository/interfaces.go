// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/alexconrey/webmux/internal/model"
)

// JournalRepository defines connection journal data access operations
type JournalRepository interface {
	// Events
	RecordEvent(ctx context.Context, event *model.ConnectionEvent) error
	ListEvents(ctx context.Context, filter *EventFilter) ([]*model.ConnectionEvent, error)

	// Stats samples
	RecordSamples(ctx context.Context, samples []*model.StatsSample) error
	ListSamples(ctx context.Context, connection string, limit int) ([]*model.StatsSample, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// EventFilter narrows ListEvents
type EventFilter struct {
	Connection string
	EventType  *model.EventType
	Since      *time.Time
	Limit      int
}
