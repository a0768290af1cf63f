// internal/repository/journal_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/database"
	"github.com/alexconrey/webmux/internal/model"
	"github.com/alexconrey/webmux/internal/utils"
)

const defaultListLimit = 100

// journalRepository implements JournalRepository on Postgres
type journalRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewJournalRepository creates a new journal repository
func NewJournalRepository(db *database.DB, logger *zap.Logger) JournalRepository {
	return &journalRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "journal-repository"),
	}
}

// RecordEvent stores a connection lifecycle event
func (r *journalRepository) RecordEvent(ctx context.Context, event *model.ConnectionEvent) error {
	query := `
		INSERT INTO connection_events (
			id, event_type, connection, from_state, to_state, error, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.EventType, event.Connection,
		event.FromState, event.ToState, event.Error, event.OccurredAt,
	)

	if err != nil {
		r.logger.Error("Failed to record connection event", zap.Error(err))
		return fmt.Errorf("failed to record connection event: %w", err)
	}

	return nil
}

// ListEvents returns events, newest first
func (r *journalRepository) ListEvents(ctx context.Context, filter *EventFilter) ([]*model.ConnectionEvent, error) {
	query, args := buildEventsQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connection events: %w", err)
	}
	defer rows.Close()

	var events []*model.ConnectionEvent
	for rows.Next() {
		event := &model.ConnectionEvent{}
		if err := rows.Scan(
			&event.ID, &event.EventType, &event.Connection,
			&event.FromState, &event.ToState, &event.Error, &event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connection events: %w", err)
	}

	return events, nil
}

// buildEventsQuery renders the SELECT for filter with positional arguments
func buildEventsQuery(filter *EventFilter) (string, []interface{}) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Connection != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("connection = $%d", argIndex))
		args = append(args, filter.Connection)
		argIndex++
	}

	if filter.EventType != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("event_type = $%d", argIndex))
		args = append(args, *filter.EventType)
		argIndex++
	}

	if filter.Since != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("occurred_at >= $%d", argIndex))
		args = append(args, *filter.Since)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, event_type, connection, from_state, to_state, error, occurred_at
		FROM connection_events
		%s
		ORDER BY occurred_at DESC
		LIMIT $%d
	`, whereClause, argIndex)

	return query, args
}

// RecordSamples stores a batch of stats samples in one transaction
func (r *journalRepository) RecordSamples(ctx context.Context, samples []*model.StatsSample) (err error) {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stats_samples (
			id, connection, state, bytes_received, bytes_sent, is_connected,
			uptime_seconds, subscribers, dropped_chunks, sampled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err = stmt.ExecContext(ctx,
			s.ID, s.Connection, s.State, s.BytesReceived, s.BytesSent,
			s.IsConnected, s.UptimeSeconds, s.Subscribers, s.DroppedChunks, s.SampledAt,
		); err != nil {
			return fmt.Errorf("failed to record stats sample for %s: %w", s.Connection, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats samples: %w", err)
	}
	return nil
}

// ListSamples returns the latest samples of a connection, newest first
func (r *journalRepository) ListSamples(ctx context.Context, connection string, limit int) ([]*model.StatsSample, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, connection, state, bytes_received, bytes_sent, is_connected,
			   uptime_seconds, subscribers, dropped_chunks, sampled_at
		FROM stats_samples
		WHERE connection = $1
		ORDER BY sampled_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, connection, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats samples: %w", err)
	}
	defer rows.Close()

	var samples []*model.StatsSample
	for rows.Next() {
		s := &model.StatsSample{}
		if err := rows.Scan(
			&s.ID, &s.Connection, &s.State, &s.BytesReceived, &s.BytesSent,
			&s.IsConnected, &s.UptimeSeconds, &s.Subscribers, &s.DroppedChunks, &s.SampledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stats sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats samples: %w", err)
	}

	return samples, nil
}

// DeleteOlderThan removes events and samples older than the cutoff
func (r *journalRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64

	for _, query := range []string{
		`DELETE FROM connection_events WHERE occurred_at < $1`,
		`DELETE FROM stats_samples WHERE sampled_at < $1`,
	} {
		start := time.Now()
		result, err := r.db.ExecContext(ctx, query, olderThan)
		r.logger.LogDatabaseQuery(query, time.Since(start), err)
		if err != nil {
			return total, fmt.Errorf("failed to delete old journal records: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
	}

	return total, nil
}
