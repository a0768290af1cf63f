// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of journal event
type EventType string

const (
	EventStateChanged EventType = "STATE_CHANGED"
	EventOpenFailed   EventType = "OPEN_FAILED"
)

// ConnectionEvent is a journaled lifecycle change of a serial connection
type ConnectionEvent struct {
	ID         uuid.UUID `json:"id"`
	EventType  EventType `json:"event_type"`
	Connection string    `json:"connection"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Error      *string   `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewConnectionEvent creates an event stamped with a fresh ID and the current time
func NewConnectionEvent(eventType EventType, connection, from, to string, err error) *ConnectionEvent {
	event := &ConnectionEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		Connection: connection,
		FromState:  from,
		ToState:    to,
		OccurredAt: time.Now().UTC(),
	}
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	return event
}

// StatsSample is a periodic snapshot of a connection's counters
type StatsSample struct {
	ID            uuid.UUID `json:"id"`
	Connection    string    `json:"connection"`
	State         string    `json:"state"`
	BytesReceived int64     `json:"bytes_received"`
	BytesSent     int64     `json:"bytes_sent"`
	IsConnected   bool      `json:"is_connected"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Subscribers   int       `json:"subscribers"`
	DroppedChunks int64     `json:"dropped_chunks"`
	SampledAt     time.Time `json:"sampled_at"`
}
