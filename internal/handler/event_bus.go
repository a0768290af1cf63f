// internal/handler/event_bus.go
package handler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/connection"
)

// EventStateChanged is published for every connection state transition
const EventStateChanged = "state_changed"

// EventBus manages event distribution
type EventBus struct {
	subscribers map[string][]chan Event
	events      chan Event
	done        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// Event represents a system event
type Event struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[string][]chan Event),
		events:      make(chan Event, 1000),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start distributes published events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			return
		}
	}
}

// Stop ends distribution and closes every subscriber channel
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.done)

		eb.mutex.Lock()
		defer eb.mutex.Unlock()
		for eventType, subs := range eb.subscribers {
			for _, sub := range subs {
				close(sub)
			}
			delete(eb.subscribers, eventType)
		}
	})
}

// Publish publishes an event
func (eb *EventBus) Publish(event Event) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", event.Type),
		)
	}
}

// Subscribe subscribes to events of a specific type
func (eb *EventBus) Subscribe(eventType string) <-chan Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan Event, 100)
	select {
	case <-eb.done:
		close(subscriber)
		return subscriber
	default:
	}

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// Unsubscribe removes and closes a subscriber channel
func (eb *EventBus) Unsubscribe(eventType string, subscriber <-chan Event) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subs := eb.subscribers[eventType]
	for i, sub := range subs {
		if sub == subscriber {
			eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, subscriber := range eb.subscribers[event.Type] {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// StateEventHandler publishes connection state changes on the event bus
type StateEventHandler struct {
	eventBus *EventBus
	logger   *zap.Logger
}

// NewStateEventHandler creates a new state event handler
func NewStateEventHandler(eventBus *EventBus, logger *zap.Logger) *StateEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateEventHandler{
		eventBus: eventBus,
		logger:   logger,
	}
}

// OnStateChange implements connection.Observer
func (h *StateEventHandler) OnStateChange(name string, from, to connection.State, err error) {
	data := map[string]interface{}{
		"connection": name,
		"from":       from.String(),
		"to":         to.String(),
	}
	if err != nil {
		data["error"] = err.Error()
	}

	h.eventBus.Publish(Event{
		Type:      EventStateChanged,
		Source:    name,
		Data:      data,
		Timestamp: time.Now(),
	})

	h.logger.Debug("State change event published",
		zap.String("connection", name),
		zap.String("to", to.String()),
	)
}
