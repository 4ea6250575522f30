package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"installbot/internal/models"

	"github.com/google/uuid"
)

const (
	EventAppointmentConfirmed = "appointment_confirmed"
	EventAppointmentReminder  = "appointment_reminder"
	EventAppointmentCancelled = "appointment_cancelled"
)

// TypeFor maps a notification kind to its bus event type.
func TypeFor(kind models.EventKind) (string, error) {
	switch kind {
	case models.EventConfirmed:
		return EventAppointmentConfirmed, nil
	case models.EventReminder:
		return EventAppointmentReminder, nil
	case models.EventCancelled:
		return EventAppointmentCancelled, nil
	}
	return "", fmt.Errorf("no event type for %s", kind)
}

// AppointmentEventPayload carries the appointment snapshot to subscribers.
type AppointmentEventPayload struct {
	Kind        models.EventKind    `json:"kind"`
	Appointment *models.Appointment `json:"appointment"`
	ChangedBy   string              `json:"changed_by,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into an appointment event.
func (e *Event) Decode() (*AppointmentEventPayload, error) {
	var p AppointmentEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	if p.Appointment == nil {
		return nil, fmt.Errorf("%s payload has no appointment", e.Type)
	}
	return &p, nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
