package domain

import (
	"context"
	"time"

	"installbot/internal/models"
)

// AppointmentStore is the durable appointment calendar.
type AppointmentStore interface {
	BookAppointment(ctx context.Context, req *models.BookingRequest) (*models.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status, actor string) (*models.Appointment, error)
	MarkReminderSent(ctx context.Context, id int64) (bool, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	AppointmentsByIdentity(ctx context.Context, identity string) ([]*models.Appointment, error)
	AppointmentsByDate(ctx context.Context, date string) ([]*models.Appointment, error)
	AppointmentsInRange(ctx context.Context, from, to string) ([]*models.Appointment, error)
	DueReminders(ctx context.Context, date string) ([]*models.Appointment, error)
	BookedSlots(ctx context.Context, date string) ([]string, error)
	Stats(ctx context.Context, today string) (*models.Stats, error)
	ServiceTypes() []models.ServiceType
}

// SessionStore is the durable copy of dialogue sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, identity string) (*models.Session, error)
	DeleteSession(ctx context.Context, identity string) error
	PurgeSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRepository is the fast cache tier in front of SessionStore.
type SessionRepository interface {
	GetSession(ctx context.Context, identity string) (*models.Session, error)
	SetSession(ctx context.Context, s *models.Session) error
	ClearSession(ctx context.Context, identity string) error
	CheckRateLimit(ctx context.Context, identity string, limit int, window time.Duration) (bool, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers notification events to every configured channel.
type Notifier interface {
	Dispatch(ctx context.Context, kind models.EventKind, appt *models.Appointment) error
	DispatchAsync(kind models.EventKind, appt *models.Appointment)
}
