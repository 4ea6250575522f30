package service

import (
	"context"
	"errors"
	"fmt"

	"installbot/internal/calendar"
	"installbot/internal/database"
	"installbot/internal/domain"
	"installbot/internal/events"
	"installbot/internal/logging"
	"installbot/internal/metrics"
	"installbot/internal/models"

	"github.com/rs/zerolog"
)

// ErrAlreadyCancelled is returned when cancelling a cancelled appointment.
var ErrAlreadyCancelled = errors.New("appointment already cancelled")

type BookingService struct {
	repo     domain.AppointmentStore
	eventBus domain.EventPublisher
	slots    []string
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.AppointmentStore, eventBus domain.EventPublisher, slots []string, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		slots:    append([]string(nil), slots...),
		logger:   logging.Component(logger, "bookings"),
	}
}

// Commit books the appointment and announces it. A slot already held by
// another appointment surfaces as database.ErrSlotTaken.
func (s *BookingService) Commit(ctx context.Context, req *models.BookingRequest) (*models.Appointment, error) {
	appt, err := s.repo.BookAppointment(ctx, req)
	switch {
	case errors.Is(err, database.ErrSlotTaken):
		metrics.IncBooking("slot_taken")
		return nil, err
	case err != nil:
		metrics.IncBooking("error")
		return nil, err
	}

	metrics.IncBooking("created")
	s.logger.Info().Int64("appointment_id", appt.ID).Str("date", appt.Date).Str("time", appt.TimeSlot).
		Str("identity", logging.MaskIdentity(appt.Identity)).Msg("appointment booked")
	s.publishEvent(models.EventConfirmed, appt, req.Actor)
	return appt, nil
}

// Cancel marks the appointment cancelled and re-notifies.
func (s *BookingService) Cancel(ctx context.Context, id int64, actor string) (*models.Appointment, error) {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusCancelled {
		return current, ErrAlreadyCancelled
	}

	appt, err := s.repo.UpdateStatus(ctx, id, models.StatusCancelled, actor)
	if err != nil {
		return nil, err
	}
	metrics.IncBooking("cancelled")
	s.publishEvent(models.EventCancelled, appt, actor)
	return appt, nil
}

// CreateTestAppointment stores a synthetic booking to check the write path.
// It goes through the same slot guard as Commit but publishes nothing.
func (s *BookingService) CreateTestAppointment(ctx context.Context, date, slot string) (*models.Appointment, error) {
	if slot == "" {
		if len(s.slots) == 0 {
			return nil, errors.New("no time slots configured")
		}
		slot = s.slots[0]
	}
	appt, err := s.repo.BookAppointment(ctx, &models.BookingRequest{
		Identity:    "+1234567890",
		Name:        "Test User",
		Phone:       "+1234567890",
		Email:       "test@example.com",
		Address:     "123 Test St, Test City, TS 12345",
		ServiceType: "Solar Panel Installation",
		Date:        date,
		TimeSlot:    slot,
		Actor:       models.ActorAdmin,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("appointment_id", appt.ID).Str("date", date).Str("time", slot).Msg("test appointment saved")
	return appt, nil
}

func (s *BookingService) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// ByDate lists the day's live appointments in slot order.
func (s *BookingService) ByDate(ctx context.Context, date string) ([]*models.Appointment, error) {
	appts, err := s.repo.AppointmentsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	calendar.SortBySlot(appts, s.slots)
	return appts, nil
}

func (s *BookingService) ByIdentity(ctx context.Context, identity string) ([]*models.Appointment, error) {
	return s.repo.AppointmentsByIdentity(ctx, identity)
}

func (s *BookingService) InRange(ctx context.Context, from, to string) ([]*models.Appointment, error) {
	if from > to {
		return nil, fmt.Errorf("range start %s is after end %s", from, to)
	}
	appts, err := s.repo.AppointmentsInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	calendar.SortBySlot(appts, s.slots)
	return appts, nil
}

func (s *BookingService) Stats(ctx context.Context, today string) (*models.Stats, error) {
	return s.repo.Stats(ctx, today)
}

func (s *BookingService) publishEvent(kind models.EventKind, appt *models.Appointment, changedBy string) {
	if s.eventBus == nil {
		return
	}

	eventType, err := events.TypeFor(kind)
	if err != nil {
		s.logger.Error().Err(err).Msg("publish event error")
		return
	}
	payload := events.AppointmentEventPayload{
		Kind:        kind,
		Appointment: appt,
		ChangedBy:   changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("appointment_id", appt.ID).Msg("publish event error")
	}
}
