package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"installbot/internal/logging"
	"installbot/internal/metrics"
	"installbot/internal/models"

	"github.com/rs/zerolog"
)

// ReminderStore lists and marks next-day reminders.
type ReminderStore interface {
	DueReminders(ctx context.Context, date string) ([]*models.Appointment, error)
	MarkReminderSent(ctx context.Context, id int64) (bool, error)
}

// ReminderNotifier delivers one reminder event synchronously.
type ReminderNotifier interface {
	Dispatch(ctx context.Context, kind models.EventKind, appt *models.Appointment) error
}

// ChannelFailure is implemented by notifier errors that name the failed channel.
type ChannelFailure interface {
	FailedChannel() string
}

// SweepResult summarises one reminder run.
type SweepResult struct {
	Date    string `json:"date"`
	Found   int    `json:"found"`
	Sent    int    `json:"sent"`
	Partial int    `json:"partial"`
	Failed  int    `json:"failed"`
}

// ReminderSweeper sends reminders for tomorrow's confirmed appointments.
type ReminderSweeper struct {
	store    ReminderStore
	notifier ReminderNotifier
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger

	// serialises scheduled and manual runs
	mu sync.Mutex
}

func NewReminderSweeper(store ReminderStore, notifier ReminderNotifier, loc *time.Location, logger *zerolog.Logger) *ReminderSweeper {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderSweeper{
		store:    store,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		logger:   logging.Component(logger, "reminders"),
	}
}

// Sweep dispatches a reminder per due appointment and marks the ones that went out.
// An appointment stays unmarked, and is retried on the next run, only when the
// customer message failed; staff or webhook failures alone do not repeat it.
func (s *ReminderSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tomorrow := s.now().In(s.loc).AddDate(0, 0, 1).Format(models.DateLayout)
	res := SweepResult{Date: tomorrow}

	appts, err := s.store.DueReminders(ctx, tomorrow)
	if err != nil {
		return res, fmt.Errorf("load due reminders: %w", err)
	}
	res.Found = len(appts)
	s.logger.Info().Str("date", tomorrow).Int("found", res.Found).Msg("checking reminders")

	for _, a := range appts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		if err := s.notifier.Dispatch(ctx, models.EventReminder, a); err != nil {
			if !customerReached(err) {
				res.Failed++
				s.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("reminder dispatch failed")
				continue
			}
			res.Partial++
			s.logger.Warn().Err(err).Int64("appointment_id", a.ID).Msg("reminder delivered, secondary channels failed")
		}

		marked, err := s.store.MarkReminderSent(ctx, a.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("mark reminder sent")
		} else if !marked {
			s.logger.Warn().Int64("appointment_id", a.ID).Msg("reminder was already marked")
		}
		res.Sent++
	}

	metrics.AddReminders(res.Sent)
	return res, nil
}

// customerReached reports whether every failure in err belongs to a channel other
// than the customer message. Errors without channel information count as unreached.
func customerReached(err error) bool {
	failures := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		failures = joined.Unwrap()
	}
	for _, f := range failures {
		var cf ChannelFailure
		if !errors.As(f, &cf) || cf.FailedChannel() == models.ChannelCustomerMessage {
			return false
		}
	}
	return true
}

// Run adapts Sweep to the scheduler job signature.
func (s *ReminderSweeper) Run(ctx context.Context) error {
	res, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d reminders failed", res.Failed, res.Found)
	}
	return nil
}
