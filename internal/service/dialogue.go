package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"installbot/internal/calendar"
	"installbot/internal/database"
	"installbot/internal/logging"
	"installbot/internal/metrics"
	"installbot/internal/models"

	"github.com/rs/zerolog"
)

// ServiceCatalog lists the installation services offered.
type ServiceCatalog interface {
	ServiceTypes() []models.ServiceType
}

type EngineConfig struct {
	RestartKeywords []string
	Location        *time.Location
}

// Engine drives the per-identity booking conversation.
type Engine struct {
	sessions *SessionService
	bookings *BookingService
	calendar *calendar.Calendar
	catalog  ServiceCatalog
	restart  []string
	loc      *time.Location
	now      func() time.Time
	locks    *keyedMutex
	logger   *zerolog.Logger
}

func NewEngine(sessions *SessionService, bookings *BookingService, cal *calendar.Calendar, catalog ServiceCatalog, cfg EngineConfig, logger *zerolog.Logger) *Engine {
	if len(cfg.RestartKeywords) == 0 {
		cfg.RestartKeywords = models.DefaultRestartKeywords
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		sessions: sessions,
		bookings: bookings,
		calendar: cal,
		catalog:  catalog,
		restart:  append([]string(nil), cfg.RestartKeywords...),
		loc:      cfg.Location,
		now:      time.Now,
		locks:    newKeyedMutex(),
		logger:   logging.Component(logger, "dialogue"),
	}
}

// Handle processes one inbound message and returns the reply text. Messages
// for the same identity are handled one at a time.
func (e *Engine) Handle(ctx context.Context, identity, text string) string {
	start := time.Now()
	defer func() { metrics.ObserveHandle(time.Since(start).Seconds()) }()

	unlock := e.locks.Lock(identity)
	defer unlock()

	log := e.logger.With().Str("identity", logging.MaskIdentity(identity)).Logger()

	if !e.sessions.Allow(ctx, identity) {
		metrics.IncMessage("", "rate_limited")
		log.Warn().Msg("inbound rate limit exceeded")
		return PromptRateLimited
	}

	sess, err := e.sessions.Load(ctx, identity)
	if err != nil {
		metrics.IncMessage("", "load_error")
		log.Error().Err(err).Msg("failed to load session")
		return PromptApology
	}

	from := sess.Stage
	reply, outcome := e.step(ctx, sess, strings.TrimSpace(text))

	if err := e.sessions.Save(ctx, sess); err != nil {
		log.Error().Err(err).Str("stage", sess.Stage.String()).Msg("failed to persist session")
	}

	metrics.IncMessage(from.String(), outcome)
	log.Debug().Str("from", from.String()).Str("to", sess.Stage.String()).Str("outcome", outcome).Msg("message handled")
	return reply
}

func (e *Engine) step(ctx context.Context, s *models.Session, text string) (string, string) {
	if isKeyword(text, e.restart) {
		s.Reset()
		return e.welcome(s), "restart"
	}

	switch s.Stage {
	case models.StageWelcome:
		return e.welcome(s), "advanced"
	case models.StageCollectingName:
		return e.collectName(s, text)
	case models.StageCollectingPhone:
		return e.collectPhone(s, text)
	case models.StageCollectingEmail:
		return e.collectEmail(s, text)
	case models.StageCollectingAddress:
		return e.collectAddress(s, text)
	case models.StageCollectingServiceType:
		return e.collectServiceType(s, text)
	case models.StageSelectingDate:
		return e.selectDate(s, text)
	case models.StageSelectingTime:
		return e.selectTime(ctx, s, text)
	case models.StageConfirming:
		return e.confirm(ctx, s, text)
	default:
		return PromptFallback, "fallback"
	}
}

func (e *Engine) welcome(s *models.Session) string {
	s.Stage = models.StageCollectingName
	return PromptWelcome
}

func (e *Engine) collectName(s *models.Session, text string) (string, string) {
	if !ValidName(text) {
		return PromptInvalidName, "invalid"
	}
	s.UserInfo.Name = text
	s.Stage = models.StageCollectingPhone
	return promptPhone(text), "advanced"
}

func (e *Engine) collectPhone(s *models.Session, text string) (string, string) {
	if !ValidPhone(text) {
		return PromptInvalidPhone, "invalid"
	}
	s.UserInfo.Phone = text
	s.Stage = models.StageCollectingEmail
	return PromptEmail, "advanced"
}

func (e *Engine) collectEmail(s *models.Session, text string) (string, string) {
	if !ValidEmail(text) {
		return PromptInvalidEmail, "invalid"
	}
	s.UserInfo.Email = text
	s.Stage = models.StageCollectingAddress
	return PromptAddress, "advanced"
}

func (e *Engine) collectAddress(s *models.Session, text string) (string, string) {
	if !ValidAddress(text) {
		return PromptInvalidAddress, "invalid"
	}
	s.UserInfo.Address = text
	s.Stage = models.StageCollectingServiceType
	return promptServiceMenu(e.activeServices()), "advanced"
}

func (e *Engine) collectServiceType(s *models.Session, text string) (string, string) {
	services := e.activeServices()
	var chosen *models.ServiceType
	for i := range services {
		if services[i].Code == text {
			chosen = &services[i]
			break
		}
	}
	if chosen == nil {
		return promptInvalidService(services), "invalid"
	}

	dates := calendar.FormatDates(e.calendar.Dates(e.now().In(e.loc)))
	s.AppointmentInfo.ServiceType = chosen.Name
	s.AvailableDates = dates
	s.Stage = models.StageSelectingDate
	if len(dates) == 0 {
		return PromptNoDates, "advanced"
	}
	return promptDateMenu(dates), "advanced"
}

func (e *Engine) selectDate(s *models.Session, text string) (string, string) {
	idx, numeric, ok := ParseChoice(text, len(s.AvailableDates))
	if !numeric {
		return PromptInvalidNumber, "invalid"
	}
	if !ok {
		return promptInvalidDate(len(s.AvailableDates)), "invalid"
	}

	s.AppointmentInfo.Date = s.AvailableDates[idx]
	s.AvailableDates = nil
	s.Stage = models.StageSelectingTime
	return promptTimeMenu(e.calendar.Slots()), "advanced"
}

func (e *Engine) selectTime(ctx context.Context, s *models.Session, text string) (string, string) {
	if _, numeric, _ := ParseChoice(text, 0); !numeric {
		return PromptInvalidNumber, "invalid"
	}

	free, err := e.calendar.AvailableSlots(ctx, s.AppointmentInfo.Date)
	if err != nil {
		e.logger.Error().Err(err).Str("date", s.AppointmentInfo.Date).Msg("failed to load available slots")
		return PromptApology, "store_error"
	}
	if len(free) == 0 {
		return PromptNoSlots, "no_slots"
	}

	idx, _, ok := ParseChoice(text, len(free))
	if !ok {
		return promptInvalidTime(len(free)), "invalid"
	}
	s.AppointmentInfo.Time = free[idx]
	s.Stage = models.StageConfirming
	return promptSummary(s), "advanced"
}

func (e *Engine) confirm(ctx context.Context, s *models.Session, text string) (string, string) {
	word := strings.ToLower(text)
	switch {
	case confirmWords[word]:
		return e.commit(ctx, s)
	case abortWords[word]:
		s.Reset()
		return PromptAborted, "aborted"
	default:
		return PromptConfirmChoice, "invalid"
	}
}

func (e *Engine) commit(ctx context.Context, s *models.Session) (string, string) {
	req := &models.BookingRequest{
		Identity:    s.Identity,
		Name:        s.UserInfo.Name,
		Phone:       s.UserInfo.Phone,
		Email:       s.UserInfo.Email,
		Address:     s.UserInfo.Address,
		ServiceType: s.AppointmentInfo.ServiceType,
		Date:        s.AppointmentInfo.Date,
		TimeSlot:    s.AppointmentInfo.Time,
		Actor:       models.ActorChatbot,
	}

	appt, err := e.bookings.Commit(ctx, req)
	if errors.Is(err, database.ErrSlotTaken) {
		taken := s.AppointmentInfo.Time
		s.AppointmentInfo.Time = ""
		s.Stage = models.StageSelectingTime

		free, ferr := e.calendar.AvailableSlots(ctx, s.AppointmentInfo.Date)
		if ferr != nil || len(free) == 0 {
			return PromptNoSlots, "slot_taken"
		}
		return promptSlotTaken(s, taken, free), "slot_taken"
	}
	if err != nil {
		e.logger.Error().Err(err).Str("identity", logging.MaskIdentity(s.Identity)).Msg("failed to save appointment")
		return PromptCommitFailed, "commit_failed"
	}

	s.Stage = models.StageCompleted
	return promptConfirmed(appt), "committed"
}

func (e *Engine) activeServices() []models.ServiceType {
	all := e.catalog.ServiceTypes()
	active := make([]models.ServiceType, 0, len(all))
	for _, s := range all {
		if s.Active {
			active = append(active, s)
		}
	}
	return active
}
