package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"installbot/internal/config"
	"installbot/internal/logging"
	"installbot/internal/models"
	"installbot/internal/worker"

	"github.com/rs/zerolog"
)

// Conversation turns one inbound message into the reply text.
type Conversation interface {
	Handle(ctx context.Context, identity, text string) string
}

type Appointments interface {
	ByDate(ctx context.Context, date string) ([]*models.Appointment, error)
	ByIdentity(ctx context.Context, identity string) ([]*models.Appointment, error)
	InRange(ctx context.Context, from, to string) ([]*models.Appointment, error)
	Cancel(ctx context.Context, id int64, actor string) (*models.Appointment, error)
	CreateTestAppointment(ctx context.Context, date, slot string) (*models.Appointment, error)
	Stats(ctx context.Context, today string) (*models.Stats, error)
}

// Notifications covers the operator triggered sends.
type Notifications interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendScheduleEmail(ctx context.Context, date, to string) error
	SendTestNotifications(ctx context.Context, phone, email string) error
	SendStaffTest(ctx context.Context) error
	SendDailySummary(ctx context.Context) error
}

type Reminders interface {
	Sweep(ctx context.Context) (worker.SweepResult, error)
}

// StoreHealth is what the health check asks of the durable store.
type StoreHealth interface {
	Ping(ctx context.Context) error
	CountSessions(ctx context.Context) (int64, error)
}

type Deps struct {
	Conversation  Conversation
	Appointments  Appointments
	Notifications Notifications
	Reminders     Reminders
	Store         StoreHealth

	ServiceName string
	Version     string
	StaffEmail  string
	Location    *time.Location
}

// HTTPServer exposes the messaging webhook together with the query and
// operator endpoints.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	now    func() time.Time
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "Installation Booking Assistant"
	}

	srv := &HTTPServer{
		cfg:    cfg,
		deps:   deps,
		auth:   NewHTTPAuth(cfg),
		now:    time.Now,
		logger: logging.Component(logger, "http"),
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	handler := chain(mux,
		requestIDMiddleware,
		loggingMiddleware(srv.logger),
		recoverMiddleware(srv.logger),
		srv.auth.Wrap,
	)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, h))
	}

	handle("POST /webhook", s.handleWebhook)
	handle("POST /{$}", s.handleWebhook)
	handle("GET /{$}", s.handleIndex)
	handle("GET /health", s.handleHealth)
	handle("POST /send_message", s.handleSendMessage)
	handle("GET /appointments/{date}", s.handleAppointmentsByDate)
	handle("GET /user/{identity}/appointments", s.handleUserAppointments)

	handle("POST /admin/schedule/{date}", s.handleScheduleEmail)
	handle("POST /admin/test_notifications", s.handleTestNotifications)
	handle("POST /admin/send_reminders", s.handleSendReminders)
	handle("POST /admin/test_staff", s.handleStaffTest)
	handle("POST /admin/daily_summary", s.handleDailySummary)
	handle("POST /admin/cancel_appointment/{id}", s.handleCancelAppointment)
	handle("POST /admin/test_appointment", s.handleTestAppointment)
	handle("GET /admin/export", s.handleExport)
}

// Handler returns the fully wrapped handler, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) today() time.Time {
	return s.now().In(s.deps.Location)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeResult(w http.ResponseWriter, statusCode int, success bool, message string) {
	writeJSON(w, statusCode, map[string]any{"success": success, "message": message})
}
