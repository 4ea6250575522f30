package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"installbot/internal/logging"
	"installbot/internal/models"
	"installbot/internal/service"
)

const apologyReply = "Sorry, I'm experiencing technical difficulties. Please try again later."

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	reply := apologyReply
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Str("request_id", RequestID(r.Context())).Msg("webhook panic")
			reply = apologyReply
		}
		writeMessagingReply(w, reply)
	}()

	if err := r.ParseForm(); err != nil {
		s.logger.Warn().Err(err).Msg("webhook form parse failed")
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if from == "" {
		s.logger.Warn().Msg("webhook without sender")
		return
	}

	s.logger.Debug().Str("from", logging.MaskIdentity(from)).Int("len", len(body)).Msg("inbound message")
	reply = s.deps.Conversation.Handle(r.Context(), from, body)
}

func (s *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"service": s.deps.ServiceName,
		"status":  "running",
		"endpoints": map[string]string{
			"webhook":           "/webhook (POST) - messaging webhook",
			"health":            "/health (GET) - health check",
			"appointments":      "/appointments/{date} (GET) - daily appointments",
			"user_appointments": "/user/{identity}/appointments (GET) - customer appointments",
		},
	}
	if s.deps.Version != "" {
		resp["version"] = s.deps.Version
	}
	if stats, err := s.deps.Appointments.Stats(r.Context(), s.today().Format(models.DateLayout)); err == nil {
		resp["database_stats"] = stats
	} else {
		s.logger.Warn().Err(err).Msg("stats unavailable")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fail := func(err error) {
		s.logger.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
	}

	if err := s.deps.Store.Ping(ctx); err != nil {
		fail(err)
		return
	}
	stats, err := s.deps.Appointments.Stats(ctx, s.today().Format(models.DateLayout))
	if err != nil {
		fail(err)
		return
	}
	active, err := s.deps.Store.CountSessions(ctx)
	if err != nil {
		fail(err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"active_sessions": active,
		"database_stats":  stats,
	})
}

type sendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

func (s *HTTPServer) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
		return
	}
	if err := payloadValidator().Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	sid, err := s.deps.Notifications.SendText(r.Context(), req.To, req.Message)
	if err != nil {
		s.logger.Warn().Err(err).Str("to", logging.MaskIdentity(req.To)).Msg("send_message failed")
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message_sid": sid})
}

func (s *HTTPServer) handleAppointmentsByDate(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.PathValue("date"))
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	appts, err := s.deps.Appointments.ByDate(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("appointments by date failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "appointments": nonNil(appts)})
}

func (s *HTTPServer) handleUserAppointments(w http.ResponseWriter, r *http.Request) {
	identity := service.NormalizeIdentity(r.PathValue("identity"))
	if identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	appts, err := s.deps.Appointments.ByIdentity(r.Context(), identity)
	if err != nil {
		s.logger.Error().Err(err).Str("identity", logging.MaskIdentity(identity)).Msg("appointments by identity failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phone_number": identity, "appointments": nonNil(appts)})
}

func nonNil(appts []*models.Appointment) []*models.Appointment {
	if appts == nil {
		return []*models.Appointment{}
	}
	return appts
}
