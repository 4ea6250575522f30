package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"installbot/internal/database"
	"installbot/internal/models"
	"installbot/internal/service"

	"github.com/go-playground/validator/v10"
)

const (
	testPhoneDefault = "+1234567890"
	testEmailDefault = "test@example.com"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func (s *HTTPServer) handleScheduleEmail(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.PathValue("date"))
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	to := strings.TrimSpace(r.URL.Query().Get("email"))
	if to == "" {
		to = s.deps.StaffEmail
	}
	if to == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := payloadValidator().Var(to, "email"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}

	if err := s.deps.Notifications.SendScheduleEmail(r.Context(), date, to); err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("schedule email failed")
		writeResult(w, http.StatusInternalServerError, false, "Failed to send schedule: "+err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, fmt.Sprintf("Daily schedule sent to %s", to))
}

type testNotificationsRequest struct {
	Phone string `json:"phone" validate:"omitempty,min=10"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (s *HTTPServer) handleTestNotifications(w http.ResponseWriter, r *http.Request) {
	var req testNotificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := payloadValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Phone == "" {
		req.Phone = testPhoneDefault
	}
	if req.Email == "" {
		req.Email = testEmailDefault
	}

	if err := s.deps.Notifications.SendTestNotifications(r.Context(), service.NormalizeIdentity(req.Phone), req.Email); err != nil {
		s.logger.Warn().Err(err).Msg("test notifications had failures")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeResult(w, http.StatusOK, true, "Test notifications sent")
}

func (s *HTTPServer) handleSendReminders(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Reminders.Sweep(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual reminder sweep failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Reminder check completed",
		"result":  res,
	})
}

func (s *HTTPServer) handleStaffTest(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.SendStaffTest(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeResult(w, http.StatusOK, true, "Test staff notification sent")
}

func (s *HTTPServer) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.SendDailySummary(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("daily summary failed")
		writeResult(w, http.StatusInternalServerError, false, "Failed to send daily summary: "+err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "Daily summary sent to staff")
}

func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	appt, err := s.deps.Appointments.Cancel(r.Context(), id, models.ActorAdmin)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeResult(w, http.StatusNotFound, false, fmt.Sprintf("Appointment %d not found", id))
		return
	case errors.Is(err, service.ErrAlreadyCancelled):
		writeResult(w, http.StatusConflict, false, fmt.Sprintf("Appointment %d is already cancelled", id))
		return
	case err != nil:
		s.logger.Error().Err(err).Int64("appointment_id", id).Msg("cancel failed")
		writeResult(w, http.StatusInternalServerError, false, "Failed to cancel appointment")
		return
	}

	s.logger.Info().Int64("appointment_id", appt.ID).Msg("appointment cancelled by admin")
	writeResult(w, http.StatusOK, true, fmt.Sprintf("Appointment %d cancelled and staff notified", id))
}

type testAppointmentRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time string `json:"time"`
}

func (s *HTTPServer) handleTestAppointment(w http.ResponseWriter, r *http.Request) {
	var req testAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := payloadValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Date == "" {
		req.Date = s.today().AddDate(0, 0, 1).Format(models.DateLayout)
	}

	appt, err := s.deps.Appointments.CreateTestAppointment(r.Context(), req.Date, strings.TrimSpace(req.Time))
	switch {
	case errors.Is(err, database.ErrSlotTaken):
		writeResult(w, http.StatusConflict, false, "Slot already booked")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("test appointment failed")
		writeResult(w, http.StatusInternalServerError, false, "Failed to save test appointment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"appointment_id": appt.ID,
		"message":        "Test appointment saved successfully",
	})
}
