package models

import "time"

type UserInfo struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type AppointmentInfo struct {
	ServiceType string `json:"service_type,omitempty"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
}

// Session is the per-identity dialogue state.
type Session struct {
	Identity        string          `json:"identity"`
	Stage           Stage           `json:"stage"`
	UserInfo        UserInfo        `json:"user_info"`
	AppointmentInfo AppointmentInfo `json:"appointment_info"`
	// AvailableDates is the date menu shown at SELECTING_DATE, in DateLayout.
	AvailableDates []string  `json:"available_dates,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewSession(identity string) *Session {
	return &Session{Identity: identity, Stage: StageWelcome}
}

// Reset clears all answers and returns the session to WELCOME.
func (s *Session) Reset() {
	s.Stage = StageWelcome
	s.UserInfo = UserInfo{}
	s.AppointmentInfo = AppointmentInfo{}
	s.AvailableDates = nil
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.AvailableDates != nil {
		c.AvailableDates = append([]string(nil), s.AvailableDates...)
	}
	return &c
}
