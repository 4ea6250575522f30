package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"phone_number"`
	Name      string    `json:"name"`
	Phone     string    `json:"contact_phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Appointment struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Identity       string     `json:"phone_number"`
	Name           string     `json:"name"`
	Phone          string     `json:"contact_phone"`
	Email          string     `json:"email"`
	Address        string     `json:"address"`
	ServiceType    string     `json:"service_type"`
	Date           string     `json:"appointment_date"`
	TimeSlot       string     `json:"appointment_time"`
	Status         string     `json:"status"` // confirmed, cancelled, completed
	Notes          string     `json:"notes,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DisplayDate renders the stored date in the customer facing format.
func (a *Appointment) DisplayDate() string {
	d, err := time.Parse(DateLayout, a.Date)
	if err != nil {
		return a.Date
	}
	return d.Format(DisplayDateLayout)
}

type HistoryEntry struct {
	ID            int64           `json:"id"`
	AppointmentID int64           `json:"appointment_id"`
	Action        string          `json:"action"`
	OldValues     json.RawMessage `json:"old_values,omitempty"`
	NewValues     json.RawMessage `json:"new_values,omitempty"`
	ChangedBy     string          `json:"changed_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ServiceType struct {
	Code        string `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Active      bool   `yaml:"active" json:"active"`
}

// DefaultServiceTypes seeds the catalogue when none is configured.
var DefaultServiceTypes = []ServiceType{
	{Code: "1", Name: "Solar Panel Installation", Description: "Complete solar panel system installation", Active: true},
	{Code: "2", Name: "Air Conditioning Installation", Description: "AC unit installation and setup", Active: true},
	{Code: "3", Name: "Security System Installation", Description: "Home security system setup", Active: true},
	{Code: "4", Name: "Home Theater Setup", Description: "Entertainment system installation", Active: true},
	{Code: "5", Name: "Other (specify in notes)", Description: "Custom installation service", Active: true},
}

// BookingRequest carries everything needed to commit one appointment.
type BookingRequest struct {
	Identity    string
	Name        string
	Phone       string
	Email       string
	Address     string
	ServiceType string
	Date        string
	TimeSlot    string
	Notes       string
	Actor       string
}

type Stats struct {
	TotalUsers            int64 `json:"total_users"`
	TotalAppointments     int64 `json:"total_appointments"`
	ConfirmedAppointments int64 `json:"confirmed_appointments"`
	AppointmentsToday     int64 `json:"appointments_today"`
	ActiveSessions        int64 `json:"active_sessions"`
}
