package database

import (
	"context"
	"fmt"

	"installbot/internal/models"
)

// Stats aggregates dashboard counters; today is a DateLayout date.
func (db *DB) Stats(ctx context.Context, today string) (*models.Stats, error) {
	var st models.Stats
	queries := []struct {
		dst   *int64
		query string
		args  []interface{}
	}{
		{&st.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&st.TotalAppointments, `SELECT COUNT(*) FROM appointments`, nil},
		{&st.ConfirmedAppointments, `SELECT COUNT(*) FROM appointments WHERE status = ?`, []interface{}{models.StatusConfirmed}},
		{&st.AppointmentsToday, `SELECT COUNT(*) FROM appointments WHERE appointment_date = ?`, []interface{}{today}},
		{&st.ActiveSessions, `SELECT COUNT(*) FROM chat_sessions`, nil},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
	}
	return &st, nil
}
