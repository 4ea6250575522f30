package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"installbot/internal/models"
)

const appointmentColumns = `a.id, a.user_id, a.phone_number, u.name, u.contact_phone, u.email, u.address,
			a.service_type, a.appointment_date, a.appointment_time, a.status, a.notes,
			a.reminder_sent_at, a.created_at, a.updated_at
		FROM appointments a
		JOIN users u ON u.id = a.user_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a        models.Appointment
		reminded sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Identity, &a.Name, &a.Phone, &a.Email, &a.Address,
		&a.ServiceType, &a.Date, &a.TimeSlot, &a.Status, &a.Notes,
		&reminded, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reminded.Valid {
		t := reminded.Time
		a.ReminderSentAt = &t
	}
	return &a, nil
}

func (db *DB) queryAppointments(ctx context.Context, query string, args ...interface{}) ([]*models.Appointment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return out, nil
}

// CreateAppointment inserts a confirmed appointment without checking the slot.
func (db *DB) CreateAppointment(ctx context.Context, userID int64, identity, serviceType, date, slot string) (int64, error) {
	ts := now()
	result, err := db.ExecContext(ctx, `INSERT INTO appointments (
				user_id, phone_number, service_type, appointment_date, appointment_time,
				status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, identity, serviceType, date, slot, models.StatusConfirmed, ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrSlotTaken
		}
		return 0, fmt.Errorf("failed to create appointment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// BookAppointment upserts the user, checks the slot, inserts the appointment and
// records its CREATED history entry in a single transaction.
func (db *DB) BookAppointment(ctx context.Context, req *models.BookingRequest) (*models.Appointment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check availability inside transaction
	var taken int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE appointment_date = ? AND appointment_time = ? AND status != ?`,
		req.Date, req.TimeSlot, models.StatusCancelled,
	).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if taken > 0 {
		return nil, ErrSlotTaken
	}

	// 2. Upsert customer
	user := &models.User{
		Identity: req.Identity,
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
	}
	userID, err := upsertUser(ctx, tx, user)
	if err != nil {
		return nil, err
	}

	// 3. Create appointment
	ts := now()
	result, err := tx.ExecContext(ctx, `INSERT INTO appointments (
				user_id, phone_number, service_type, appointment_date, appointment_time,
				status, notes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, req.Identity, req.ServiceType, req.Date, req.TimeSlot,
		models.StatusConfirmed, req.Notes, ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("failed to insert appointment in tx: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	appt := &models.Appointment{
		ID:          id,
		UserID:      userID,
		Identity:    req.Identity,
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
		ServiceType: req.ServiceType,
		Date:        req.Date,
		TimeSlot:    req.TimeSlot,
		Status:      models.StatusConfirmed,
		Notes:       req.Notes,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	// 4. Audit trail
	actor := req.Actor
	if actor == "" {
		actor = models.ActorChatbot
	}
	if err := appendHistory(ctx, tx, id, models.HistoryCreated, nil, map[string]interface{}{
		"user_id":          userID,
		"service_type":     req.ServiceType,
		"appointment_date": req.Date,
		"appointment_time": req.TimeSlot,
		"status":           models.StatusConfirmed,
	}, actor); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	return appt, nil
}

// UpdateStatus changes the appointment status and appends a STATUS_CHANGED entry.
func (db *DB) UpdateStatus(ctx context.Context, id int64, status, actor string) (*models.Appointment, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT status FROM appointments WHERE id = ?`, id).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read appointment status: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("failed to update appointment status: %w", err)
	}

	if err := appendHistory(ctx, tx, id, models.HistoryStatusChanged,
		map[string]interface{}{"status": old},
		map[string]interface{}{"status": status},
		actor,
	); err != nil {
		return nil, err
	}

	appt, err := scanAppointment(tx.QueryRowContext(ctx, `SELECT `+appointmentColumns+` WHERE a.id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return appt, nil
}

// MarkReminderSent records that the reminder for id went out. It reports false
// when the appointment had already been marked.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ts := now()
	res, err := tx.ExecContext(ctx,
		`UPDATE appointments SET reminder_sent_at = ?, updated_at = ? WHERE id = ? AND reminder_sent_at IS NULL`,
		ts, ts, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := appendHistory(ctx, tx, id, models.HistoryReminderSent, nil,
		map[string]interface{}{"reminder_sent_at": ts.Format(time.RFC3339)}, models.ActorSystem,
	); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit reminder mark: %w", err)
	}
	return true, nil
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	appt, err := scanAppointment(db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` WHERE a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// AppointmentsByIdentity lists the identity's appointments, newest date first.
func (db *DB) AppointmentsByIdentity(ctx context.Context, identity string) ([]*models.Appointment, error) {
	return db.queryAppointments(ctx,
		`SELECT `+appointmentColumns+` WHERE a.phone_number = ?
		ORDER BY a.appointment_date DESC, a.id DESC`, identity)
}

// AppointmentsByDate lists non-cancelled appointments for date ordered by slot.
func (db *DB) AppointmentsByDate(ctx context.Context, date string) ([]*models.Appointment, error) {
	return db.queryAppointments(ctx,
		`SELECT `+appointmentColumns+` WHERE a.appointment_date = ? AND a.status != ?
		ORDER BY a.appointment_time, a.id`, date, models.StatusCancelled)
}

// AppointmentsInRange lists all appointments with from <= date <= to.
func (db *DB) AppointmentsInRange(ctx context.Context, from, to string) ([]*models.Appointment, error) {
	return db.queryAppointments(ctx,
		`SELECT `+appointmentColumns+` WHERE a.appointment_date BETWEEN ? AND ?
		ORDER BY a.appointment_date, a.appointment_time, a.id`, from, to)
}

// DueReminders lists confirmed appointments on date that have not been reminded.
func (db *DB) DueReminders(ctx context.Context, date string) ([]*models.Appointment, error) {
	return db.queryAppointments(ctx,
		`SELECT `+appointmentColumns+` WHERE a.appointment_date = ? AND a.status = ? AND a.reminder_sent_at IS NULL
		ORDER BY a.appointment_time, a.id`, date, models.StatusConfirmed)
}

// BookedSlots returns the slots held by non-cancelled appointments on date.
func (db *DB) BookedSlots(ctx context.Context, date string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT appointment_time FROM appointments WHERE appointment_date = ? AND status != ?`,
		date, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to query booked slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func marshalValues(v map[string]interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history values: %w", err)
	}
	return string(b), nil
}
