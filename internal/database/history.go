package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"installbot/internal/models"
)

// AppendHistory writes a standalone audit entry for an appointment.
func (db *DB) AppendHistory(ctx context.Context, appointmentID int64, action string, oldValues, newValues map[string]interface{}, actor string) error {
	return appendHistory(ctx, db.DB, appointmentID, action, oldValues, newValues, actor)
}

func appendHistory(ctx context.Context, q execQuerier, appointmentID int64, action string, oldValues, newValues map[string]interface{}, actor string) error {
	oldJSON, err := marshalValues(oldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(newValues)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO appointment_history (
				appointment_id, action, old_values, new_values, changed_by, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
		appointmentID, action, oldJSON, newJSON, actor, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// History returns the audit trail of one appointment in insertion order.
func (db *DB) History(ctx context.Context, appointmentID int64) ([]*models.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, appointment_id, action, old_values, new_values, changed_by, created_at
			FROM appointment_history WHERE appointment_id = ? ORDER BY id`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var (
			e                models.HistoryEntry
			oldVals, newVals sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.Action, &oldVals, &newVals, &e.ChangedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if oldVals.Valid {
			e.OldValues = json.RawMessage(oldVals.String)
		}
		if newVals.Valid {
			e.NewValues = json.RawMessage(newVals.String)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
