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

// SaveSession stores the full session, replacing any previous copy.
func (db *DB) SaveSession(ctx context.Context, s *models.Session) error {
	if s == nil || s.Identity == "" {
		return errors.New("session identity is required")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = now()
	}
	_, err = db.ExecContext(ctx, `INSERT INTO chat_sessions (phone_number, stage, session_data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(phone_number) DO UPDATE SET
				stage = excluded.stage,
				session_data = excluded.session_data,
				updated_at = excluded.updated_at`,
		s.Identity, s.Stage.String(), string(data), ts.UTC(), ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns nil, nil when no session is stored for identity.
func (db *DB) GetSession(ctx context.Context, identity string) (*models.Session, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT session_data FROM chat_sessions WHERE phone_number = ?`, identity).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, identity string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE phone_number = ?`, identity); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeSessionsOlderThan removes sessions not updated since cutoff.
func (db *DB) PurgeSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

func (db *DB) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
