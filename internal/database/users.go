package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"installbot/internal/models"
)

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// UpsertUser creates or refreshes the user bound to identity. Last write wins.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) (int64, error) {
	return upsertUser(ctx, db.DB, user)
}

func upsertUser(ctx context.Context, q execQuerier, user *models.User) (int64, error) {
	if user.Identity == "" {
		return 0, errors.New("user identity is required")
	}
	ts := now()
	query := `INSERT INTO users (phone_number, name, contact_phone, email, address, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(phone_number) DO UPDATE SET
				name = excluded.name,
				contact_phone = excluded.contact_phone,
				email = excluded.email,
				address = excluded.address,
				updated_at = excluded.updated_at`
	if _, err := q.ExecContext(ctx, query,
		user.Identity, user.Name, user.Phone, user.Email, user.Address, ts, ts,
	); err != nil {
		return 0, fmt.Errorf("failed to upsert user: %w", err)
	}

	var id int64
	if err := q.QueryRowContext(ctx, `SELECT id FROM users WHERE phone_number = ?`, user.Identity).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	user.UpdatedAt = ts
	return id, nil
}

func (db *DB) GetUserByIdentity(ctx context.Context, identity string) (*models.User, error) {
	query := `SELECT id, phone_number, name, contact_phone, email, address, created_at, updated_at
			FROM users WHERE phone_number = ?`
	var u models.User
	err := db.QueryRowContext(ctx, query, identity).Scan(
		&u.ID, &u.Identity, &u.Name, &u.Phone, &u.Email, &u.Address, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
