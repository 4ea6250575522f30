package database

import (
	"context"
	"fmt"

	"installbot/internal/models"
)

// SeedServiceTypes inserts the catalogue once, when the table is empty,
// and refreshes the in-memory cache from what is stored.
func (db *DB) SeedServiceTypes(ctx context.Context, services []models.ServiceType) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_types`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count service types: %w", err)
	}

	if count == 0 {
		for i, s := range services {
			if _, err := db.ExecContext(ctx,
				`INSERT INTO service_types (code, name, description, active, sort_order) VALUES (?, ?, ?, ?, ?)`,
				s.Code, s.Name, s.Description, s.Active, i,
			); err != nil {
				return fmt.Errorf("failed to seed service type %s: %w", s.Code, err)
			}
		}
		db.logger.Info().Int("count", len(services)).Msg("Service types seeded")
	}

	return db.LoadServiceTypes(ctx)
}

func (db *DB) LoadServiceTypes(ctx context.Context) error {
	rows, err := db.QueryContext(ctx,
		`SELECT code, name, description, active FROM service_types WHERE active = 1 ORDER BY sort_order, code`)
	if err != nil {
		return fmt.Errorf("failed to load service types: %w", err)
	}
	defer rows.Close()

	var list []models.ServiceType
	for rows.Next() {
		var s models.ServiceType
		if err := rows.Scan(&s.Code, &s.Name, &s.Description, &s.Active); err != nil {
			return fmt.Errorf("failed to scan service type: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	db.servicesCache = list
	db.mu.Unlock()
	return nil
}

// ServiceTypes returns the cached active catalogue.
func (db *DB) ServiceTypes() []models.ServiceType {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.ServiceType, len(db.servicesCache))
	copy(out, db.servicesCache)
	return out
}

// SyncServiceTypes upserts every service by code, keeping the given order, and
// reloads the cache. Services missing from the list are left untouched.
func (db *DB) SyncServiceTypes(ctx context.Context, services []models.ServiceType) (created, updated int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, s := range services {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_types WHERE code = ?`, s.Code).Scan(&exists); err != nil {
			return 0, 0, fmt.Errorf("failed to look up service type %s: %w", s.Code, err)
		}
		if exists > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE service_types SET name = ?, description = ?, active = ?, sort_order = ? WHERE code = ?`,
				s.Name, s.Description, s.Active, i, s.Code,
			); err != nil {
				return 0, 0, fmt.Errorf("failed to update service type %s: %w", s.Code, err)
			}
			updated++
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_types (code, name, description, active, sort_order) VALUES (?, ?, ?, ?, ?)`,
			s.Code, s.Name, s.Description, s.Active, i,
		); err != nil {
			return 0, 0, fmt.Errorf("failed to insert service type %s: %w", s.Code, err)
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit service types: %w", err)
	}
	return created, updated, db.LoadServiceTypes(ctx)
}
