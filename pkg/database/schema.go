package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the reading store tables and indexes
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.WithComponent("database").Info("Creating database schema...")

	for _, stmt := range []string{createEntriesTable, createEntriesIndexes} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	db.logger.WithComponent("database").Info("Database schema created successfully")
	return nil
}

// SQL DDL statements
const (
	createEntriesTable = `
		CREATE TABLE IF NOT EXISTS glucose_entries (
			id BIGSERIAL PRIMARY KEY,
			value DOUBLE PRECISION NOT NULL CHECK (value > 0),
			taken_at TIMESTAMPTZ NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			puncture_spot VARCHAR(3),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`

	createEntriesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_glucose_entries_taken_at ON glucose_entries(taken_at);
		CREATE INDEX IF NOT EXISTS idx_glucose_entries_value ON glucose_entries(value);
		CREATE INDEX IF NOT EXISTS idx_glucose_entries_created_at ON glucose_entries(created_at);`
)
