// Package tests holds the Postgres-backed integration and end-to-end suites.
// They skip unless DATABASE_URL points at a disposable database.
package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/forensicnotes/server/internal/db"
)

// RunMigrations applies the embedded migrations to the test database.
func RunMigrations(database *sql.DB) error {
	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateTables wipes every application table for a clean test state.
func TruncateTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE reports, sessions, users CASCADE")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
