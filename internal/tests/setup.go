// Package tests holds end-to-end checks that run against a real Postgres.
// They skip unless DATABASE_URL points at a disposable database.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/carmarket/server/internal/db"
)

// DatabaseURL returns the integration database, or "" when none is configured.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// OpenMigrated connects to url and applies the embedded migrations.
func OpenMigrated(ctx context.Context, url string) (*sql.DB, error) {
	database, err := db.Open(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// TruncateTables empties user and order tables for a clean test state.
func TruncateTables(ctx context.Context, database *sql.DB) error {
	if _, err := database.ExecContext(ctx, "TRUNCATE TABLE orders, users RESTART IDENTITY CASCADE"); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// InsertOrder stores an order row owned by userID.
func InsertOrder(ctx context.Context, database *sql.DB, id, userID, carID string) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, car_id, purpose, status) VALUES ($1, $2, $3, 'buy', 'pending')`,
		id, userID, carID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}
