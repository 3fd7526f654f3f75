package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
)

// redactDSN returns a copy of the DSN with password replaced by **** for logging.
func redactDSN(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "(invalid DATABASE_URL)"
	}
	if u.User != nil {
		user := u.User.Username()
		u.User = url.UserPassword(user, "****")
	}
	return u.String()
}

// extractDBName returns the database name from URL path ("/carmarket" -> "carmarket").
func extractDBName(u *url.URL) string {
	if u == nil {
		return ""
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if idx := strings.Index(dbName, "?"); idx >= 0 {
		dbName = dbName[:idx]
	}
	return strings.TrimSpace(dbName)
}

// isDatabaseDoesNotExist reports SQLSTATE 3D000 (invalid_catalog_name).
func isDatabaseDoesNotExist(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

// Open establishes a connection to PostgreSQL and configures the connection pool.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (*sql.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	dbName := extractDBName(u)
	host := u.Hostname()
	port := u.Port()

	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}

	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	log.InfoContext(ctx, "db connect target", "host", host, "port", port, "db", dbName, "user", user, "dsn", redactDSN(databaseURL))

	// Precheck against the maintenance DB so a wrong instance is obvious in the logs.
	if dbName != "" {
		maintenanceURL := *u
		maintenanceURL.Path = "/postgres"
		maintenanceURL.RawPath = ""

		maintDB, err := sql.Open("postgres", maintenanceURL.String())
		if err == nil {
			defer maintDB.Close()

			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			var found string
			rowErr := maintDB.QueryRowContext(checkCtx,
				"SELECT datname FROM pg_database WHERE datname = $1",
				dbName,
			).Scan(&found)

			switch {
			case rowErr == nil:
				log.InfoContext(ctx, "db precheck: database exists", "db", found)
			case errors.Is(rowErr, sql.ErrNoRows):
				log.WarnContext(ctx, "db precheck: database not found on this instance", "db", dbName)
			default:
				log.WarnContext(ctx, "db precheck: could not query pg_database", "error", rowErr)
			}
		} else {
			log.WarnContext(ctx, "db precheck: could not open maintenance connection", "error", err)
		}
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Ping to verify connection
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()

		if isDatabaseDoesNotExist(err) {
			return nil, fmt.Errorf(
				"database %q not found on host=%s port=%s; check that DATABASE_URL points at the right instance: %w",
				dbName, host, port, err,
			)
		}

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
