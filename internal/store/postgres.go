package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // postgres driver

	"github.com/prismfeed/prism/internal/config"
)

// NewPostgres opens a Postgres-backed store from a DSN and verifies
// connectivity before returning.
func NewPostgres(cfg config.DatabaseConfig) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an existing handle; used by tests with sqlmock.
func NewPostgresFromDB(db *sql.DB) *Store {
	return &Store{
		Feeds:       &pgFeedRepo{db: db},
		Items:       &pgItemRepo{db: db},
		Templates:   &pgTemplateRepo{db: db},
		Runs:        &pgRunRepo{db: db},
		Analyses:    &pgAnalysisRepo{db: db},
		FetchLogs:   &pgFetchLogRepo{db: db},
		Health:      &pgHealthRepo{db: db},
		AutoPending: &pgAutoPendingRepo{db: db},
		Limits:      &pgLimitsRepo{db: db},
		closer:      db.Close,
	}
}

// isUniqueViolation detects Postgres unique constraint errors without
// depending on driver-specific error types at call sites.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
