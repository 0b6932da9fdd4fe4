// Package db provides the relational collaborator: a SQLite-backed
// connection with a model registry and schema synchronization driven by
// a configured policy.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/scaffold/logging"
)

// DB wraps a SQLite database connection plus the models registered
// against it.
type DB struct {
	sql *sql.DB
	log *logging.Logger

	mu     sync.RWMutex
	models map[string]*Model
}

// Open opens (or creates) a SQLite database at the given path.
// Use ":memory:" for an in-memory database (useful for tests).
//
// Directory creation is best-effort: a failure is logged as a warning
// and the open proceeds, since the directory may already exist.
func Open(path string, log *logging.Logger) (*DB, error) {
	l := log.Sub("db")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			l.Warn().Err(err).Str("path", path).Msg("could not ensure database directory")
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	db := &DB{sql: sqlDB, log: l, models: make(map[string]*Model)}
	db.log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Authenticate verifies connectivity. A failure here is fatal to startup.
func (db *DB) Authenticate(ctx context.Context) error {
	if err := db.sql.PingContext(ctx); err != nil {
		return fmt.Errorf("database authentication: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.log.Info().Msg("closing database")
	return db.sql.Close()
}

// SQL returns the underlying *sql.DB for direct queries.
func (db *DB) SQL() *sql.DB {
	return db.sql
}
