// Package sqlite provides a SQLite-backed store.Repository.
package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/scanixapp/scanix-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is recorded in PRAGMA user_version. Bump it with every
// change to schema.sql.
const schemaVersion = 1

// ErrSchemaTooNew is returned by Open for databases written by a newer server.
var ErrSchemaTooNew = errors.New("sqlite: database schema is newer than this server")

// Store provides SQLite-backed persistence for scans and pages.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Repository = (*Store)(nil)

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and runs schema migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Writes are serialized by the scan service; a few readers are plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	// Connection-scoped pragmas are set in the DSN; these are database-wide.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	version, err := migrate(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Info("SQLite database opened", "path", path, "schema_version", version)
	}

	return &Store{db: db, logger: logger}, nil
}

// migrate applies schema.sql to databases older than schemaVersion and
// returns the resulting version.
func migrate(db *sql.DB) (int, error) {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current > schemaVersion:
		return current, fmt.Errorf("%w: have %d, support %d", ErrSchemaTooNew, current, schemaVersion)
	case current == schemaVersion:
		return current, nil
	}

	// schema.sql is idempotent, so version 0 covers both fresh databases and
	// ones created before versioning.
	if _, err := db.Exec(schemaSQL); err != nil {
		return 0, fmt.Errorf("exec schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return 0, fmt.Errorf("write schema version: %w", err)
	}
	return schemaVersion, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// dsn applies per-connection pragmas to every pooled connection.
func dsn(path string) string {
	v := url.Values{}
	v.Add("_pragma", "foreign_keys(1)")
	v.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + v.Encode()
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullString returns a sql.NullString, NULL for the empty string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
