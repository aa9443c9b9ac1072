// Package store provides the embedded-SQLite-backed persistence the
// Ingestion Controller needs for its rolling-window rate limiter, so
// the window survives a process restart rather than resetting to zero.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single embedded SQLite database recording timestamped
// rate-limit call attempts per source.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the SQLite database at path, creating its
// parent directory if needed.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create rate limit db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open rate limit db: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize rate limit db: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			manual INTEGER NOT NULL,
			called_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rate_limit_source_time ON rate_limit_events(source, called_at);
		`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAttempt logs one external call attempt for source at "now",
// tagged manual or scheduled.
func (s *Store) RecordAttempt(source string, manual bool, now time.Time) error {
	m := 0
	if manual {
		m = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO rate_limit_events (source, manual, called_at) VALUES (?, ?, ?)`,
		source, m, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record rate limit attempt: %w", err)
	}
	return nil
}

// CountSince returns how many manual and how many scheduled attempts
// were recorded for source at or after since.
func (s *Store) CountSince(source string, since time.Time) (manual int, scheduled int, err error) {
	row := s.db.QueryRow(
		`SELECT
		COALESCE(SUM(CASE WHEN manual = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN manual = 0 THEN 1 ELSE 0 END), 0)
		FROM rate_limit_events WHERE source = ? AND called_at >= ?`,
		source, since.UTC(),
	)
	if err := row.Scan(&manual, &scheduled); err != nil {
		return 0, 0, fmt.Errorf("count rate limit attempts: %w", err)
	}
	return manual, scheduled, nil
}

// Prune deletes events older than cutoff, called opportunistically so
// the table doesn't grow unbounded across a long-lived process.
func (s *Store) Prune(cutoff time.Time) error {
	_, err := s.db.Exec(`DELETE FROM rate_limit_events WHERE called_at < ?`, cutoff.UTC())
	if err != nil {
		return fmt.Errorf("prune rate limit events: %w", err)
	}
	return nil
}
