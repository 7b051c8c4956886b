package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store records fetch attempts in a SQLite database so past runs can be
// inspected after the console output is gone.
type Store struct {
	db *sql.DB
}

// FetchRecord is one row of run history: a single fetch attempt and how
// it ended.
type FetchRecord struct {
	ID         int64
	URL        string
	Filename   string
	Status     string
	Bytes      int64
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// StatusCount aggregates attempts by status.
type StatusCount struct {
	Status string
	Count  int
	Bytes  int64
}

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS fetches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			filename TEXT NOT NULL,
			status TEXT NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_filename ON fetches(filename)`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_started_at ON fetches(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// RecordFetch inserts one fetch attempt
func (s *Store) RecordFetch(rec *FetchRecord) error {
	query := `
		INSERT INTO fetches (url, filename, status, bytes, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	result, err := s.db.Exec(query,
		rec.URL, rec.Filename, rec.Status, rec.Bytes, errText,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// RecentFetches returns the most recent attempts, newest first
func (s *Store) RecentFetches(limit int) ([]*FetchRecord, error) {
	query := `
		SELECT id, url, filename, status, bytes, error, started_at, finished_at
		FROM fetches
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*FetchRecord
	for rows.Next() {
		rec := &FetchRecord{}
		var errText sql.NullString

		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Filename, &rec.Status,
			&rec.Bytes, &errText, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		if errText.Valid {
			rec.Error = errText.String
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountByStatus aggregates attempts since the given time by status
func (s *Store) CountByStatus(since time.Time) ([]StatusCount, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(bytes), 0)
		FROM fetches
		WHERE started_at >= ?
		GROUP BY status
		ORDER BY status
	`

	rows, err := s.db.Query(query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.Bytes); err != nil {
			return nil, err
		}
		counts = append(counts, sc)
	}

	return counts, rows.Err()
}
