// Package history persists executed mode switches and suppression counters
// to a local SQLite database.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the switch history store.
//
// Executed and failed switches get one row each; suppressions would flood
// the table at one row per cursor pause, so they are aggregated into
// counters instead.
const schema = `
CREATE TABLE IF NOT EXISTS switches (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns  INTEGER NOT NULL,
    surface_id    TEXT NOT NULL,
    language      TEXT NOT NULL,
    region        TEXT NOT NULL,
    target        TEXT NOT NULL,
    decision      TEXT NOT NULL,
    confidence    REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_switches_timestamp ON switches(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_switches_surface ON switches(surface_id, timestamp_ns);

CREATE TABLE IF NOT EXISTS suppressions (
    decision    TEXT PRIMARY KEY,
    count       INTEGER NOT NULL
);
`

// Entry is one recorded switch attempt.
type Entry struct {
	ID          int64   `json:"id"`
	TimestampNs int64   `json:"timestamp_ns"`
	SurfaceID   string  `json:"surface_id"`
	Language    string  `json:"language"`
	Region      string  `json:"region"`
	Target      string  `json:"target"`
	Decision    string  `json:"decision"`
	Confidence  float64 `json:"confidence"`
}

// Store is the SQLite switch history store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordSwitch inserts one switch entry and returns its ID.
func (s *Store) RecordSwitch(e *Entry) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO switches (timestamp_ns, surface_id, language, region, target, decision, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TimestampNs, e.SurfaceID, e.Language, e.Region, e.Target, e.Decision, e.Confidence,
	)
	if err != nil {
		return 0, fmt.Errorf("insert switch: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// BumpSuppression increments the counter for a suppression reason.
func (s *Store) BumpSuppression(decision string) error {
	_, err := s.db.Exec(`
		INSERT INTO suppressions (decision, count) VALUES (?, 1)
		ON CONFLICT(decision) DO UPDATE SET count = count + 1`,
		decision,
	)
	if err != nil {
		return fmt.Errorf("bump suppression: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, timestamp_ns, surface_id, language, region, target, decision, confidence
		FROM switches
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent switches: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// BySurface returns entries for one surface within a time range, oldest
// first.
func (s *Store) BySurface(surfaceID string, startNs, endNs int64) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp_ns, surface_id, language, region, target, decision, confidence
		FROM switches
		WHERE surface_id = ? AND timestamp_ns >= ? AND timestamp_ns <= ?
		ORDER BY timestamp_ns ASC`, surfaceID, startNs, endNs,
	)
	if err != nil {
		return nil, fmt.Errorf("query switches by surface: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// SuppressionCounts returns all suppression counters.
func (s *Store) SuppressionCounts() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT decision, count FROM suppressions`)
	if err != nil {
		return nil, fmt.Errorf("query suppressions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var decision string
		var count int64
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		counts[decision] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suppressions: %w", err)
	}
	return counts, nil
}

// Prune deletes entries older than the cutoff and returns the number
// removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM switches WHERE timestamp_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune switches: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TimestampNs, &e.SurfaceID, &e.Language, &e.Region, &e.Target, &e.Decision, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan switch: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate switches: %w", err)
	}
	return entries, nil
}
