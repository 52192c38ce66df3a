package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides read-write access to the hearnow SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "hearnow", "hearnow.sqlite")
}

// Open opens (creating if needed) the database at path with WAL and foreign
// keys enabled, and creates missing tables.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps transactions and in-memory databases on one connection.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		modeKey TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		insights TEXT NOT NULL DEFAULT '',
		questions TEXT NOT NULL DEFAULT '',
		createdAt REAL NOT NULL,
		updatedAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bubbles (
		sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		sequenceNumber INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT 'microphone',
		text TEXT NOT NULL,
		isDraft INTEGER NOT NULL DEFAULT 0,
		timestamp REAL NOT NULL,
		PRIMARY KEY (sessionId, sequenceNumber)
	);

	CREATE TABLE IF NOT EXISTS markers (
		id TEXT PRIMARY KEY,
		sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		sequenceNumber INTEGER NOT NULL,
		at TEXT NOT NULL,
		wallTime TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS modes (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		createdAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		createdAt REAL NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

func timeFromUnix(ts float64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func unixFromTime(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
