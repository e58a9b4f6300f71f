package store

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the database connection. It is the single persistent facade
// every subsystem shares (spec.md component A); entity-specific methods
// live in sibling files (applications.go, deployments.go, ...).
type Store struct {
	db *sql.DB
}

// Open creates the data directory if missing and opens the embedded SQLite
// database, matching the teacher's WAL + foreign-key pragma set.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "ployer.db")
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for callers that need ad-hoc read
// queries not worth a dedicated method.
func (s *Store) DB() *sql.DB {
	return s.db
}
