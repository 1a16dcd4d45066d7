// Package store persists analyses and recommended actions in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"advisor/internal/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a status transition loses the compare-and-set
// race, i.e. the row exists but is no longer in the required source state.
var ErrConflict = errors.New("status conflict")

// LocalStore implements durable storage for pipeline output using SQLite.
// Two tables: analysis_results holds the immutable four-section narrative,
// recommended_actions holds the mutable decision state machine rows that
// reference it.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable sqlite foreign_keys: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Database schema initialized successfully")

	return store, nil
}

// initialize creates the schema if it does not exist. Priority is stored as
// its ordinal (high=3, medium=2, low=1) so ORDER BY sorts correctly.
func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_results (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		overview TEXT NOT NULL,
		conditions TEXT NOT NULL,
		risk TEXT NOT NULL,
		opportunities TEXT NOT NULL,
		capabilities_used TEXT NOT NULL DEFAULT '[]',
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_agent ON analysis_results(agent_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS recommended_actions (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL REFERENCES analysis_results(id) ON DELETE CASCADE,
		action_type TEXT NOT NULL,
		owner TEXT NOT NULL,
		priority INTEGER NOT NULL,
		reasoning TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		trigger_phrase TEXT NOT NULL DEFAULT '',
		params TEXT NOT NULL DEFAULT '{}',
		estimated_impact TEXT NOT NULL DEFAULT '',
		estimated_gas TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		decided_at TIMESTAMP,
		executed_at TIMESTAMP,
		result TEXT,
		error TEXT NOT NULL DEFAULT '',
		error_kind TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_analysis ON recommended_actions(analysis_id);
	CREATE INDEX IF NOT EXISTS idx_actions_status ON recommended_actions(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.Store("Closing LocalStore at %s", s.dbPath)
	return s.db.Close()
}
