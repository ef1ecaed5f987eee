// Package kvstore is a small JSON key/value store on SQLite, used for
// updater state that must survive process restarts.
package kvstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("key not found")

// Store persists JSON-serializable values by key.
type Store interface {
	SetValue(key string, value interface{}) error
	GetValue(key string, dest interface{}) error
	DeleteValue(key string) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the store at dbPath. An empty path uses an
// in-memory database.
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS updater_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create updater_state schema: %w", err)
	}
	return nil
}

// SetValue stores any JSON-serializable value under key.
func (s *SQLiteStore) SetValue(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO updater_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		key, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// GetValue retrieves the value stored under key into dest. Returns
// ErrNotFound when the key is absent.
func (s *SQLiteStore) GetValue(key string, dest interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM updater_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return fmt.Errorf("failed to decode value for %s: %w", key, err)
	}
	return nil
}

// DeleteValue removes a stored value by key. Deleting an absent key is not
// an error.
func (s *SQLiteStore) DeleteValue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM updater_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const lastSuccessfulUpdateKey = "last_successful_update_at"

// LastUpdateClock persists the timestamp of the most recent successful
// update in a Store. It backs time-since-last-update bucketing.
type LastUpdateClock struct {
	store Store
}

// NewLastUpdateClock wraps a Store.
func NewLastUpdateClock(store Store) *LastUpdateClock {
	return &LastUpdateClock{store: store}
}

// LastSuccessfulUpdate returns the recorded timestamp, if any.
func (c *LastUpdateClock) LastSuccessfulUpdate() (time.Time, bool) {
	var t time.Time
	if err := c.store.GetValue(lastSuccessfulUpdateKey, &t); err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetLastSuccessfulUpdate records a new timestamp.
func (c *LastUpdateClock) SetLastSuccessfulUpdate(t time.Time) error {
	return c.store.SetValue(lastSuccessfulUpdateKey, t)
}
