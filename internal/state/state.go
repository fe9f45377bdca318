// Package state provides the SQLite-backed table mapping a provider key
// to the timestamp of its last memory reset.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS memory_resets (
	provider      TEXT PRIMARY KEY,
	last_reset_ms INTEGER NOT NULL
);
`

// DB wraps a sql.DB with reset-state operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the state database and applies the schema.
// Parent directories are created as needed. WAL mode and a busy timeout
// let independent process instances open the file concurrently; a racing
// read-then-write of a gate timestamp is accepted (worst case an extra
// reset fires slightly early).
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("state: mkdir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("state: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// LastReset returns the last memory-reset time for a provider key. ok is
// false when the key has never been reset.
func (db *DB) LastReset(provider string) (t time.Time, ok bool, err error) {
	var ms int64
	err = db.conn.QueryRow(
		`SELECT last_reset_ms FROM memory_resets WHERE provider = ?`, provider,
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("state: last reset: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// SetLastReset records t as the provider's last memory reset, inserting
// the row on first reset.
func (db *DB) SetLastReset(provider string, t time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO memory_resets (provider, last_reset_ms)
		VALUES (?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			last_reset_ms = excluded.last_reset_ms
	`, provider, t.UnixMilli())
	if err != nil {
		return fmt.Errorf("state: set last reset: %w", err)
	}
	return nil
}

// ShouldReset reports whether the provider's last reset is absent or
// older than interval, measured against now.
func (db *DB) ShouldReset(provider string, interval time.Duration, now time.Time) (bool, error) {
	last, ok, err := db.LastReset(provider)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last) > interval, nil
}
