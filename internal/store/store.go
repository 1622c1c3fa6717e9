// Package store implements the local, durable side of the sync pair: an
// embedded SQLite database holding the full list documents available to the
// caller. All operations are synchronous and never touch the network.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/listling/listling/internal/models"
	_ "modernc.org/sqlite"
)

const dbFile = "lists.db"

// ErrLocalIO wraps database failures. Callers treat these as fatal to the
// operation; they are surfaced, never silently retried.
var ErrLocalIO = errors.New("local store I/O")

const schema = `
CREATE TABLE IF NOT EXISTS lists (
    id          TEXT PRIMARY KEY,
    data        TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    deleted_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_lists_deleted ON lists(deleted_at);

-- Pending local changes awaiting upload. Merge-origin writes never enqueue
-- here; that is one half of the sync loop guard.
CREATE TABLE IF NOT EXISTS outbox (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    list_id    TEXT NOT NULL,
    op         TEXT NOT NULL,
    queued_at  TEXT NOT NULL,
    synced_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(list_id) WHERE synced_at IS NULL;

-- Ids confirmed present on the remote at least once. A list absent from a
-- remote snapshot is only reconciled as deleted when its id appears here.
CREATE TABLE IF NOT EXISTS remote_presence (
    list_id      TEXT PRIMARY KEY,
    confirmed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_meta (
    principal_id      TEXT PRIMARY KEY,
    initial_sync_done INTEGER NOT NULL DEFAULT 0,
    last_sync_at      TEXT
);
`

// Store wraps the local database. Writes are serialized through a mutex
// (SQLite is single-writer); reads go straight to the connection.
type Store struct {
	conn *sql.DB

	mu   sync.Mutex // serializes writes and subscriber bookkeeping
	subs []*subscriber
}

// Open opens (creating if necessary) the list database under baseDir and
// ensures the schema exists.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	conn, err := sql.Open("sqlite", filepath.Join(baseDir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps reads concurrent while writes stay serialized.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// OpenMemory opens an in-memory store, used by tests.
func OpenMemory() (*Store, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single conn keeps every statement on the same in-memory database.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the database and terminates all watch subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	for _, sub := range s.subs {
		close(sub.ch)
	}
	s.subs = nil
	s.mu.Unlock()
	return s.conn.Close()
}

// Conn exposes the underlying connection for transactional callers.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Upsert writes the full list document. User-origin writes are queued for
// upload; merge-origin writes are applied without re-entering the outbox.
// The write is visible to readers before Upsert returns.
func (s *Store) Upsert(list models.List, origin models.Origin) error {
	if err := list.Validate(); err != nil {
		return fmt.Errorf("upsert %s: %w", list.ID, err)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("upsert %s: marshal: %w", list.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("upsert %s: %w: %v", list.ID, ErrLocalIO, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO lists (id, data, updated_at, deleted_at) VALUES (?, ?, ?, ?)`,
		list.ID, string(data), formatTime(list.UpdatedAt), formatTimePtr(list.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w: %v", list.ID, ErrLocalIO, err)
	}
	if origin == models.OriginUser {
		op := opUpsert
		if list.Deleted() {
			op = opDelete
		}
		if err := enqueue(tx, list.ID, op); err != nil {
			return fmt.Errorf("upsert %s: %w", list.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert %s: %w: %v", list.ID, ErrLocalIO, err)
	}

	s.notifyLocked(Event{Kind: EventUpsert, ID: list.ID, Origin: origin, List: &list})
	return nil
}

// SoftDelete marks the list deleted at the given time. deleted_at is
// monotonic: an earlier timestamp never overwrites a later one, and the
// entity never transitions back to active here.
func (s *Store) SoftDelete(id string, at time.Time, origin models.Origin) error {
	list, err := s.Get(id)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("soft delete %s: list not found", id)
	}
	if list.DeletedAt != nil && !at.After(*list.DeletedAt) {
		return nil // already tombstoned at or after this time
	}
	list.DeletedAt = &at
	if at.After(list.UpdatedAt) {
		list.UpdatedAt = at
	}
	return s.Upsert(*list, origin)
}

// Get returns the list with the given id, tombstoned or not.
// Returns (nil, nil) when absent.
func (s *Store) Get(id string) (*models.List, error) {
	var data string
	err := s.conn.QueryRow(`SELECT data FROM lists WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %v", id, ErrLocalIO, err)
	}
	var list models.List
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("get %s: unmarshal: %w", id, err)
	}
	return &list, nil
}

// All returns every stored list, tombstoned included, for sync use.
func (s *Store) All() ([]models.List, error) {
	return s.query(`SELECT data FROM lists ORDER BY id`)
}

// Active returns lists without tombstones, for caller-facing views.
func (s *Store) Active() ([]models.List, error) {
	return s.query(`SELECT data FROM lists WHERE deleted_at IS NULL ORDER BY id`)
}

func (s *Store) query(q string) ([]models.List, error) {
	rows, err := s.conn.Query(q)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w: %v", ErrLocalIO, err)
	}
	defer rows.Close()

	var out []models.List
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan list: %w: %v", ErrLocalIO, err)
		}
		var list models.List
		if err := json.Unmarshal([]byte(data), &list); err != nil {
			return nil, fmt.Errorf("unmarshal list: %w", err)
		}
		out = append(out, list)
	}
	return out, rows.Err()
}

// Purge hard-deletes the row and its bookkeeping. Only the tombstone
// manager calls this, after the deletion is confirmed remote-side.
func (s *Store) Purge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("purge %s: %w: %v", id, ErrLocalIO, err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM lists WHERE id = ?`,
		`DELETE FROM outbox WHERE list_id = ?`,
		`DELETE FROM remote_presence WHERE list_id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("purge %s: %w: %v", id, ErrLocalIO, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("purge %s: %w: %v", id, ErrLocalIO, err)
	}

	s.notifyLocked(Event{Kind: EventPurge, ID: id, Origin: models.OriginMerge})
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
