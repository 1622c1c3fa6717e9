package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Outbox operations. A soft delete enqueues opDelete; everything else
// enqueues opUpsert. The engine decides create-vs-update at push time by
// asking the remote, so the outbox stays a plain change journal.
const (
	opUpsert = "upsert"
	opDelete = "delete"
)

// PendingChange is one unsynced local change.
type PendingChange struct {
	Seq      int64
	ListID   string
	Op       string
	QueuedAt time.Time
}

func enqueue(tx *sql.Tx, listID, op string) error {
	_, err := tx.Exec(
		`INSERT INTO outbox (list_id, op, queued_at) VALUES (?, ?, ?)`,
		listID, op, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s %s: %w: %v", op, listID, ErrLocalIO, err)
	}
	return nil
}

// Pending returns unsynced changes coalesced per list: for each list id only
// the newest pending entry is returned, in queue order. Earlier entries for
// the same id are superseded by the later write (the upload always sends the
// current document, not a diff).
func (s *Store) Pending() ([]PendingChange, error) {
	rows, err := s.conn.Query(`
		SELECT seq, list_id, op, queued_at FROM outbox
		WHERE synced_at IS NULL AND seq IN (
			SELECT MAX(seq) FROM outbox WHERE synced_at IS NULL GROUP BY list_id
		)
		ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w: %v", ErrLocalIO, err)
	}
	defer rows.Close()

	var out []PendingChange
	for rows.Next() {
		var p PendingChange
		var ts string
		if err := rows.Scan(&p.Seq, &p.ListID, &p.Op, &ts); err != nil {
			return nil, fmt.Errorf("scan pending: %w: %v", ErrLocalIO, err)
		}
		p.QueuedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse queued_at seq=%d: %w", p.Seq, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HasPendingAfter reports whether a newer pending change exists for the
// list than the given sequence. The engine checks this before applying a
// push response: a slow upload must not clobber a write that superseded it.
func (s *Store) HasPendingAfter(listID string, seq int64) (bool, error) {
	var n int
	err := s.conn.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE list_id = ? AND seq > ? AND synced_at IS NULL`,
		listID, seq,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending after: %w: %v", ErrLocalIO, err)
	}
	return n > 0, nil
}

// MarkSynced stamps every pending outbox entry for the list up to and
// including seq. Entries queued after seq stay pending.
func (s *Store) MarkSynced(listID string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(
		`UPDATE outbox SET synced_at = ? WHERE list_id = ? AND seq <= ? AND synced_at IS NULL`,
		formatTime(time.Now()), listID, seq,
	)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w: %v", listID, ErrLocalIO, err)
	}
	return nil
}

// PendingCount returns the number of lists with unsynced changes.
func (s *Store) PendingCount() (int64, error) {
	var n int64
	err := s.conn.QueryRow(
		`SELECT COUNT(DISTINCT list_id) FROM outbox WHERE synced_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w: %v", ErrLocalIO, err)
	}
	return n, nil
}

// DeletePropagated reports whether the newest delete entry for the list has
// been synced, i.e. the tombstone reached the remote. Used by the tombstone
// manager to gate the purge transition.
func (s *Store) DeletePropagated(listID string) (bool, error) {
	var syncedAt sql.NullString
	err := s.conn.QueryRow(`
		SELECT synced_at FROM outbox
		WHERE list_id = ? AND op = ?
		ORDER BY seq DESC LIMIT 1`, listID, opDelete,
	).Scan(&syncedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check propagated %s: %w: %v", listID, ErrLocalIO, err)
	}
	return syncedAt.Valid, nil
}
