package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ConfirmRemotePresence records that the list was observed on the remote.
// The record survives restarts: the conservative absence rule in the
// tombstone manager must not forget confirmations across runs.
func (s *Store) ConfirmRemotePresence(listID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(
		`INSERT OR REPLACE INTO remote_presence (list_id, confirmed_at) VALUES (?, ?)`,
		listID, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("confirm presence %s: %w: %v", listID, ErrLocalIO, err)
	}
	return nil
}

// RemotePresenceConfirmed reports whether the list was ever observed on the
// remote. A list absent from a remote snapshot without a confirmation here
// is treated as not-yet-uploaded, never as remotely deleted.
func (s *Store) RemotePresenceConfirmed(listID string) (bool, error) {
	var ts string
	err := s.conn.QueryRow(
		`SELECT confirmed_at FROM remote_presence WHERE list_id = ?`, listID,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query presence %s: %w: %v", listID, ErrLocalIO, err)
	}
	return true, nil
}

// SyncMeta is the per-principal sync bookkeeping row.
type SyncMeta struct {
	PrincipalID     string
	InitialSyncDone bool
	LastSyncAt      *time.Time
}

// GetSyncMeta returns the sync bookkeeping for a principal, or nil if the
// principal has never synced.
func (s *Store) GetSyncMeta(principalID string) (*SyncMeta, error) {
	var m SyncMeta
	var done int
	var last sql.NullString
	err := s.conn.QueryRow(
		`SELECT principal_id, initial_sync_done, last_sync_at FROM sync_meta WHERE principal_id = ?`,
		principalID,
	).Scan(&m.PrincipalID, &done, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync meta: %w: %v", ErrLocalIO, err)
	}
	m.InitialSyncDone = done != 0
	if last.Valid {
		t, perr := time.Parse(time.RFC3339Nano, last.String)
		if perr != nil {
			return nil, fmt.Errorf("parse last_sync_at: %w", perr)
		}
		m.LastSyncAt = &t
	}
	return &m, nil
}

// MarkInitialSyncDone records that the one-time merge with the principal's
// remote dataset completed. It runs at most once per principal.
func (s *Store) MarkInitialSyncDone(principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`
		INSERT INTO sync_meta (principal_id, initial_sync_done) VALUES (?, 1)
		ON CONFLICT(principal_id) DO UPDATE SET initial_sync_done = 1`,
		principalID,
	)
	if err != nil {
		return fmt.Errorf("mark initial sync: %w: %v", ErrLocalIO, err)
	}
	return nil
}

// TouchLastSync stamps the principal's last successful sync pass.
func (s *Store) TouchLastSync(principalID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`
		INSERT INTO sync_meta (principal_id, last_sync_at) VALUES (?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET last_sync_at = excluded.last_sync_at`,
		principalID, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("touch last sync: %w: %v", ErrLocalIO, err)
	}
	return nil
}
