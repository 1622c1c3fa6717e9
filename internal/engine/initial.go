package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/listling/listling/internal/merge"
	"github.com/listling/listling/internal/models"
)

// ensureInitialSync runs the one-time merge between the pre-authentication
// local dataset and the principal's remote dataset. It runs at most once
// per principal; the completion marker is durable.
func (e *Engine) ensureInitialSync(ctx context.Context, principal string) error {
	meta, err := e.store.GetSyncMeta(principal)
	if err != nil {
		return err
	}
	if meta != nil && meta.InitialSyncDone {
		return nil
	}
	return e.runInitialSync(ctx, principal)
}

// runInitialSync merges both full datasets and writes the result as the new
// local authoritative state. Nothing accumulated before sign-in is
// discarded, and an empty pre-auth session never overwrites account data:
// a side that lacks an id participates with zero timestamps, so the present
// side wins every scalar comparison while item union still applies.
func (e *Engine) runInitialSync(ctx context.Context, principal string) error {
	e.Pause()
	defer e.Resume()

	remoteLists, err := e.remote.ListVisible(ctx, principal)
	if err != nil {
		return fmt.Errorf("initial sync: fetch remote: %w", err)
	}
	localLists, err := e.store.All()
	if err != nil {
		return fmt.Errorf("initial sync: fetch local: %w", err)
	}

	localByID := make(map[string]models.List, len(localLists))
	for _, l := range localLists {
		localByID[l.ID] = l
	}
	remoteByID := make(map[string]models.List, len(remoteLists))
	for _, l := range remoteLists {
		remoteByID[l.ID] = l
	}

	ids := make(map[string]bool, len(localByID)+len(remoteByID))
	for id := range localByID {
		ids[id] = true
	}
	for id := range remoteByID {
		ids[id] = true
	}

	now := time.Now()
	for id := range ids {
		local, hasLocal := localByID[id]
		rem, hasRemote := remoteByID[id]
		if !hasLocal {
			local = merge.Absent(id)
		}
		if !hasRemote {
			rem = merge.Absent(id)
		}
		merged := merge.Lists(local, rem)

		if hasLocal && merge.Equal(merged, local) {
			// Already authoritative locally; nothing to rewrite.
		} else if err := e.store.Upsert(merged, models.OriginMerge); err != nil {
			return fmt.Errorf("initial sync: write %s: %w", id, err)
		}
		if hasRemote {
			if err := e.store.ConfirmRemotePresence(id, now); err != nil {
				return err
			}
		}
		// Local-only lists keep their pending outbox entries from before
		// sign-in, so the first regular pass uploads them.
	}

	if err := e.store.MarkInitialSyncDone(principal); err != nil {
		return err
	}
	slog.Info("initial sync complete", "principal", principal,
		"local", len(localLists), "remote", len(remoteLists))
	return nil
}
