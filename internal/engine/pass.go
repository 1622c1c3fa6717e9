package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/listling/listling/internal/merge"
	"github.com/listling/listling/internal/models"
	"github.com/listling/listling/internal/remote"
)

// syncPass runs one full push+pull cycle for the principal. It is only ever
// called from the coordination goroutine.
func (e *Engine) syncPass(ctx context.Context, principal string) error {
	e.setState(State{Status: StatusSyncing})

	if err := e.pushPending(ctx); err != nil {
		return err
	}
	if err := e.pullVisible(ctx, principal); err != nil {
		return err
	}
	if n, err := e.tomb.PurgeEligible(); err != nil {
		return err
	} else if n > 0 {
		slog.Debug("purged propagated tombstones", "count", n)
	}

	if err := e.store.TouchLastSync(principal, time.Now()); err != nil {
		return err
	}
	e.passes.Add(1)
	e.setState(State{Status: StatusSynced})
	return nil
}

// pushPending uploads each coalesced pending local change. A transient
// failure aborts the pass (the whole batch is retried with backoff); other
// failures are handled per entity so one bad list cannot wedge the queue.
func (e *Engine) pushPending(ctx context.Context) error {
	pending, err := e.store.Pending()
	if err != nil {
		return err
	}
	for _, p := range pending {
		if err := e.pushOne(ctx, p.ListID, p.Op, p.Seq); err != nil {
			if errors.Is(err, remote.ErrUnavailable) {
				return err
			}
			slog.Warn("push", "list", p.ListID, "op", p.Op, "err", err)
			if errors.Is(err, remote.ErrPermissionDenied) {
				// Not retryable: abandon the upload so the queue moves on,
				// and surface the denial through the state stream.
				if markErr := e.store.MarkSynced(p.ListID, p.Seq); markErr != nil {
					return markErr
				}
				e.setState(State{Status: StatusError, Reason: reasonFor(err)})
				continue
			}
			return err
		}
	}
	return nil
}

func (e *Engine) pushOne(ctx context.Context, listID, op string, seq int64) error {
	list, err := e.store.Get(listID)
	if err != nil {
		return err
	}
	if list == nil {
		// Row purged since the change was queued; nothing left to say.
		return e.store.MarkSynced(listID, seq)
	}

	if op == "delete" || list.Deleted() {
		err := e.remote.Delete(ctx, listID)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return err
		}
		// Deleted (or already gone): the tombstone has propagated. The
		// entity stays SoftDeleted until the purge step, never Active.
		return e.store.MarkSynced(listID, seq)
	}

	known, err := e.store.RemotePresenceConfirmed(listID)
	if err != nil {
		return err
	}
	if known {
		err = e.remote.Update(ctx, *list)
		if errors.Is(err, remote.ErrNotFound) {
			// Vanished remotely after we saw it: reconcile as a remote
			// deletion rather than re-creating or surfacing an error.
			return e.tomb.ApplyRemoteTombstone(listID, time.Now())
		}
	} else {
		err = e.remote.Create(ctx, *list)
	}
	if err != nil {
		return err
	}

	if err := e.store.ConfirmRemotePresence(listID, time.Now()); err != nil {
		return err
	}
	return e.store.MarkSynced(listID, seq)
}

// pullVisible fetches the principal's remote snapshot and merges it into
// the local store.
func (e *Engine) pullVisible(ctx context.Context, principal string) error {
	remoteLists, err := e.remote.ListVisible(ctx, principal)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(remoteLists))
	now := time.Now()
	for _, rl := range remoteLists {
		seen[rl.ID] = true
		if err := e.mergeRemote(rl); err != nil {
			return err
		}
		if err := e.store.ConfirmRemotePresence(rl.ID, now); err != nil {
			return err
		}
	}

	// Local entities the snapshot omits: deletion only when the remote was
	// previously confirmed to hold the id. A not-yet-uploaded local-only
	// list must never be purged off the back of a snapshot.
	locals, err := e.store.All()
	if err != nil {
		return err
	}
	for _, ll := range locals {
		if seen[ll.ID] || ll.Deleted() {
			continue
		}
		confirmed, err := e.tomb.AbsenceMeansDeleted(ll.ID)
		if err != nil {
			return err
		}
		if !confirmed {
			continue
		}
		pending, err := e.store.HasPendingAfter(ll.ID, 0)
		if err != nil {
			return err
		}
		if pending {
			// A local change is still queued; the push path will observe
			// the remote's answer and reconcile there.
			continue
		}
		slog.Debug("remote dropped list, tombstoning locally", "list", ll.ID)
		if err := e.tomb.ApplyRemoteTombstone(ll.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// mergeRemote merges one remote document into the local store. The write
// back is tagged merge-origin and is skipped entirely when the merge is a
// no-op, which together bound the sync feedback loop.
func (e *Engine) mergeRemote(remoteList models.List) error {
	local, err := e.store.Get(remoteList.ID)
	if err != nil {
		return err
	}

	var merged models.List
	if local == nil {
		merged = remoteList.Clone()
	} else {
		merged = merge.Lists(*local, remoteList)
	}

	if local != nil && merge.Equal(merged, *local) {
		return nil
	}
	if err := e.store.Upsert(merged, models.OriginMerge); err != nil {
		return fmt.Errorf("merge write-back %s: %w", remoteList.ID, err)
	}
	return nil
}

// handleRemoteNotification reacts to a single change pushed over the watch
// stream: fetch, merge, or reconcile an absence.
func (e *Engine) handleRemoteNotification(ctx context.Context, n remote.Notification) error {
	if n.Deleted {
		confirmed, err := e.tomb.AbsenceMeansDeleted(n.ListID)
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		return e.tomb.ApplyRemoteTombstone(n.ListID, time.Now())
	}

	rl, err := e.remote.Get(ctx, n.ListID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			confirmed, cErr := e.tomb.AbsenceMeansDeleted(n.ListID)
			if cErr != nil {
				return cErr
			}
			if confirmed {
				return e.tomb.ApplyRemoteTombstone(n.ListID, time.Now())
			}
			return nil
		}
		return err
	}
	if err := e.mergeRemote(*rl); err != nil {
		return err
	}
	return e.store.ConfirmRemotePresence(n.ListID, time.Now())
}
