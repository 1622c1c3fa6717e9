// Package engine orchestrates bidirectional sync between the local store
// and the remote layer. All sync decisions run on one coordination
// goroutine, so merges for an entity never interleave.
//
// Loop prevention combines two guards: merge write-backs are tagged
// OriginMerge and never enqueue for upload, and a merge that produces a
// result identical to the current local entity is not written at all. One
// user write therefore causes at most one outbound push and at most one
// inbound merge write.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/listling/listling/internal/auth"
	"github.com/listling/listling/internal/models"
	"github.com/listling/listling/internal/remote"
	"github.com/listling/listling/internal/store"
	"github.com/listling/listling/internal/tombstone"
)

// Status is the engine's externally visible position.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// State is the observable sync state. Reason is set only for StatusError
// and is safe to show to a user.
type State struct {
	Status Status
	Reason string
}

const (
	backoffBase = time.Second
	backoffCap  = 64 * time.Second
)

// Engine coordinates the two stores. It is the only component that writes
// across the local/remote boundary.
type Engine struct {
	store  *store.Store
	remote remote.Layer
	tomb   *tombstone.Manager
	auth   auth.Provider

	mu        sync.Mutex
	state     State
	stateSubs []chan State
	paused    bool

	wake      chan struct{}
	passes    atomic.Int64
	attempts  int // consecutive failed passes, drives backoff
}

// New wires an engine. Nothing runs until Run is called; tests construct
// engines against fakes with no global state involved.
func New(s *store.Store, r remote.Layer, a auth.Provider) *Engine {
	return &Engine{
		store:  s,
		remote: r,
		tomb:   tombstone.NewManager(s),
		auth:   a,
		state:  State{Status: StatusIdle},
		wake:   make(chan struct{}, 1),
	}
}

// State returns the current sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// WatchState subscribes to sync state transitions. The current state is
// delivered first. Cancel must be called when the subscriber goes away.
func (e *Engine) WatchState() (<-chan State, func()) {
	ch := make(chan State, 8)
	e.mu.Lock()
	ch <- e.state
	e.stateSubs = append(e.stateSubs, ch)
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, cur := range e.stateSubs {
			if cur == ch {
				e.stateSubs = append(e.stateSubs[:i], e.stateSubs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == s {
		return
	}
	e.state = s
	for _, ch := range e.stateSubs {
		select {
		case ch <- s:
		default:
			// Slow subscriber: drop the oldest, state is latest-wins.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Pause suspends sync passes. The initial sync coordinator pauses the
// engine while it rewrites local state.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume re-enables sync passes and triggers one.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.Trigger()
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Trigger requests a sync pass. Requests coalesce; calling it during a pass
// schedules exactly one more.
func (e *Engine) Trigger() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// SyncPasses returns the number of completed sync passes. Test harnesses
// use it to bound the local/remote feedback loop.
func (e *Engine) SyncPasses() int64 {
	return e.passes.Load()
}

// SyncOnce runs a single push+pull pass for the current principal, for
// one-shot callers like a CLI sync command. It must not run concurrently
// with Run.
func (e *Engine) SyncOnce(ctx context.Context) error {
	principal := e.auth.CurrentPrincipalID()
	if principal == "" {
		return errors.New("not signed in")
	}
	if err := e.ensureInitialSync(ctx, principal); err != nil {
		return err
	}
	return e.syncPass(ctx, principal)
}

// Run is the engine's coordination loop. It blocks until ctx is cancelled.
// It subscribes to local changes, remote notifications, and principal
// transitions, and serializes every sync decision.
func (e *Engine) Run(ctx context.Context) error {
	localEvents, cancelLocal := e.store.WatchAll()
	defer cancelLocal()

	principal := e.auth.CurrentPrincipalID()
	principalChanges := e.auth.Changes()

	var (
		remoteCtx    context.Context
		remoteCancel context.CancelFunc = func() {}
		remoteEvents <-chan remote.Notification
	)
	defer func() { remoteCancel() }()

	startRemoteWatch := func() {
		remoteCancel()
		remoteEvents = nil
		if principal == "" {
			return
		}
		remoteCtx, remoteCancel = context.WithCancel(ctx)
		ch, err := e.remote.WatchVisible(remoteCtx, principal)
		if err != nil {
			slog.Debug("remote watch unavailable, will retry", "err", err)
			return
		}
		remoteEvents = ch
	}

	if principal != "" {
		if err := e.ensureInitialSync(ctx, principal); err != nil {
			slog.Warn("initial sync", "err", err)
		}
		startRemoteWatch()
		e.Trigger()
	}

	var retry *time.Timer
	var retryC <-chan time.Time
	stopRetry := func() {
		if retry != nil {
			retry.Stop()
			retry = nil
			retryC = nil
		}
	}
	defer stopRetry()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case p := <-principalChanges:
			wasSignedOut := principal == ""
			principal = p
			if principal == "" {
				// Sign-out: stop remote flow. Local data retention is the
				// caller's decision, not ours.
				remoteCancel()
				remoteEvents = nil
				stopRetry()
				e.setState(State{Status: StatusIdle})
				continue
			}
			if wasSignedOut {
				if err := e.ensureInitialSync(ctx, principal); err != nil {
					slog.Warn("initial sync", "err", err)
				}
			}
			startRemoteWatch()
			e.Trigger()

		case ev, ok := <-localEvents:
			if !ok {
				return nil // store closed
			}
			// Merge-origin writes are the downward half of the loop; they
			// must not re-enter the upload path.
			if ev.Origin != models.OriginUser {
				continue
			}
			e.Trigger()

		case n, ok := <-remoteEvents:
			if !ok {
				// Stream dropped: reconnect on the next pass.
				remoteEvents = nil
				e.Trigger()
				continue
			}
			if e.isPaused() {
				continue
			}
			if err := e.handleRemoteNotification(ctx, n); err != nil {
				e.failPass(err, &retry, &retryC)
			}

		case <-e.wake:
			if e.isPaused() || principal == "" {
				continue
			}
			stopRetry()
			if remoteEvents == nil {
				startRemoteWatch()
			}
			if err := e.syncPass(ctx, principal); err != nil {
				e.failPass(err, &retry, &retryC)
				continue
			}
			e.attempts = 0

		case <-retryC:
			stopRetry()
			e.Trigger()
		}
	}
}

// failPass records a failed pass and schedules a capped exponential retry
// for transient failures. Non-transient failures surface via state only.
func (e *Engine) failPass(err error, retry **time.Timer, retryC *<-chan time.Time) {
	e.setState(State{Status: StatusError, Reason: reasonFor(err)})
	if !errors.Is(err, remote.ErrUnavailable) {
		slog.Warn("sync pass failed", "err", err)
		return
	}
	e.attempts++
	delay := backoffBase << (e.attempts - 1)
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	slog.Debug("sync pass failed, retrying", "attempt", e.attempts, "delay", delay, "err", err)
	if *retry != nil {
		(*retry).Stop()
	}
	*retry = time.NewTimer(delay)
	*retryC = (*retry).C
}

// reasonFor maps an error to a user-presentable reason. Raw transport
// errors never reach the caller.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, remote.ErrUnavailable):
		return "server unreachable, changes are saved locally and will sync later"
	case errors.Is(err, remote.ErrPermissionDenied):
		return "you lack permission to modify this list"
	case errors.Is(err, store.ErrLocalIO):
		return "local database error"
	default:
		return "sync failed"
	}
}
