package store

import (
	"log/slog"

	"github.com/listling/listling/internal/models"
)

// EventKind classifies a store change event.
type EventKind int

const (
	EventUpsert EventKind = iota
	EventPurge
)

// Event describes one applied write. List is a snapshot taken after the
// write (nil for purges). Origin carries the sync loop guard: subscribers
// pushing changes upward must skip OriginMerge events.
type Event struct {
	Kind   EventKind
	ID     string
	Origin models.Origin
	List   *models.List
}

type subscriber struct {
	ch         chan Event
	activeOnly bool
}

const watchBuffer = 16

// WatchAll subscribes to every change event, tombstoned entities included.
// The returned cancel func must be called when the subscriber goes away.
//
// Delivery is best-effort latest-wins: when a subscriber falls behind, the
// oldest queued event is dropped in favour of the new one. The sync engine
// treats the channel as a wake-up signal and re-reads the outbox, so a
// dropped event never loses a change.
func (s *Store) WatchAll() (<-chan Event, func()) {
	return s.subscribe(false)
}

// WatchActive subscribes to change events for non-tombstoned entities only,
// for caller-facing views. Soft deletes are delivered as purge-kind events
// so the view can drop the entity.
func (s *Store) WatchActive() (<-chan Event, func()) {
	return s.subscribe(true)
}

func (s *Store) subscribe(activeOnly bool) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, watchBuffer), activeOnly: activeOnly}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.subs {
			if cur == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// notifyLocked fans an event out to subscribers. Caller holds s.mu.
func (s *Store) notifyLocked(ev Event) {
	for _, sub := range s.subs {
		out := ev
		if sub.activeOnly {
			if ev.Kind == EventUpsert && ev.List != nil && ev.List.Deleted() {
				// To an active-only view a tombstone is a removal.
				out = Event{Kind: EventPurge, ID: ev.ID, Origin: ev.Origin}
			}
		}
		select {
		case sub.ch <- out:
		default:
			// Subscriber is behind: drop the oldest event to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- out:
			default:
				slog.Warn("store: dropped change event", "id", out.ID)
			}
		}
	}
}
