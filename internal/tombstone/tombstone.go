// Package tombstone drives deletion propagation. Deletes are never applied
// directly: an entity moves Active → SoftDeleted → PropagatedToRemote →
// Purged, and each transition is driven by an observed fact (user action,
// confirmed remote delete), never by a timeout or a guess.
package tombstone

import (
	"fmt"
	"time"

	"github.com/listling/listling/internal/models"
	"github.com/listling/listling/internal/store"
)

// State is the deletion lifecycle position of an entity.
type State int

const (
	// Active: no tombstone.
	Active State = iota
	// SoftDeleted: deleted_at set locally, remote delete not yet confirmed.
	SoftDeleted
	// PropagatedToRemote: remote delete confirmed, local row still present.
	PropagatedToRemote
	// Purged: row removed from the local store.
	Purged
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case SoftDeleted:
		return "soft_deleted"
	case PropagatedToRemote:
		return "propagated"
	case Purged:
		return "purged"
	default:
		return "unknown"
	}
}

// Manager interprets soft-delete markers against the store's propagation
// bookkeeping. It is the only component that calls Purge.
type Manager struct {
	store *store.Store
}

// NewManager creates a tombstone manager over the local store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// StateOf reports where the given id sits in the deletion lifecycle.
func (m *Manager) StateOf(id string) (State, error) {
	list, err := m.store.Get(id)
	if err != nil {
		return Active, err
	}
	if list == nil {
		return Purged, nil
	}
	if !list.Deleted() {
		return Active, nil
	}
	propagated, err := m.store.DeletePropagated(id)
	if err != nil {
		return SoftDeleted, err
	}
	if propagated {
		return PropagatedToRemote, nil
	}
	return SoftDeleted, nil
}

// CollectPurgeable returns ids whose deletion has been confirmed remote-side
// and may therefore be hard-removed. A soft-deleted entity whose remote
// delete has not succeeded stays where it is; it never regresses to Active.
func (m *Manager) CollectPurgeable() ([]string, error) {
	lists, err := m.store.All()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, l := range lists {
		if !l.Deleted() {
			continue
		}
		propagated, err := m.store.DeletePropagated(l.ID)
		if err != nil {
			return nil, err
		}
		if propagated {
			out = append(out, l.ID)
		}
	}
	return out, nil
}

// PurgeEligible hard-deletes every entity whose tombstone has propagated.
// Returns the number purged.
func (m *Manager) PurgeEligible() (int, error) {
	ids, err := m.CollectPurgeable()
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := m.store.Purge(id); err != nil {
			return i, fmt.Errorf("purge %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// ApplyRemoteTombstone reconciles a deletion discovered via the remote
// stream into a local soft delete, tagged merge-origin so it is not pushed
// back up. The tombstone timestamp is monotonic in the store.
func (m *Manager) ApplyRemoteTombstone(id string, at time.Time) error {
	list, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if list == nil {
		return nil // nothing local to tombstone
	}
	if err := m.store.SoftDelete(id, at, models.OriginMerge); err != nil {
		return err
	}
	// Remote already dropped the entity, so propagation is a fact
	// regardless of outbox history; purge directly.
	return m.store.Purge(id)
}

// AbsenceMeansDeleted decides the ambiguous case: the entity exists locally
// but a remote snapshot omits it. Only a prior confirmed remote presence
// makes absence evidence of deletion; otherwise the entity is treated as
// not-yet-uploaded and left alone.
func (m *Manager) AbsenceMeansDeleted(id string) (bool, error) {
	return m.store.RemotePresenceConfirmed(id)
}
