// Package remote adapts the multi-tenant list service. It is pure data
// access: no merge logic lives here, and every entity id and timestamp is
// client-supplied so both stores stay directly comparable.
package remote

import (
	"context"
	"errors"

	"github.com/listling/listling/internal/models"
)

// Sentinel errors for the failure classes the engine distinguishes.
var (
	// ErrUnavailable marks transient connectivity failures. The engine
	// retries these with backoff; nothing else is retried silently.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrPermissionDenied means the principal lacks the required capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound means the entity does not exist remotely.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound means no principal matches the given email.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyMember means the share target already belongs to the list.
	ErrAlreadyMember = errors.New("already a member")
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// User is a principal profile resolved from the remote directory.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Notification signals a remote-side change to a visible list. The consumer
// refetches the list (or observes its absence) and merges; notifications
// carry no document payload.
type Notification struct {
	ListID  string
	Deleted bool
}

// Layer is the remote store contract the sync engine programs against.
//
// Create must use the caller-supplied id, never generate one: the same id
// has to resolve identically in both stores for convergence. Timestamps are
// the client's wall clock throughout; the service never assigns its own.
type Layer interface {
	// Create stores a new list document.
	Create(ctx context.Context, list models.List) error
	// Update replaces an existing list document.
	Update(ctx context.Context, list models.List) error
	// Delete removes the list remotely.
	Delete(ctx context.Context, id string) error
	// Get fetches one list. Fails with ErrNotFound when absent.
	Get(ctx context.Context, id string) (*models.List, error)
	// ListVisible fetches every list where the principal is a member,
	// filtered server-side via the member id index.
	ListVisible(ctx context.Context, principalID string) ([]models.List, error)
	// WatchVisible streams change notifications for lists visible to the
	// principal. The channel closes when ctx is cancelled or the
	// connection drops; callers reconnect with backoff.
	WatchVisible(ctx context.Context, principalID string) (<-chan Notification, error)

	// LookupUserByEmail resolves the share target.
	LookupUserByEmail(ctx context.Context, email string) (*User, error)
	// AddMember attaches a member record to a list. Fails with
	// ErrAlreadyMember when the principal already belongs.
	AddMember(ctx context.Context, listID string, member models.Member) error
}
