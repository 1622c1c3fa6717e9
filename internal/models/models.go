package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// Role represents a member's role on a list
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Permissions holds per-member capabilities on a list.
// The owner's permissions are implicitly all-true regardless of the stored
// values; EffectivePermissions applies that rule.
type Permissions struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
	Share  bool `json:"share"`
}

// DefaultMemberPermissions are granted to members added via sharing:
// everything except deleting the list itself.
func DefaultMemberPermissions() Permissions {
	return Permissions{Read: true, Write: true, Delete: false, Share: true}
}

// OwnerPermissions returns the all-true permission set.
func OwnerPermissions() Permissions {
	return Permissions{Read: true, Write: true, Delete: true, Share: true}
}

// Member represents a principal's membership on a list
type Member struct {
	PrincipalID string      `json:"principal_id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email,omitempty"`
	Role        Role        `json:"role"`
	JoinedAt    time.Time   `json:"joined_at"`
	Permissions Permissions `json:"permissions"`
}

// EffectivePermissions returns the member's permissions with the owner rule
// applied: owners always hold every capability.
func (m Member) EffectivePermissions() Permissions {
	if m.Role == RoleOwner {
		return OwnerPermissions()
	}
	return m.Permissions
}

// Item represents a single entry on a list
type Item struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Quantity    string     `json:"quantity,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the item carries a tombstone.
func (it Item) Deleted() bool {
	return it.DeletedAt != nil
}

// SetCompleted toggles completion, keeping the completed/completed_at
// invariant: completed_at is non-nil iff completed is true.
func (it *Item) SetCompleted(done bool, now time.Time) {
	it.Completed = done
	if done {
		it.CompletedAt = &now
	} else {
		it.CompletedAt = nil
	}
	it.UpdatedAt = now
}

// List represents a shareable list with its items and membership
type List struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Color       string            `json:"color,omitempty"`
	OwnerID     string            `json:"owner_id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
	Items       []Item            `json:"items,omitempty"`
	Members     map[string]Member `json:"members,omitempty"`
}

// Deleted reports whether the list carries a tombstone.
func (l List) Deleted() bool {
	return l.DeletedAt != nil
}

// Item returns the item with the given id, or nil.
func (l *List) Item(id string) *Item {
	for i := range l.Items {
		if l.Items[i].ID == id {
			return &l.Items[i]
		}
	}
	return nil
}

// ActiveItems returns items without tombstones, in stored order.
func (l List) ActiveItems() []Item {
	out := make([]Item, 0, len(l.Items))
	for _, it := range l.Items {
		if !it.Deleted() {
			out = append(out, it)
		}
	}
	return out
}

// MemberIDs returns the principal ids of all members, for the remote
// visibility index.
func (l List) MemberIDs() []string {
	ids := make([]string, 0, len(l.Members))
	for id := range l.Members {
		ids = append(ids, id)
	}
	return ids
}

// IsMember reports whether the principal belongs to the list.
func (l List) IsMember(principalID string) bool {
	_, ok := l.Members[principalID]
	return ok
}

// CanShare reports whether the principal may add members.
func (l List) CanShare(principalID string) bool {
	m, ok := l.Members[principalID]
	return ok && m.EffectivePermissions().Share
}

// CanWrite reports whether the principal may modify list contents.
func (l List) CanWrite(principalID string) bool {
	m, ok := l.Members[principalID]
	return ok && m.EffectivePermissions().Write
}

// CanDelete reports whether the principal may delete the list.
func (l List) CanDelete(principalID string) bool {
	m, ok := l.Members[principalID]
	return ok && m.EffectivePermissions().Delete
}

// Validate checks structural invariants: the owner must appear in members
// with the owner role, exactly one member may hold it, and every item keeps
// the completed/completed_at pairing.
func (l List) Validate() error {
	owner, ok := l.Members[l.OwnerID]
	if !ok || owner.Role != RoleOwner {
		return ErrOwnerNotMember
	}
	owners := 0
	for _, m := range l.Members {
		if m.Role == RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		return ErrMultipleOwners
	}
	for _, it := range l.Items {
		if it.Completed != (it.CompletedAt != nil) {
			return ErrCompletedAtMismatch
		}
	}
	return nil
}

// Clone returns a deep copy. The engine hands lists across goroutine
// boundaries; callers must never share item slices or member maps.
func (l List) Clone() List {
	out := l
	if l.Items != nil {
		out.Items = make([]Item, len(l.Items))
		copy(out.Items, l.Items)
	}
	if l.Members != nil {
		out.Members = make(map[string]Member, len(l.Members))
		for k, v := range l.Members {
			out.Members[k] = v
		}
	}
	return out
}

// Origin tags the source of a local write so the sync engine can tell
// user mutations from merge write-backs. It is never persisted remotely.
type Origin int

const (
	// OriginUser marks a write made through the facade on behalf of the
	// local user. These are eligible for upload.
	OriginUser Origin = iota
	// OriginMerge marks a write produced by applying a remote-derived merge
	// result. The upload watcher must skip these.
	OriginMerge
)

func (o Origin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginMerge:
		return "merge"
	default:
		return "unknown"
	}
}

const (
	listIDPrefix = "ls-"
	itemIDPrefix = "it-"
)

// NormalizeListID ensures a list ID has the ls- prefix.
// Accepts bare hex IDs like "abc123" and returns "ls-abc123".
func NormalizeListID(id string) string {
	if id == "" {
		return id
	}
	if !strings.HasPrefix(id, listIDPrefix) {
		return listIDPrefix + id
	}
	return id
}

// NewListID generates a unique client-side list ID.
func NewListID() (string, error) {
	return generateID(listIDPrefix, 8)
}

// NewItemID generates a unique client-side item ID.
func NewItemID() (string, error) {
	return generateID(itemIDPrefix, 8)
}

func generateID(prefix string, n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(bytes), nil
}
