// Package lists is the mutation facade backing the user-facing surface.
// Every mutation completes synchronously against the local store regardless
// of network state; the sync engine propagates it afterwards. Sharing is
// the one exception: it has no local-only meaning and goes straight to the
// remote.
package lists

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/listling/listling/internal/auth"
	"github.com/listling/listling/internal/models"
	"github.com/listling/listling/internal/remote"
	"github.com/listling/listling/internal/store"
)

// Service exposes list and item operations. Construct one per composition
// root; it holds no global state.
type Service struct {
	store    *store.Store
	remote   remote.Layer
	auth     auth.Provider
	deviceID string
}

// New creates the facade. deviceID anchors the anonymous principal so
// pre-authentication data has a stable owner.
func New(s *store.Store, r remote.Layer, a auth.Provider, deviceID string) *Service {
	return &Service{store: s, remote: r, auth: a, deviceID: deviceID}
}

// principal returns the acting principal id, falling back to a
// device-scoped anonymous id before sign-in.
func (s *Service) principal() string {
	if id := s.auth.CurrentPrincipalID(); id != "" {
		return id
	}
	return "anon-" + s.deviceID
}

// CreateList creates a list owned by the acting principal.
func (s *Service) CreateList(name, description, color string) (*models.List, error) {
	if name == "" {
		return nil, errors.New("list name is required")
	}
	id, err := models.NewListID()
	if err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	now := time.Now()
	owner := s.principal()
	list := models.List{
		ID:          id,
		Name:        name,
		Description: description,
		Color:       color,
		OwnerID:     owner,
		CreatedAt:   now,
		UpdatedAt:   now,
		Members: map[string]models.Member{
			owner: {
				PrincipalID: owner,
				Role:        models.RoleOwner,
				JoinedAt:    now,
				Permissions: models.OwnerPermissions(),
			},
		},
	}
	if err := s.store.Upsert(list, models.OriginUser); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	return &list, nil
}

// Get returns one list, tombstoned excluded.
func (s *Service) Get(listID string) (*models.List, error) {
	list, err := s.store.Get(models.NormalizeListID(listID))
	if err != nil {
		return nil, err
	}
	if list == nil || list.Deleted() {
		return nil, fmt.Errorf("list %s not found", listID)
	}
	return list, nil
}

// Lists returns all active lists.
func (s *Service) Lists() ([]models.List, error) {
	return s.store.Active()
}

// Rename changes the list name.
func (s *Service) Rename(listID, name string) error {
	if name == "" {
		return errors.New("list name is required")
	}
	return s.mutate(listID, func(l *models.List, now time.Time) error {
		l.Name = name
		return nil
	})
}

// SetColor changes the list color.
func (s *Service) SetColor(listID, color string) error {
	return s.mutate(listID, func(l *models.List, now time.Time) error {
		l.Color = color
		return nil
	})
}

// AddItem appends an item to the list.
func (s *Service) AddItem(listID, name, quantity string) (*models.Item, error) {
	if name == "" {
		return nil, errors.New("item name is required")
	}
	id, err := models.NewItemID()
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	var item models.Item
	err = s.mutate(listID, func(l *models.List, now time.Time) error {
		item = models.Item{
			ID:        id,
			Name:      name,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		l.Items = append(l.Items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetItemCompleted toggles an item's completion state.
func (s *Service) SetItemCompleted(listID, itemID string, done bool) error {
	return s.mutate(listID, func(l *models.List, now time.Time) error {
		item := l.Item(itemID)
		if item == nil || item.Deleted() {
			return fmt.Errorf("item %s not found on %s", itemID, l.ID)
		}
		item.SetCompleted(done, now)
		return nil
	})
}

// RenameItem changes an item's name.
func (s *Service) RenameItem(listID, itemID, name string) error {
	if name == "" {
		return errors.New("item name is required")
	}
	return s.mutate(listID, func(l *models.List, now time.Time) error {
		item := l.Item(itemID)
		if item == nil || item.Deleted() {
			return fmt.Errorf("item %s not found on %s", itemID, l.ID)
		}
		item.Name = name
		item.UpdatedAt = now
		return nil
	})
}

// DeleteItem tombstones an item within its list. The tombstone rides along
// with the list document so concurrent editors see the deletion instead of
// resurrecting the item on the next merge.
func (s *Service) DeleteItem(listID, itemID string) error {
	return s.mutate(listID, func(l *models.List, now time.Time) error {
		item := l.Item(itemID)
		if item == nil || item.Deleted() {
			return fmt.Errorf("item %s not found on %s", itemID, l.ID)
		}
		item.DeletedAt = &now
		item.UpdatedAt = now
		return nil
	})
}

// DeleteList tombstones the list after a permission check. Hard removal
// happens only once the deletion is confirmed remote-side.
func (s *Service) DeleteList(listID string) error {
	id := models.NormalizeListID(listID)
	list, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if list == nil || list.Deleted() {
		return fmt.Errorf("list %s not found", listID)
	}
	if !list.CanDelete(s.principal()) {
		return fmt.Errorf("you lack permission to delete %q", list.Name)
	}
	return s.store.SoftDelete(id, time.Now(), models.OriginUser)
}

// mutate loads, modifies, stamps, and writes back a list as a user-origin
// change. The write is local-only and synchronous.
func (s *Service) mutate(listID string, fn func(*models.List, time.Time) error) error {
	id := models.NormalizeListID(listID)
	list, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if list == nil || list.Deleted() {
		return fmt.Errorf("list %s not found", listID)
	}
	if !list.CanWrite(s.principal()) {
		return fmt.Errorf("you lack permission to modify %q", list.Name)
	}
	now := time.Now()
	if err := fn(list, now); err != nil {
		return err
	}
	list.UpdatedAt = now
	return s.store.Upsert(*list, models.OriginUser)
}

// ShareOutcome reports a completed share.
type ShareOutcome struct {
	ListID string
	Member models.Member
}

// ShareList adds the principal behind targetEmail as a member. This is a
// direct remote operation: membership has no local-only meaning. The local
// copy is updated as a merge so it is not pushed a second time.
func (s *Service) ShareList(ctx context.Context, listID, targetEmail string) (*ShareOutcome, error) {
	id := models.NormalizeListID(listID)
	list, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if list == nil || list.Deleted() {
		return nil, fmt.Errorf("list %s not found", listID)
	}
	if !list.CanShare(s.principal()) {
		return nil, fmt.Errorf("you lack permission to share %q", list.Name)
	}

	user, err := s.remote.LookupUserByEmail(ctx, targetEmail)
	if err != nil {
		if errors.Is(err, remote.ErrUserNotFound) {
			return nil, fmt.Errorf("no account found for %s", targetEmail)
		}
		if errors.Is(err, remote.ErrUnavailable) {
			return nil, errors.New("server unreachable, try sharing again later")
		}
		return nil, err
	}
	if list.IsMember(user.ID) {
		return nil, fmt.Errorf("%s is already a member of %q", targetEmail, list.Name)
	}

	member := models.Member{
		PrincipalID: user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Role:        models.RoleMember,
		JoinedAt:    time.Now(),
		Permissions: models.DefaultMemberPermissions(),
	}
	if err := s.remote.AddMember(ctx, id, member); err != nil {
		switch {
		case errors.Is(err, remote.ErrAlreadyMember):
			return nil, fmt.Errorf("%s is already a member of %q", targetEmail, list.Name)
		case errors.Is(err, remote.ErrPermissionDenied):
			return nil, fmt.Errorf("you lack permission to share %q", list.Name)
		case errors.Is(err, remote.ErrUnavailable):
			return nil, errors.New("server unreachable, try sharing again later")
		default:
			return nil, err
		}
	}

	updated := list.Clone()
	updated.Members[member.PrincipalID] = member
	updated.UpdatedAt = member.JoinedAt
	if err := s.store.Upsert(updated, models.OriginMerge); err != nil {
		return nil, err
	}
	return &ShareOutcome{ListID: id, Member: member}, nil
}

// Members returns the membership of a list.
func (s *Service) Members(listID string) ([]models.Member, error) {
	list, err := s.Get(listID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Member, 0, len(list.Members))
	for _, m := range list.Members {
		out = append(out, m)
	}
	return out, nil
}
