package lists

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/listling/listling/internal/auth"
	"github.com/listling/listling/internal/models"
	"github.com/listling/listling/internal/remote"
	"github.com/listling/listling/internal/store"
)

// shareRemote fakes the two remote calls sharing needs.
type shareRemote struct {
	remote.Layer // panics on anything the service should not call

	mu      sync.Mutex
	users   map[string]remote.User
	added   map[string][]models.Member
	lookErr error
	addErr  error
}

func newShareRemote() *shareRemote {
	return &shareRemote{
		users: make(map[string]remote.User),
		added: make(map[string][]models.Member),
	}
}

func (f *shareRemote) LookupUserByEmail(ctx context.Context, email string) (*remote.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookErr != nil {
		return nil, f.lookErr
	}
	u, ok := f.users[email]
	if !ok {
		return nil, remote.ErrUserNotFound
	}
	return &u, nil
}

func (f *shareRemote) AddMember(ctx context.Context, listID string, member models.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added[listID] = append(f.added[listID], member)
	return nil
}

func setup(t *testing.T, principal string) (*Service, *store.Store, *shareRemote) {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	f := newShareRemote()
	svc := New(s, f, auth.NewStatic(principal), "dev-test")
	return svc, s, f
}

func mustCreate(t *testing.T, svc *Service, name string) *models.List {
	t.Helper()
	list, err := svc.CreateList(name, "", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	return list
}

func TestCreateListSetsOwnerMembership(t *testing.T) {
	svc, _, _ := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")

	if list.OwnerID != "u1" {
		t.Errorf("owner = %q, want u1", list.OwnerID)
	}
	m, ok := list.Members["u1"]
	if !ok {
		t.Fatal("owner missing from members")
	}
	if m.Role != models.RoleOwner {
		t.Errorf("owner role = %v", m.Role)
	}
	if !m.EffectivePermissions().Delete {
		t.Error("owner must hold delete permission")
	}
}

func TestAnonymousPrincipalIsDeviceScoped(t *testing.T) {
	svc, _, _ := setup(t, "")
	list := mustCreate(t, svc, "Groceries")
	if list.OwnerID != "anon-dev-test" {
		t.Errorf("anonymous owner = %q, want device-scoped id", list.OwnerID)
	}
}

func TestCreateRequiresName(t *testing.T) {
	svc, _, _ := setup(t, "u1")
	if _, err := svc.CreateList("", "", ""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestMutationsCompleteLocallyAndQueue(t *testing.T) {
	svc, s, _ := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")

	item, err := svc.AddItem(list.ID, "Milk", "2")
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := svc.SetItemCompleted(list.ID, item.ID, true); err != nil {
		t.Fatalf("complete item: %v", err)
	}
	if err := svc.Rename(list.ID, "Weekend groceries"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	got, err := svc.Get(list.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Weekend groceries" {
		t.Errorf("name = %q", got.Name)
	}
	it := got.Item(item.ID)
	if it == nil || !it.Completed || it.CompletedAt == nil {
		t.Errorf("item completion not recorded: %+v", it)
	}

	// Every mutation is a user-origin write, so changes are queued for sync.
	n, err := s.PendingCount()
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if n != 1 {
		t.Errorf("pending lists = %d, want 1", n)
	}
}

func TestDeleteItemTombstonesInsideDocument(t *testing.T) {
	svc, _, _ := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")
	item, err := svc.AddItem(list.ID, "Milk", "")
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := svc.DeleteItem(list.ID, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	got, err := svc.Get(list.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// The item stays in the document as a tombstone and is hidden from the
	// active view, so a concurrent merge cannot resurrect it.
	if got.Item(item.ID) == nil {
		t.Fatal("item tombstone dropped from document")
	}
	if !got.Item(item.ID).Deleted() {
		t.Fatal("item not tombstoned")
	}
	if len(got.ActiveItems()) != 0 {
		t.Errorf("active items = %d, want 0", len(got.ActiveItems()))
	}

	if err := svc.DeleteItem(list.ID, item.ID); err == nil {
		t.Fatal("expected error deleting an already deleted item")
	}
}

func TestWritesDeniedToNonMembers(t *testing.T) {
	svc, s, _ := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")

	outsider := New(s, newShareRemote(), auth.NewStatic("u2"), "dev-other")
	if err := outsider.Rename(list.ID, "Hijacked"); err == nil {
		t.Fatal("non-member rename succeeded")
	}
	if _, err := outsider.AddItem(list.ID, "Milk", ""); err == nil {
		t.Fatal("non-member add succeeded")
	}
}

func TestDeleteListRequiresDeletePermission(t *testing.T) {
	svc, s, f := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")
	f.users["bob@example.com"] = remote.User{ID: "u2", Email: "bob@example.com", DisplayName: "Bob"}
	if _, err := svc.ShareList(context.Background(), list.ID, "bob@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}

	// Default member permissions exclude delete.
	memberSvc := New(s, newShareRemote(), auth.NewStatic("u2"), "dev-other")
	if err := memberSvc.DeleteList(list.ID); err == nil {
		t.Fatal("member without delete permission deleted the list")
	}
	// But a member can write.
	if err := memberSvc.Rename(list.ID, "Shared groceries"); err != nil {
		t.Fatalf("member rename: %v", err)
	}

	if err := svc.DeleteList(list.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := svc.Get(list.ID); err == nil {
		t.Fatal("tombstoned list still visible")
	}
}

func TestShareListAddsMemberWithoutReQueuing(t *testing.T) {
	svc, s, f := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")
	f.users["bob@example.com"] = remote.User{ID: "u2", Email: "bob@example.com", DisplayName: "Bob"}

	before, err := s.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}

	outcome, err := svc.ShareList(context.Background(), list.ID, "bob@example.com")
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if outcome.Member.PrincipalID != "u2" || outcome.Member.Role != models.RoleMember {
		t.Errorf("unexpected member: %+v", outcome.Member)
	}
	if len(f.added[list.ID]) != 1 {
		t.Fatalf("remote AddMember calls = %d, want 1", len(f.added[list.ID]))
	}

	got, err := svc.Get(list.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsMember("u2") {
		t.Error("member missing from local copy")
	}

	// The membership write is already remote-side; it must not be queued
	// for a second upload.
	after, err := s.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("share queued an upload: %d -> %d pending", len(before), len(after))
	}
}

func TestShareListFriendlyErrors(t *testing.T) {
	svc, _, f := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")

	_, err := svc.ShareList(context.Background(), list.ID, "ghost@example.com")
	if err == nil || !strings.Contains(err.Error(), "no account found") {
		t.Errorf("unknown email error = %v", err)
	}

	f.users["bob@example.com"] = remote.User{ID: "u2", Email: "bob@example.com"}
	f.lookErr = remote.ErrUnavailable
	_, err = svc.ShareList(context.Background(), list.ID, "bob@example.com")
	if err == nil || !strings.Contains(err.Error(), "server unreachable") {
		t.Errorf("unavailable error = %v", err)
	}
	f.lookErr = nil

	f.addErr = remote.ErrAlreadyMember
	_, err = svc.ShareList(context.Background(), list.ID, "bob@example.com")
	if err == nil || !strings.Contains(err.Error(), "already a member") {
		t.Errorf("already-member error = %v", err)
	}
	f.addErr = nil

	if _, err := svc.ShareList(context.Background(), list.ID, "bob@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}
	_, err = svc.ShareList(context.Background(), list.ID, "bob@example.com")
	if err == nil || !strings.Contains(err.Error(), "already a member") {
		t.Errorf("duplicate share error = %v", err)
	}
}

func TestShareRequiresSharePermission(t *testing.T) {
	svc, s, f := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")
	f.users["bob@example.com"] = remote.User{ID: "u2", Email: "bob@example.com"}
	if _, err := svc.ShareList(context.Background(), list.ID, "bob@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}

	// u2 holds default member permissions, which include share. Strip it.
	got, err := s.Get(list.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	m := got.Members["u2"]
	m.Permissions.Share = false
	got.Members["u2"] = m
	if err := s.Upsert(*got, models.OriginMerge); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	memberFake := newShareRemote()
	memberFake.users["carol@example.com"] = remote.User{ID: "u3", Email: "carol@example.com"}
	memberSvc := New(s, memberFake, auth.NewStatic("u2"), "dev-other")
	if _, err := memberSvc.ShareList(context.Background(), list.ID, "carol@example.com"); err == nil {
		t.Fatal("share without permission succeeded")
	}
}

func TestMembersListsMembership(t *testing.T) {
	svc, _, f := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")
	f.users["bob@example.com"] = remote.User{ID: "u2", Email: "bob@example.com"}
	if _, err := svc.ShareList(context.Background(), list.ID, "bob@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}

	members, err := svc.Members(list.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}
}

func TestUpdatedAtAdvancesOnMutation(t *testing.T) {
	svc, _, _ := setup(t, "u1")
	list := mustCreate(t, svc, "Groceries")
	created := list.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	if err := svc.Rename(list.ID, "Weekday groceries"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, err := svc.Get(list.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("updated_at did not advance: %v -> %v", created, got.UpdatedAt)
	}
}
