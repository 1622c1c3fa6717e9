package merge

import (
	"testing"
	"time"

	"github.com/listling/listling/internal/models"
)

var (
	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(1 * time.Minute)
	t2 = t0.Add(2 * time.Minute)
)

func ownerMembers(owner string, joined time.Time) map[string]models.Member {
	return map[string]models.Member{
		owner: {
			PrincipalID: owner,
			Role:        models.RoleOwner,
			JoinedAt:    joined,
			Permissions: models.OwnerPermissions(),
		},
	}
}

func baseList(updated time.Time, items ...models.Item) models.List {
	return models.List{
		ID:        "ls-merge1",
		Name:      "Groceries",
		OwnerID:   "u1",
		CreatedAt: t0,
		UpdatedAt: updated,
		Items:     items,
		Members:   ownerMembers("u1", t0),
	}
}

func item(id, name string, updated time.Time) models.Item {
	return models.Item{ID: id, Name: name, CreatedAt: t0, UpdatedAt: updated}
}

func TestScalarNewerSideWins(t *testing.T) {
	local := baseList(t1)
	local.Name = "Weekend shop"

	remote := baseList(t2)
	remote.Name = "Groceries v2"
	remote.Color = "green"

	got := Lists(local, remote)
	if got.Name != "Groceries v2" {
		t.Errorf("expected remote name to win, got %q", got.Name)
	}
	if got.Color != "green" {
		t.Errorf("expected remote color to win, got %q", got.Color)
	}
	if !got.UpdatedAt.Equal(t2) {
		t.Errorf("expected updated_at %v, got %v", t2, got.UpdatedAt)
	}
}

func TestScalarTieKeepsLocal(t *testing.T) {
	local := baseList(t1)
	local.Name = "Local name"
	remote := baseList(t1)
	remote.Name = "Remote name"

	got := Lists(local, remote)
	if got.Name != "Local name" {
		t.Errorf("tie must keep local, got %q", got.Name)
	}
}

// The documented example: remote completed milk and added bread; the merge
// keeps both changes and the list name.
func TestExampleScenario(t *testing.T) {
	milk := item("it-1", "Milk", t1)
	local := baseList(t1, milk)

	milkDone := item("it-1", "Milk", t2)
	milkDone.Completed = true
	milkDone.CompletedAt = &t2
	bread := item("it-2", "Bread", t2)
	remote := baseList(t1, milkDone, bread)

	got := Lists(local, remote)
	if got.Name != "Groceries" {
		t.Errorf("name changed unexpectedly: %q", got.Name)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	i1 := got.Item("it-1")
	if i1 == nil || !i1.Completed || i1.CompletedAt == nil {
		t.Errorf("it-1 should be completed from remote: %+v", i1)
	}
	if got.Item("it-2") == nil {
		t.Error("it-2 missing from union")
	}
	if !got.UpdatedAt.Equal(t2) {
		t.Errorf("expected updated_at %v, got %v", t2, got.UpdatedAt)
	}
}

// Local renames A, remote adds C with older copies of A and B: the merge
// keeps the rename, keeps B, and gains C.
func TestDisjointItemEditsLoseNothing(t *testing.T) {
	renamedA := item("it-a", "Oat milk", t2)
	local := baseList(t2, renamedA, item("it-b", "Bread", t0))

	remote := baseList(t1,
		item("it-a", "Milk", t1),
		item("it-b", "Bread", t0),
		item("it-c", "Cheese", t1),
	)

	got := Lists(local, remote)
	if len(got.Items) != 3 {
		t.Fatalf("expected 3 items, got %d: %+v", len(got.Items), got.Items)
	}
	if a := got.Item("it-a"); a == nil || a.Name != "Oat milk" {
		t.Errorf("local rename lost: %+v", a)
	}
	if b := got.Item("it-b"); b == nil || b.Name != "Bread" {
		t.Errorf("it-b lost: %+v", b)
	}
	if got.Item("it-c") == nil {
		t.Error("remote add it-c lost")
	}
}

func TestItemTieKeepsLocal(t *testing.T) {
	local := baseList(t1, item("it-x", "Local copy", t1))
	remote := baseList(t1, item("it-x", "Remote copy", t1))

	got := Lists(local, remote)
	if x := got.Item("it-x"); x == nil || x.Name != "Local copy" {
		t.Errorf("item tie must keep local, got %+v", x)
	}
}

func TestItemTombstoneSurvivesUnion(t *testing.T) {
	dead := item("it-d", "Old thing", t2)
	dead.DeletedAt = &t2
	local := baseList(t2, dead)
	remote := baseList(t1, item("it-d", "Old thing", t1))

	got := Lists(local, remote)
	d := got.Item("it-d")
	if d == nil {
		t.Fatal("tombstoned item dropped from union")
	}
	if d.DeletedAt == nil {
		t.Error("newer tombstone lost to older live copy")
	}
}

// Re-merging an already-merged result against the same remote is a no-op.
func TestMergeIdempotent(t *testing.T) {
	local := baseList(t2, item("it-a", "Oat milk", t2))
	remote := baseList(t1, item("it-a", "Milk", t1), item("it-c", "Cheese", t1))

	once := Lists(local, remote)
	twice := Lists(once, remote)
	if !Equal(once, twice) {
		t.Errorf("merge not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestAbsentSideAlwaysLoses(t *testing.T) {
	present := baseList(t1, item("it-a", "Milk", t1))

	got := Lists(present, Absent(present.ID))
	if !Equal(got, present) {
		t.Errorf("present local should win over absent remote: %+v", got)
	}

	got = Lists(Absent(present.ID), present)
	if got.Name != present.Name || len(got.Items) != 1 {
		t.Errorf("present remote should win over absent local: %+v", got)
	}
}

func TestMembersMergeAsUnit(t *testing.T) {
	local := baseList(t1)
	remote := baseList(t2)
	remote.Members = ownerMembers("u1", t0)
	remote.Members["u2"] = models.Member{
		PrincipalID: "u2",
		Email:       "friend@example.com",
		Role:        models.RoleMember,
		JoinedAt:    t2,
		Permissions: models.DefaultMemberPermissions(),
	}

	got := Lists(local, remote)
	if len(got.Members) != 2 {
		t.Fatalf("newer members map should win whole: %+v", got.Members)
	}
	if _, ok := got.Members["u2"]; !ok {
		t.Error("u2 missing after members merge")
	}
}

func TestEqualDetectsDifferences(t *testing.T) {
	a := baseList(t1, item("it-a", "Milk", t1))
	if !Equal(a, a.Clone()) {
		t.Error("clone should compare equal")
	}

	b := a.Clone()
	b.Items[0].Completed = true
	b.Items[0].CompletedAt = &t2
	if Equal(a, b) {
		t.Error("item completion change not detected")
	}

	c := a.Clone()
	c.DeletedAt = &t2
	if Equal(a, c) {
		t.Error("tombstone change not detected")
	}
}

func TestInputsAreNotMutated(t *testing.T) {
	local := baseList(t1, item("it-a", "Milk", t1))
	remote := baseList(t2, item("it-a", "Milk", t2), item("it-b", "Bread", t2))

	got := Lists(local, remote)
	got.Items[0].Name = "changed"
	got.Members["u9"] = models.Member{PrincipalID: "u9"}

	if local.Items[0].Name != "Milk" {
		t.Error("merge mutated local input")
	}
	if len(remote.Members) != 1 {
		t.Error("merge mutated remote input")
	}
}
