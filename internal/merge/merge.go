// Package merge holds the pure conflict-resolution rules for lists.
//
// Resolution is granular: scalar fields resolve as a unit by updated_at,
// items resolve individually by id. A coarse whole-record last-write-wins
// would let a local item toggle clobber a concurrent remote rename, so the
// two halves are decided independently.
//
// "Local" and "remote" have fixed roles: ties keep the local side. That
// tie-break is a documented stable rule, not "last write observed", so
// repeated merges of the same inputs always produce the same output.
package merge

import (
	"time"

	"github.com/listling/listling/internal/models"
)

// Lists merges a local and a remote version of the same list.
// Both inputs are left untouched; the result is a fresh deep copy.
//
// Rules:
//   - scalar fields (name, description, color, owner, members map, list
//     tombstone) follow whichever side has the strictly greater updated_at;
//     ties keep local
//   - the item collection is a keyed union; items present on both sides
//     resolve individually by item updated_at, ties keep local
//   - result updated_at is the max of both sides
func Lists(local, remote models.List) models.List {
	base := local
	if remote.UpdatedAt.After(local.UpdatedAt) {
		base = remote
	}
	out := base.Clone()
	out.Items = Items(local.Items, remote.Items)
	out.UpdatedAt = maxTime(local.UpdatedAt, remote.UpdatedAt)
	return out
}

// Items merges two item collections by id union.
// Items present on exactly one side are kept as-is (tombstoned items
// included, so deletions survive the union). Items present on both sides
// resolve by updated_at with a prefer-local tie-break.
// Order: local order first, then remote-only items in remote order.
func Items(local, remote []models.Item) []models.Item {
	remoteByID := make(map[string]models.Item, len(remote))
	for _, it := range remote {
		remoteByID[it.ID] = it
	}

	out := make([]models.Item, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local))
	for _, lit := range local {
		seen[lit.ID] = true
		rit, ok := remoteByID[lit.ID]
		if !ok {
			out = append(out, lit)
			continue
		}
		if rit.UpdatedAt.After(lit.UpdatedAt) {
			out = append(out, rit)
		} else {
			out = append(out, lit)
		}
	}
	for _, rit := range remote {
		if !seen[rit.ID] {
			out = append(out, rit)
		}
	}
	return out
}

// Absent substitutes a missing side during initial sync: zero timestamps
// guarantee the present side wins every scalar comparison while the item
// union still applies.
func Absent(id string) models.List {
	return models.List{ID: id}
}

// Equal reports whether two lists are identical for sync purposes.
// The engine uses it to turn no-op merges into no writes, which together
// with origin tagging bounds the local/remote feedback loop.
func Equal(a, b models.List) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Description != b.Description ||
		a.Color != b.Color || a.OwnerID != b.OwnerID {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if !timePtrEqual(a.DeletedAt, b.DeletedAt) {
		return false
	}
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if !itemEqual(a.Items[i], b.Items[i]) {
			return false
		}
	}
	if len(a.Members) != len(b.Members) {
		return false
	}
	for k, ma := range a.Members {
		mb, ok := b.Members[k]
		if !ok || !memberEqual(ma, mb) {
			return false
		}
	}
	return true
}

func itemEqual(a, b models.Item) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Quantity == b.Quantity &&
		a.Completed == b.Completed &&
		a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt) &&
		timePtrEqual(a.CompletedAt, b.CompletedAt) &&
		timePtrEqual(a.DeletedAt, b.DeletedAt)
}

func memberEqual(a, b models.Member) bool {
	return a.PrincipalID == b.PrincipalID && a.DisplayName == b.DisplayName &&
		a.Email == b.Email && a.Role == b.Role &&
		a.JoinedAt.Equal(b.JoinedAt) && a.Permissions == b.Permissions
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
