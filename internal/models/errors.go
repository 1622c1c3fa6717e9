package models

import "errors"

// Structural invariant violations surfaced by Validate.
var (
	ErrOwnerNotMember      = errors.New("owner must appear in members with the owner role")
	ErrMultipleOwners      = errors.New("exactly one owner per list")
	ErrCompletedAtMismatch = errors.New("completed_at must be set iff completed is true")
)
