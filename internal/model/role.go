package model

import "fmt"

// Role is a member's role inside a single community.
type Role string

// Community roles, highest privilege first.
const (
	RoleOwner     Role = "owner"
	RoleOrganizer Role = "organizer"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Roles lists every community role from highest to lowest privilege.
var Roles = []Role{RoleOwner, RoleOrganizer, RoleModerator, RoleMember}

// Rank orders roles: owner=4 … member=1. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleOrganizer:
		return 3
	case RoleModerator:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// Valid reports whether r is one of the four community roles.
func (r Role) Valid() bool { return r.Rank() > 0 }

// ParseRole converts s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// RestrictionType distinguishes bans from mutes.
type RestrictionType string

const (
	RestrictionBan  RestrictionType = "ban"
	RestrictionMute RestrictionType = "mute"
)

// Valid reports whether t is a known restriction type.
func (t RestrictionType) Valid() bool {
	return t == RestrictionBan || t == RestrictionMute
}

// TransferStatus is the state of an ownership transfer.
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferRejected TransferStatus = "rejected"
	TransferCanceled TransferStatus = "canceled"
	TransferExpired  TransferStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferAccepted, TransferRejected, TransferCanceled, TransferExpired:
		return true
	}
	return false
}

// JoinRequestStatus is the state of a join request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)
