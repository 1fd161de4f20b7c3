// Package policy encodes the community role hierarchy: which role may assign
// which other role and who may restrict whom. Every function is pure.
package policy

import (
	"slices"

	"github.com/d9705996/commune/internal/model"
)

// assignable lists, per actor role, the roles it may hand out. Nobody assigns
// owner: that role only moves through an ownership transfer.
var assignable = map[model.Role][]model.Role{
	model.RoleOwner:     {model.RoleOrganizer, model.RoleModerator, model.RoleMember},
	model.RoleOrganizer: {model.RoleModerator, model.RoleMember},
	model.RoleModerator: {model.RoleMember},
	model.RoleMember:    nil,
}

// restrictable lists, per actor role, the roles it may ban or mute.
var restrictable = map[model.Role][]model.Role{
	model.RoleOwner:     {model.RoleOrganizer, model.RoleModerator, model.RoleMember},
	model.RoleOrganizer: {model.RoleModerator, model.RoleMember},
	model.RoleModerator: {model.RoleMember},
	model.RoleMember:    nil,
}

// Outranks reports whether a sits strictly above b in the hierarchy.
func Outranks(a, b model.Role) bool {
	return a.Rank() > b.Rank()
}

// AtLeast reports whether r is min or higher.
func AtLeast(r, min model.Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// CanAssign reports whether actor may set target as someone's role.
func CanAssign(actor, target model.Role) bool {
	return slices.Contains(assignable[actor], target)
}

// CanRestrict reports whether actor may ban or mute a member holding target.
// Owners are never restrictable.
func CanRestrict(actor, target model.Role) bool {
	return slices.Contains(restrictable[actor], target)
}

// AssignableRoles returns the roles actor may hand out, highest first.
func AssignableRoles(actor model.Role) []model.Role {
	return slices.Clone(assignable[actor])
}

