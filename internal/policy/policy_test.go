package policy_test

import (
	"testing"

	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/policy"
	"github.com/stretchr/testify/assert"
)

func TestCanAssign_Table(t *testing.T) {
	want := map[model.Role]map[model.Role]bool{
		model.RoleOwner:     {model.RoleOwner: false, model.RoleOrganizer: true, model.RoleModerator: true, model.RoleMember: true},
		model.RoleOrganizer: {model.RoleOwner: false, model.RoleOrganizer: false, model.RoleModerator: true, model.RoleMember: true},
		model.RoleModerator: {model.RoleOwner: false, model.RoleOrganizer: false, model.RoleModerator: false, model.RoleMember: true},
		model.RoleMember:    {model.RoleOwner: false, model.RoleOrganizer: false, model.RoleModerator: false, model.RoleMember: false},
	}
	for _, actor := range model.Roles {
		for _, target := range model.Roles {
			assert.Equal(t, want[actor][target], policy.CanAssign(actor, target), "CanAssign(%s, %s)", actor, target)
		}
	}
}

func TestCanRestrict_Table(t *testing.T) {
	want := map[model.Role]map[model.Role]bool{
		model.RoleOwner:     {model.RoleOwner: false, model.RoleOrganizer: true, model.RoleModerator: true, model.RoleMember: true},
		model.RoleOrganizer: {model.RoleOwner: false, model.RoleOrganizer: false, model.RoleModerator: true, model.RoleMember: true},
		model.RoleModerator: {model.RoleOwner: false, model.RoleOrganizer: false, model.RoleModerator: false, model.RoleMember: true},
		model.RoleMember:    {model.RoleOwner: false, model.RoleOrganizer: false, model.RoleModerator: false, model.RoleMember: false},
	}
	for _, actor := range model.Roles {
		for _, target := range model.Roles {
			assert.Equal(t, want[actor][target], policy.CanRestrict(actor, target), "CanRestrict(%s, %s)", actor, target)
		}
	}
}

func TestNoRoleCanRestrictOwner(t *testing.T) {
	for _, actor := range model.Roles {
		assert.False(t, policy.CanRestrict(actor, model.RoleOwner))
	}
}

func TestNoRoleAssignsAboveItsOwnCeiling(t *testing.T) {
	for _, actor := range model.Roles {
		for _, target := range policy.AssignableRoles(actor) {
			assert.True(t, policy.Outranks(actor, target), "%s assigns %s", actor, target)
		}
	}
}

func TestUnknownRoleHasNoPowers(t *testing.T) {
	ghost := model.Role("admin")
	for _, r := range model.Roles {
		assert.False(t, policy.CanAssign(ghost, r))
		assert.False(t, policy.CanRestrict(ghost, r))
	}
	assert.False(t, policy.AtLeast(ghost, model.RoleMember))
}

func TestOutranksAndAtLeast(t *testing.T) {
	assert.True(t, policy.Outranks(model.RoleOwner, model.RoleOrganizer))
	assert.False(t, policy.Outranks(model.RoleModerator, model.RoleModerator))
	assert.True(t, policy.AtLeast(model.RoleModerator, model.RoleModerator))
	assert.False(t, policy.AtLeast(model.RoleMember, model.RoleModerator))
}

func TestAssignableRoles_ReturnsCopy(t *testing.T) {
	roles := policy.AssignableRoles(model.RoleOwner)
	roles[0] = model.RoleMember
	assert.Equal(t, model.RoleOrganizer, policy.AssignableRoles(model.RoleOwner)[0])
}
