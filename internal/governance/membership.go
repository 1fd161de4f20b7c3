package governance

import (
	"context"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/policy"
	"gorm.io/gorm"
)

// UpsertMember sets userID's role in the community in its own transaction.
func (s *Service) UpsertMember(ctx context.Context, communityID, userID string, role model.Role) (_ *model.Membership, err error) {
	ctx, end := s.begin(ctx, "UpsertMember")
	defer end(&err)

	var m *model.Membership
	err = s.tx(ctx, "upsert member", func(tx *gorm.DB) error {
		if _, err := loadCommunity(tx, communityID); err != nil {
			return err
		}
		m, err = s.members.Upsert(ctx, tx, communityID, userID, role)
		return err
	})
	return m, err
}

// GetRole returns userID's role; ok is false for non-members.
func (s *Service) GetRole(ctx context.Context, communityID, userID string) (_ model.Role, ok bool, err error) {
	ctx, end := s.begin(ctx, "GetRole")
	defer end(&err)

	role, ok, err := s.members.Role(ctx, s.db, communityID, userID)
	return role, ok, storeErr("get role", err)
}

// HasAnyRole reports whether userID holds any of roles in the community.
func (s *Service) HasAnyRole(ctx context.Context, communityID, userID string, roles ...model.Role) (_ bool, err error) {
	ctx, end := s.begin(ctx, "HasAnyRole")
	defer end(&err)

	ok, err := s.members.HasAnyRole(ctx, s.db, communityID, userID, roles...)
	return ok, storeErr("has any role", err)
}

// ListMembers returns the community's members, highest role first.
func (s *Service) ListMembers(ctx context.Context, communityID string) (_ []model.Membership, err error) {
	ctx, end := s.begin(ctx, "ListMembers")
	defer end(&err)

	if _, err := loadCommunity(s.db.WithContext(ctx), communityID); err != nil {
		return nil, storeErr("list members", err)
	}
	out, err := s.members.List(ctx, s.db, communityID)
	return out, storeErr("list members", err)
}

// Join adds userID to a public community as a member. Private communities
// go through join requests instead.
func (s *Service) Join(ctx context.Context, communityID, userID string) (_ *model.Membership, err error) {
	ctx, end := s.begin(ctx, "Join")
	defer end(&err)

	var m *model.Membership
	err = s.tx(ctx, "join community", func(tx *gorm.DB) error {
		c, err := loadCommunity(tx, communityID)
		if err != nil {
			return err
		}
		if !c.IsActive {
			return newErr(KindInvalidState, ReasonCommunityInactive)
		}
		if c.IsPrivate {
			return newErr(KindInvalidState, ReasonCommunityPrivate)
		}
		if err := s.admissible(ctx, tx, communityID, userID); err != nil {
			return err
		}
		m, err = s.members.Upsert(ctx, tx, communityID, userID, model.RoleMember)
		return err
	})
	return m, err
}

// admissible rejects current members and banned users.
func (s *Service) admissible(ctx context.Context, tx *gorm.DB, communityID, userID string) error {
	if _, ok, err := s.members.Role(ctx, tx, communityID, userID); err != nil {
		return err
	} else if ok {
		return newErr(KindConflict, ReasonAlreadyMember)
	}
	banned, err := s.restrictions.IsActiveBan(ctx, tx, communityID, userID, s.now())
	if err != nil {
		return err
	}
	if banned {
		return newErr(KindForbidden, ReasonBanned)
	}
	return nil
}

// Leave removes userID from the community. The owner must transfer
// ownership first.
func (s *Service) Leave(ctx context.Context, communityID, userID string) (err error) {
	ctx, end := s.begin(ctx, "Leave")
	defer end(&err)

	return s.tx(ctx, "leave community", func(tx *gorm.DB) error {
		role, ok, err := s.members.Role(ctx, forUpdate(tx), communityID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(KindNotFound, ReasonMemberNotFound)
		}
		if role == model.RoleOwner {
			return newErr(KindInvalidState, ReasonOwnerCannotLeave)
		}
		_, err = s.members.Remove(ctx, tx, communityID, userID)
		return err
	})
}

// UpdateMemberRole changes targetID's role. The actor must outrank the
// target's current role and be allowed to grant the new one; nobody changes
// their own role and nobody grants owner this way.
func (s *Service) UpdateMemberRole(ctx context.Context, communityID, actorID, targetID string, role model.Role) (_ *model.Membership, err error) {
	ctx, end := s.begin(ctx, "UpdateMemberRole")
	defer end(&err)

	if !role.Valid() {
		return nil, newErr(KindInvalidState, ReasonInvalidRole)
	}
	if actorID == targetID {
		return nil, newErr(KindForbidden, ReasonOwnChange)
	}

	var previous model.Role
	var m *model.Membership
	err = s.tx(ctx, "update member role", func(tx *gorm.DB) error {
		if _, err := loadCommunity(tx, communityID); err != nil {
			return err
		}
		actorRole, err := s.requireRole(ctx, tx, communityID, actorID, model.RoleModerator)
		if err != nil {
			return err
		}
		current, ok, err := s.members.Role(ctx, forUpdate(tx), communityID, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(KindNotFound, ReasonMemberNotFound)
		}
		if !policy.Outranks(actorRole, current) || !policy.CanAssign(actorRole, role) {
			return newErr(KindForbidden, ReasonInsufficientRole)
		}
		previous = current
		m, err = s.members.Upsert(ctx, tx, communityID, targetID, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, communityID, actorID, audit.ActionMemberRoleUpdated,
		model.JSONMap{"user_id": targetID, "role": string(previous)},
		model.JSONMap{"user_id": targetID, "role": string(role)}, nil)
	return m, nil
}

// RemoveMember expels targetID. The actor must be at least a moderator and
// outrank the target.
func (s *Service) RemoveMember(ctx context.Context, communityID, actorID, targetID string) (err error) {
	ctx, end := s.begin(ctx, "RemoveMember")
	defer end(&err)

	if actorID == targetID {
		return newErr(KindForbidden, ReasonSelfRemoval)
	}

	var previous model.Role
	err = s.tx(ctx, "remove member", func(tx *gorm.DB) error {
		actorRole, err := s.requireRole(ctx, tx, communityID, actorID, model.RoleModerator)
		if err != nil {
			return err
		}
		current, ok, err := s.members.Role(ctx, forUpdate(tx), communityID, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(KindNotFound, ReasonMemberNotFound)
		}
		if !policy.Outranks(actorRole, current) {
			return newErr(KindForbidden, ReasonInsufficientRole)
		}
		previous = current
		_, err = s.members.Remove(ctx, tx, communityID, targetID)
		return err
	})
	if err != nil {
		return err
	}
	s.record(ctx, communityID, actorID, audit.ActionMemberRemoved,
		model.JSONMap{"user_id": targetID, "role": string(previous)}, nil, nil)
	return nil
}
