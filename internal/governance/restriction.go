package governance

import (
	"context"
	"time"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/policy"
	"gorm.io/gorm"
)

// RestrictInput describes a ban or mute. A nil ExpiresAt is permanent.
type RestrictInput struct {
	CommunityID string
	UserID      string
	Type        model.RestrictionType
	Reason      string
	ExpiresAt   *time.Time
}

// Restrict bans or mutes a member. A ban also removes the membership in the
// same transaction; a mute leaves it in place.
func (s *Service) Restrict(ctx context.Context, actorID string, in RestrictInput) (_ *model.Restriction, err error) {
	ctx, end := s.begin(ctx, "Restrict")
	defer end(&err)

	if !in.Type.Valid() {
		return nil, newErr(KindInvalidState, ReasonInvalidType)
	}
	if actorID == in.UserID {
		return nil, newErr(KindForbidden, ReasonSelfRestriction)
	}
	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, newErr(KindInvalidState, ReasonExpiryNotInFuture)
	}

	var targetRole model.Role
	r := &model.Restriction{
		CommunityID: in.CommunityID,
		UserID:      in.UserID,
		Type:        in.Type,
		Reason:      in.Reason,
		AppliedBy:   actorID,
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		r.ExpiresAt = &exp
	}

	err = s.tx(ctx, "restrict member", func(tx *gorm.DB) error {
		if _, err := loadCommunity(tx, in.CommunityID); err != nil {
			return err
		}
		actorRole, err := s.requireRole(ctx, tx, in.CommunityID, actorID, model.RoleModerator)
		if err != nil {
			return err
		}
		role, ok, err := s.members.Role(ctx, forUpdate(tx), in.CommunityID, in.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(KindNotFound, ReasonMemberNotFound)
		}
		if role == model.RoleOwner {
			return newErr(KindForbidden, ReasonOwnerNotRestricable)
		}
		if !policy.CanRestrict(actorRole, role) {
			return newErr(KindForbidden, ReasonInsufficientRole)
		}
		targetRole = role
		if err := s.restrictions.Create(ctx, tx, r); err != nil {
			return err
		}
		if in.Type == model.RestrictionBan {
			_, err = s.members.Remove(ctx, tx, in.CommunityID, in.UserID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	next := model.JSONMap{"restriction_id": r.ID, "user_id": in.UserID, "type": string(in.Type)}
	if r.ExpiresAt != nil {
		next["expires_at"] = r.ExpiresAt.Format(time.RFC3339)
	}
	s.record(ctx, in.CommunityID, actorID, audit.ActionRestrictionCreated,
		model.JSONMap{"user_id": in.UserID, "role": string(targetRole)}, next,
		model.JSONMap{"reason": in.Reason})
	return r, nil
}

// IsActiveBan reports whether userID is currently banned from the community.
func (s *Service) IsActiveBan(ctx context.Context, communityID, userID string) (_ bool, err error) {
	ctx, end := s.begin(ctx, "IsActiveBan")
	defer end(&err)

	banned, err := s.restrictions.IsActiveBan(ctx, s.db, communityID, userID, s.now())
	return banned, storeErr("is active ban", err)
}

// ActiveRestrictions returns userID's restrictions currently in force.
func (s *Service) ActiveRestrictions(ctx context.Context, communityID, userID string) (_ []model.Restriction, err error) {
	ctx, end := s.begin(ctx, "ActiveRestrictions")
	defer end(&err)

	out, err := s.restrictions.ListActive(ctx, s.db, communityID, userID, s.now())
	return out, storeErr("active restrictions", err)
}

// ListRestrictions returns the community's moderation history. Moderators
// and above only.
func (s *Service) ListRestrictions(ctx context.Context, communityID, actorID string) (_ []model.Restriction, err error) {
	ctx, end := s.begin(ctx, "ListRestrictions")
	defer end(&err)

	if _, err := s.requireRole(ctx, s.db.WithContext(ctx), communityID, actorID, model.RoleModerator); err != nil {
		return nil, storeErr("list restrictions", err)
	}
	out, err := s.restrictions.List(ctx, s.db, communityID)
	return out, storeErr("list restrictions", err)
}

// LiftRestriction ends an active restriction now. The row stays as history.
// A lifted ban does not restore the membership.
func (s *Service) LiftRestriction(ctx context.Context, actorID, restrictionID string) (_ *model.Restriction, err error) {
	ctx, end := s.begin(ctx, "LiftRestriction")
	defer end(&err)

	now := s.now()
	var r *model.Restriction
	err = s.tx(ctx, "lift restriction", func(tx *gorm.DB) error {
		var err error
		if r, err = s.restrictions.Get(ctx, tx, restrictionID); err != nil {
			return err
		}
		if _, err := s.requireRole(ctx, tx, r.CommunityID, actorID, model.RoleModerator); err != nil {
			return err
		}
		return s.restrictions.Expire(ctx, tx, r, now)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, r.CommunityID, actorID, audit.ActionRestrictionRemoved,
		model.JSONMap{"restriction_id": r.ID, "user_id": r.UserID, "type": string(r.Type)},
		model.JSONMap{"expires_at": now.Format(time.RFC3339)}, nil)
	return r, nil
}

// SweepRestrictions archives every lapsed restriction. It runs from the
// background scheduler.
func (s *Service) SweepRestrictions(ctx context.Context) (_ int64, err error) {
	ctx, end := s.begin(ctx, "SweepRestrictions")
	defer end(&err)

	var n int64
	err = s.tx(ctx, "sweep restrictions", func(tx *gorm.DB) error {
		var err error
		n, err = s.restrictions.Sweep(ctx, tx, s.now())
		return err
	})
	if err == nil && n > 0 {
		s.log.InfoContext(ctx, "archived lapsed restrictions", "count", n)
	}
	return n, err
}
