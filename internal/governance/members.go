package governance

import (
	"context"
	"errors"
	"fmt"

	"github.com/d9705996/commune/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipStore reads and writes memberships on whatever handle it is
// given, so callers decide the transaction.
type MembershipStore struct{}

// Upsert makes userID a member with role, overwriting any existing role.
// Calling it twice with the same arguments leaves exactly one row. It never
// creates a second owner and never demotes the current one; ownership moves
// only through an accepted transfer.
func (MembershipStore) Upsert(ctx context.Context, tx *gorm.DB, communityID, userID string, role model.Role) (*model.Membership, error) {
	if !role.Valid() {
		return nil, newErr(KindInvalidState, ReasonInvalidRole)
	}
	tx = tx.WithContext(ctx)

	var owner model.Membership
	if err := forUpdate(tx).
		Where("community_id = ? AND role = ?", communityID, model.RoleOwner).
		Limit(1).Find(&owner).Error; err != nil {
		return nil, fmt.Errorf("find owner: %w", err)
	}
	if owner.ID != "" {
		if owner.UserID == userID && role != model.RoleOwner {
			return nil, newErr(KindConflict, ReasonOwnerRoleLocked)
		}
		if owner.UserID != userID && role == model.RoleOwner {
			return nil, newErr(KindConflict, ReasonOwnerExists)
		}
	}

	m := &model.Membership{CommunityID: communityID, UserID: userID, Role: role}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(m).Error; err != nil {
		return nil, fmt.Errorf("upsert membership: %w", err)
	}

	var out model.Membership
	if err := tx.Where("community_id = ? AND user_id = ?", communityID, userID).
		First(&out).Error; err != nil {
		return nil, fmt.Errorf("reload membership: %w", err)
	}
	return &out, nil
}

// Remove deletes the membership and reports whether one existed.
func (MembershipStore) Remove(ctx context.Context, tx *gorm.DB, communityID, userID string) (bool, error) {
	res := tx.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&model.Membership{})
	if res.Error != nil {
		return false, fmt.Errorf("remove membership: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Role returns userID's role in the community; ok is false for non-members.
func (MembershipStore) Role(ctx context.Context, tx *gorm.DB, communityID, userID string) (model.Role, bool, error) {
	var m model.Membership
	err := tx.WithContext(ctx).
		Select("role").
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get role: %w", err)
	}
	return m.Role, true, nil
}

// HasAnyRole reports whether userID holds one of roles in the community.
func (MembershipStore) HasAnyRole(ctx context.Context, tx *gorm.DB, communityID, userID string, roles ...model.Role) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	var n int64
	if err := tx.WithContext(ctx).Model(&model.Membership{}).
		Where("community_id = ? AND user_id = ? AND role IN ?", communityID, userID, roles).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check roles: %w", err)
	}
	return n > 0, nil
}

// List returns the community's members, highest role first.
func (MembershipStore) List(ctx context.Context, tx *gorm.DB, communityID string) ([]model.Membership, error) {
	var out []model.Membership
	if err := tx.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("CASE role WHEN 'owner' THEN 0 WHEN 'organizer' THEN 1 WHEN 'moderator' THEN 2 ELSE 3 END").
		Order("joined_at").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}
