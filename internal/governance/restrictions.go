package governance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/commune/internal/model"
	"gorm.io/gorm"
)

// RestrictionStore persists bans and mutes. Rows are never deleted.
type RestrictionStore struct{}

// Create inserts r.
func (RestrictionStore) Create(ctx context.Context, tx *gorm.DB, r *model.Restriction) error {
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create restriction: %w", err)
	}
	return nil
}

// IsActiveBan reports whether userID has a ban in force at now.
func (RestrictionStore) IsActiveBan(ctx context.Context, tx *gorm.DB, communityID, userID string, now time.Time) (bool, error) {
	var n int64
	if err := tx.WithContext(ctx).Model(&model.Restriction{}).
		Where("community_id = ? AND user_id = ? AND type = ?", communityID, userID, model.RestrictionBan).
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return n > 0, nil
}

// ListActive returns userID's restrictions in force at now.
func (RestrictionStore) ListActive(ctx context.Context, tx *gorm.DB, communityID, userID string, now time.Time) ([]model.Restriction, error) {
	var out []model.Restriction
	if err := tx.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list active restrictions: %w", err)
	}
	return out, nil
}

// List returns the community's restriction history, newest first.
func (RestrictionStore) List(ctx context.Context, tx *gorm.DB, communityID string) ([]model.Restriction, error) {
	var out []model.Restriction
	if err := tx.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list restrictions: %w", err)
	}
	return out, nil
}

// Get loads a restriction, locking it on postgres.
func (RestrictionStore) Get(ctx context.Context, tx *gorm.DB, id string) (*model.Restriction, error) {
	var r model.Restriction
	if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newErr(KindNotFound, ReasonRestrictionNotFound)
		}
		return nil, fmt.Errorf("get restriction: %w", err)
	}
	return &r, nil
}

// Expire ends an active restriction at now by moving its expiry.
func (RestrictionStore) Expire(ctx context.Context, tx *gorm.DB, r *model.Restriction, now time.Time) error {
	if !r.ActiveAt(now) {
		return newErr(KindInvalidState, ReasonRestrictionExpired)
	}
	if err := tx.WithContext(ctx).Model(r).Update("expires_at", now).Error; err != nil {
		return fmt.Errorf("expire restriction: %w", err)
	}
	r.ExpiresAt = &now
	return nil
}

// Sweep archives lapsed restrictions and returns how many it touched.
// Expiry timestamps are left as they are, so history keeps its end dates.
func (RestrictionStore) Sweep(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Restriction{}).
		Where("archived_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?", now).
		Update("archived_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("sweep restrictions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
