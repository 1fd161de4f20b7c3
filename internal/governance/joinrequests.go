package governance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/commune/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JoinRequestStore persists join requests. At most one pending request
// exists per (community, user).
type JoinRequestStore struct{}

// Upsert creates a pending request, or refreshes the message and timestamp
// of the one already pending.
func (JoinRequestStore) Upsert(ctx context.Context, tx *gorm.DB, communityID, userID, message string, now time.Time) (*model.JoinRequest, error) {
	tx = tx.WithContext(ctx)
	jr := &model.JoinRequest{
		CommunityID: communityID,
		UserID:      userID,
		Message:     message,
		Status:      model.JoinRequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "community_id"}, {Name: "user_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "status = 'pending'"}}},
		DoUpdates:   clause.Assignments(map[string]any{"message": message, "updated_at": now}),
	}).Create(jr).Error; err != nil {
		return nil, fmt.Errorf("upsert join request: %w", err)
	}

	var out model.JoinRequest
	if err := tx.Where("community_id = ? AND user_id = ? AND status = ?",
		communityID, userID, model.JoinRequestPending).First(&out).Error; err != nil {
		return nil, fmt.Errorf("reload join request: %w", err)
	}
	return &out, nil
}

// Get loads a join request by id.
func (JoinRequestStore) Get(ctx context.Context, tx *gorm.DB, id string) (*model.JoinRequest, error) {
	var jr model.JoinRequest
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&jr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newErr(KindNotFound, ReasonJoinRequestNotFound)
		}
		return nil, fmt.Errorf("get join request: %w", err)
	}
	return &jr, nil
}

// Respond moves a pending request to status. It returns nil without error
// when no pending request with that id exists, meaning someone else already
// answered it.
func (JoinRequestStore) Respond(ctx context.Context, tx *gorm.DB, id string, status model.JoinRequestStatus, responderID string, now time.Time) (*model.JoinRequest, error) {
	tx = tx.WithContext(ctx)
	res := tx.Model(&model.JoinRequest{}).
		Where("id = ? AND status = ?", id, model.JoinRequestPending).
		Updates(map[string]any{
			"status":       status,
			"responded_by": responderID,
			"responded_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("respond to join request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var out model.JoinRequest
	if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
		return nil, fmt.Errorf("reload join request: %w", err)
	}
	return &out, nil
}

// ListPending returns the community's open requests, oldest first.
func (JoinRequestStore) ListPending(ctx context.Context, tx *gorm.DB, communityID string) ([]model.JoinRequest, error) {
	var out []model.JoinRequest
	if err := tx.WithContext(ctx).
		Where("community_id = ? AND status = ?", communityID, model.JoinRequestPending).
		Order("created_at").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	return out, nil
}
