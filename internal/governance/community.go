package governance

import (
	"context"
	"errors"
	"strings"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/db"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/slug"
	"gorm.io/gorm"
)

// CreateCommunityInput describes a new community.
type CreateCommunityInput struct {
	Name        string
	Description string
	IsPrivate   bool
}

// UpdateCommunityInput carries the fields to change; nil leaves a field as
// it is. The URL never changes with the name.
type UpdateCommunityInput struct {
	Name        *string
	Description *string
	IsPrivate   *bool
}

// CreateCommunity creates a community with a freshly allocated URL and makes
// actorID its owner.
func (s *Service) CreateCommunity(ctx context.Context, actorID string, in CreateCommunityInput) (_ *model.Community, err error) {
	ctx, end := s.begin(ctx, "CreateCommunity")
	defer end(&err)

	var c *model.Community
	err = s.tx(ctx, "create community", func(tx *gorm.DB) error {
		url, err := slug.Allocate(ctx, tx, in.Name)
		if err != nil {
			return err
		}
		c = &model.Community{
			UniqueURL:   url,
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			IsPrivate:   in.IsPrivate,
			IsActive:    true,
			CreatedBy:   actorID,
		}
		if err := tx.Create(c).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return newErr(KindConflict, ReasonURLExists)
			}
			return err
		}
		_, err = s.members.Upsert(ctx, tx, c.ID, actorID, model.RoleOwner)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, c.ID, actorID, audit.ActionCommunityCreated, nil, communityState(c), nil)
	return c, nil
}

// GetCommunity loads a community by id, active or not.
func (s *Service) GetCommunity(ctx context.Context, id string) (_ *model.Community, err error) {
	ctx, end := s.begin(ctx, "GetCommunity")
	defer end(&err)

	c, err := loadCommunity(s.db.WithContext(ctx), id)
	return c, storeErr("get community", err)
}

// GetCommunityByURL resolves an active community by its URL.
func (s *Service) GetCommunityByURL(ctx context.Context, url string) (_ *model.Community, err error) {
	ctx, end := s.begin(ctx, "GetCommunityByURL")
	defer end(&err)

	var c model.Community
	err = s.db.WithContext(ctx).
		Where("unique_url = ? AND is_active = ?", url, true).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newErr(KindNotFound, ReasonCommunityNotFound)
	}
	if err != nil {
		return nil, storeErr("get community by url", err)
	}
	return &c, nil
}

// ListCommunities returns active communities; private ones only when the
// viewer belongs to them.
func (s *Service) ListCommunities(ctx context.Context, viewerID string) (_ []model.Community, err error) {
	ctx, end := s.begin(ctx, "ListCommunities")
	defer end(&err)

	var out []model.Community
	q := s.db.WithContext(ctx).Where("is_active = ?", true)
	if viewerID != "" {
		q = q.Where("(is_private = ? OR id IN (?))", false,
			s.db.Model(&model.Membership{}).Select("community_id").Where("user_id = ?", viewerID))
	} else {
		q = q.Where("is_private = ?", false)
	}
	if err := q.Order("name").Find(&out).Error; err != nil {
		return nil, storeErr("list communities", err)
	}
	return out, nil
}

// UpdateCommunity edits the descriptive fields. Owners and organizers only.
func (s *Service) UpdateCommunity(ctx context.Context, id, actorID string, in UpdateCommunityInput) (_ *model.Community, err error) {
	ctx, end := s.begin(ctx, "UpdateCommunity")
	defer end(&err)

	var before, after model.JSONMap
	var c *model.Community
	err = s.tx(ctx, "update community", func(tx *gorm.DB) error {
		var err error
		if c, err = loadCommunity(forUpdate(tx), id); err != nil {
			return err
		}
		if _, err := s.requireRole(ctx, tx, id, actorID, model.RoleOrganizer); err != nil {
			return err
		}
		before = communityState(c)
		changes := map[string]any{}
		if in.Name != nil {
			c.Name = strings.TrimSpace(*in.Name)
			changes["name"] = c.Name
		}
		if in.Description != nil {
			c.Description = *in.Description
			changes["description"] = c.Description
		}
		if in.IsPrivate != nil {
			c.IsPrivate = *in.IsPrivate
			changes["is_private"] = c.IsPrivate
		}
		if len(changes) == 0 {
			return nil
		}
		changes["updated_at"] = s.now()
		after = communityState(c)
		return tx.Model(&model.Community{}).Where("id = ?", id).Updates(changes).Error
	})
	if err != nil {
		return nil, err
	}
	if after != nil {
		s.record(ctx, id, actorID, audit.ActionCommunityUpdated, before, after, nil)
	}
	return c, nil
}

// DeactivateCommunity hides the community and frees its URL for reuse.
// Owner only.
func (s *Service) DeactivateCommunity(ctx context.Context, id, actorID string) (err error) {
	ctx, end := s.begin(ctx, "DeactivateCommunity")
	defer end(&err)

	err = s.tx(ctx, "deactivate community", func(tx *gorm.DB) error {
		c, err := loadCommunity(forUpdate(tx), id)
		if err != nil {
			return err
		}
		if _, err := s.requireRole(ctx, tx, id, actorID, model.RoleOwner); err != nil {
			return err
		}
		if !c.IsActive {
			return newErr(KindInvalidState, ReasonCommunityInactive)
		}
		return tx.Model(&model.Community{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": false, "updated_at": s.now()}).Error
	})
	if err != nil {
		return err
	}
	s.record(ctx, id, actorID, audit.ActionCommunityDeactivated,
		model.JSONMap{"is_active": true}, model.JSONMap{"is_active": false}, nil)
	return nil
}

// ReactivateCommunity restores a deactivated community if its URL has not
// been taken in the meantime. Owner only.
func (s *Service) ReactivateCommunity(ctx context.Context, id, actorID string) (err error) {
	ctx, end := s.begin(ctx, "ReactivateCommunity")
	defer end(&err)

	err = s.tx(ctx, "reactivate community", func(tx *gorm.DB) error {
		c, err := loadCommunity(forUpdate(tx), id)
		if err != nil {
			return err
		}
		if _, err := s.requireRole(ctx, tx, id, actorID, model.RoleOwner); err != nil {
			return err
		}
		if c.IsActive {
			return newErr(KindInvalidState, ReasonCommunityActive)
		}
		if db.IsPostgres(tx) {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", slug.LockKey(c.UniqueURL)).Error; err != nil {
				return err
			}
		}
		free, err := slug.Available(ctx, tx, c.UniqueURL)
		if err != nil {
			return err
		}
		if !free {
			return newErr(KindConflict, ReasonURLExists)
		}
		err = tx.Model(&model.Community{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": true, "updated_at": s.now()}).Error
		if db.IsUniqueViolation(err) {
			return newErr(KindConflict, ReasonURLExists)
		}
		return err
	})
	if err != nil {
		return err
	}
	s.record(ctx, id, actorID, audit.ActionCommunityReactivated,
		model.JSONMap{"is_active": false}, model.JSONMap{"is_active": true}, nil)
	return nil
}

// DeleteCommunity removes the community and, through the foreign key, all
// of its memberships. Callers authorize this with a platform permission.
func (s *Service) DeleteCommunity(ctx context.Context, id, actorID string) (err error) {
	ctx, end := s.begin(ctx, "DeleteCommunity")
	defer end(&err)

	var c *model.Community
	err = s.tx(ctx, "delete community", func(tx *gorm.DB) error {
		var err error
		if c, err = loadCommunity(forUpdate(tx), id); err != nil {
			return err
		}
		// sqlite's AutoMigrate schema only cascades memberships.
		for _, dep := range []any{&model.Restriction{}, &model.OwnershipTransfer{}, &model.JoinRequest{}} {
			if err := tx.Where("community_id = ?", id).Delete(dep).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Community{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	s.record(ctx, id, actorID, audit.ActionCommunityDeleted, communityState(c), nil, nil)
	return nil
}

func communityState(c *model.Community) model.JSONMap {
	return model.JSONMap{
		"unique_url":  c.UniqueURL,
		"name":        c.Name,
		"description": c.Description,
		"is_private":  c.IsPrivate,
		"is_active":   c.IsActive,
	}
}
