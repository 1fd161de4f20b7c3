package governance

import (
	"context"
	"errors"
	"time"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/db"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/notify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

// TransferAction is a response to an ownership offer.
type TransferAction string

const (
	TransferAccept TransferAction = "accept"
	TransferReject TransferAction = "reject"
	TransferCancel TransferAction = "cancel"
)

// Valid reports whether a is a known action.
func (a TransferAction) Valid() bool {
	return a == TransferAccept || a == TransferReject || a == TransferCancel
}

// InitiateTransfer offers ownership of the community to targetID, who must
// currently be an organizer. The owner confirms with their password. Only
// one offer per community may be pending.
func (s *Service) InitiateTransfer(ctx context.Context, communityID, actorID, targetID, password string) (_ *model.OwnershipTransfer, err error) {
	ctx, end := s.begin(ctx, "InitiateTransfer")
	defer end(&err)

	if err := s.confirmPassword(ctx, actorID, password); err != nil {
		return nil, err
	}

	now := s.now()
	var t *model.OwnershipTransfer
	err = s.tx(ctx, "initiate transfer", func(tx *gorm.DB) error {
		if _, err := loadCommunity(forUpdate(tx), communityID); err != nil {
			return err
		}
		if role, ok, err := s.members.Role(ctx, tx, communityID, actorID); err != nil {
			return err
		} else if !ok || role != model.RoleOwner {
			return newErr(KindForbidden, ReasonNotOwner)
		}
		role, ok, err := s.members.Role(ctx, tx, communityID, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(KindNotFound, ReasonMemberNotFound)
		}
		if role != model.RoleOrganizer {
			return newErr(KindInvalidState, ReasonTargetNotOrganizer)
		}

		var pending model.OwnershipTransfer
		if err := forUpdate(tx).
			Where("community_id = ? AND status = ?", communityID, model.TransferPending).
			Limit(1).Find(&pending).Error; err != nil {
			return err
		}
		if pending.ID != "" {
			if !pending.StaleAt(now) {
				return newErr(KindConflict, ReasonTransferPending)
			}
			if err := s.expireTransfer(tx, &pending, now); err != nil {
				return err
			}
		}

		t = &model.OwnershipTransfer{
			CommunityID:    communityID,
			CurrentOwnerID: actorID,
			TargetUserID:   targetID,
			Status:         model.TransferPending,
			ExpiresAt:      now.Add(s.transferTTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(t).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return newErr(KindConflict, ReasonTransferPending)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, communityID, actorID, audit.ActionTransferInitiated, nil, transferState(t), nil)
	payload := map[string]any{"transfer_id": t.ID, "expires_at": t.ExpiresAt.Format(time.RFC3339)}
	s.notify(ctx, notify.Event{Type: notify.EventTransferInitiated, CommunityID: communityID, RecipientID: actorID, Payload: payload})
	s.notify(ctx, notify.Event{Type: notify.EventTransferOffered, CommunityID: communityID, RecipientID: targetID, Payload: payload})
	return t, nil
}

// RespondTransfer applies action to a pending transfer. The target accepts
// or rejects; the owner who made the offer cancels. An offer past its expiry
// is marked expired whoever asks, and the call fails with that status.
//
// Accepting swaps the two roles and writes the audit entry in the same
// transaction; if any step fails nothing changes.
func (s *Service) RespondTransfer(ctx context.Context, transferID, actorID string, action TransferAction) (_ *model.OwnershipTransfer, err error) {
	ctx, end := s.begin(ctx, "RespondTransfer")
	defer end(&err)

	if !action.Valid() {
		return nil, newErr(KindInvalidState, ReasonInvalidAction)
	}

	now := s.now()
	var t *model.OwnershipTransfer
	expired := false
	err = s.tx(ctx, "respond transfer", func(tx *gorm.DB) error {
		var err error
		if t, err = loadTransfer(forUpdate(tx), transferID); err != nil {
			return err
		}
		if t.Status != model.TransferPending {
			return &Error{Kind: KindInvalidState, Reason: ReasonTransferProcessed, Status: string(t.Status)}
		}
		if t.StaleAt(now) {
			expired = true
			return s.expireTransfer(tx, t, now)
		}

		switch action {
		case TransferAccept, TransferReject:
			if actorID != t.TargetUserID {
				return newErr(KindForbidden, ReasonNotTransferParty)
			}
		case TransferCancel:
			if actorID != t.CurrentOwnerID {
				return newErr(KindForbidden, ReasonNotTransferParty)
			}
		}

		switch action {
		case TransferAccept:
			return s.acceptTransfer(ctx, tx, t, now)
		case TransferReject:
			return s.finishTransfer(tx, t, model.TransferRejected, now)
		default:
			return s.finishTransfer(tx, t, model.TransferCanceled, now)
		}
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, &Error{Kind: KindInvalidState, Reason: ReasonTransferExpired, Status: string(model.TransferExpired)}
	}

	s.countTransfer(ctx, t.Status)
	payload := map[string]any{"transfer_id": t.ID}
	switch t.Status {
	case model.TransferAccepted:
		s.notify(ctx, notify.Event{Type: notify.EventTransferAccepted, CommunityID: t.CommunityID, RecipientID: t.CurrentOwnerID, Payload: payload})
	case model.TransferRejected:
		s.record(ctx, t.CommunityID, actorID, audit.ActionTransferRejected,
			model.JSONMap{"status": string(model.TransferPending)}, transferState(t), nil)
		s.notify(ctx, notify.Event{Type: notify.EventTransferRejected, CommunityID: t.CommunityID, RecipientID: t.CurrentOwnerID, Payload: payload})
	case model.TransferCanceled:
		s.record(ctx, t.CommunityID, actorID, audit.ActionTransferCanceled,
			model.JSONMap{"status": string(model.TransferPending)}, transferState(t), nil)
		s.notify(ctx, notify.Event{Type: notify.EventTransferCanceled, CommunityID: t.CommunityID, RecipientID: t.TargetUserID, Payload: payload})
	}
	return t, nil
}

// acceptTransfer demotes the current owner, promotes the target and records
// the swap. Each update is guarded by the role it expects to find.
func (s *Service) acceptTransfer(ctx context.Context, tx *gorm.DB, t *model.OwnershipTransfer, now time.Time) error {
	res := tx.Model(&model.Membership{}).
		Where("community_id = ? AND user_id = ? AND role = ?", t.CommunityID, t.CurrentOwnerID, model.RoleOwner).
		Update("role", model.RoleOrganizer)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return newErr(KindInvalidState, ReasonOwnerChanged)
	}

	res = tx.Model(&model.Membership{}).
		Where("community_id = ? AND user_id = ? AND role = ?", t.CommunityID, t.TargetUserID, model.RoleOrganizer).
		Update("role", model.RoleOwner)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return newErr(KindInvalidState, ReasonTargetNotOrganizer)
	}

	if err := s.finishTransfer(tx, t, model.TransferAccepted, now); err != nil {
		return err
	}

	return s.audit.Sink().Append(ctx, tx, &model.AuditLogEntry{
		CommunityID:   t.CommunityID,
		UserID:        t.TargetUserID,
		ActionType:    audit.ActionOwnershipTransferred,
		PreviousState: model.JSONMap{"owner_id": t.CurrentOwnerID},
		NewState:      model.JSONMap{"owner_id": t.TargetUserID},
		Metadata:      model.JSONMap{"transfer_id": t.ID},
		CreatedAt:     now,
	})
}

// finishTransfer moves a pending transfer to status. Losing the race to
// another responder surfaces as already processed.
func (s *Service) finishTransfer(tx *gorm.DB, t *model.OwnershipTransfer, status model.TransferStatus, now time.Time) error {
	res := tx.Model(&model.OwnershipTransfer{}).
		Where("id = ? AND status = ?", t.ID, model.TransferPending).
		Updates(map[string]any{"status": status, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return &Error{Kind: KindInvalidState, Reason: ReasonTransferProcessed}
	}
	t.Status = status
	t.UpdatedAt = now
	return nil
}

func (s *Service) expireTransfer(tx *gorm.DB, t *model.OwnershipTransfer, now time.Time) error {
	if err := s.finishTransfer(tx, t, model.TransferExpired, now); err != nil {
		return err
	}
	s.countTransfer(tx.Statement.Context, model.TransferExpired)
	return nil
}

// GetTransfer returns a transfer to one of its two parties, persisting the
// expired status first if the offer has lapsed.
func (s *Service) GetTransfer(ctx context.Context, transferID, actorID string) (_ *model.OwnershipTransfer, err error) {
	ctx, end := s.begin(ctx, "GetTransfer")
	defer end(&err)

	now := s.now()
	var t *model.OwnershipTransfer
	err = s.tx(ctx, "get transfer", func(tx *gorm.DB) error {
		var err error
		if t, err = loadTransfer(forUpdate(tx), transferID); err != nil {
			return err
		}
		if actorID != t.CurrentOwnerID && actorID != t.TargetUserID {
			return newErr(KindForbidden, ReasonNotTransferParty)
		}
		if t.StaleAt(now) {
			return s.expireTransfer(tx, t, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTransfers returns the community's transfer history, newest first, to
// owners and organizers. Lapsed offers are reported as expired even before
// anyone has touched them.
func (s *Service) ListTransfers(ctx context.Context, communityID, actorID string) (_ []model.OwnershipTransfer, err error) {
	ctx, end := s.begin(ctx, "ListTransfers")
	defer end(&err)

	q := s.db.WithContext(ctx)
	if _, err := s.requireRole(ctx, q, communityID, actorID, model.RoleOrganizer); err != nil {
		return nil, storeErr("list transfers", err)
	}
	var out []model.OwnershipTransfer
	if err := q.Where("community_id = ?", communityID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, storeErr("list transfers", err)
	}
	now := s.now()
	for i := range out {
		if out[i].StaleAt(now) {
			out[i].Status = model.TransferExpired
		}
	}
	return out, nil
}

func (s *Service) confirmPassword(ctx context.Context, userID, password string) error {
	var u model.User
	err := s.db.WithContext(ctx).Select("id", "password_hash").
		Where("id = ? AND deactivated_at IS NULL", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newErr(KindUnauthenticated, ReasonInvalidPassword)
	}
	if err != nil {
		return storeErr("load credentials", err)
	}
	if s.passwords == nil || u.PasswordHash == "" || !s.passwords.VerifyPassword(password, u.PasswordHash) {
		return newErr(KindUnauthenticated, ReasonInvalidPassword)
	}
	return nil
}

func (s *Service) countTransfer(ctx context.Context, status model.TransferStatus) {
	if s.transfers != nil {
		s.transfers.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

func loadTransfer(tx *gorm.DB, id string) (*model.OwnershipTransfer, error) {
	var t model.OwnershipTransfer
	if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newErr(KindNotFound, ReasonTransferNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func transferState(t *model.OwnershipTransfer) model.JSONMap {
	return model.JSONMap{
		"transfer_id":      t.ID,
		"current_owner_id": t.CurrentOwnerID,
		"target_user_id":   t.TargetUserID,
		"status":           string(t.Status),
		"expires_at":       t.ExpiresAt.Format(time.RFC3339),
	}
}
