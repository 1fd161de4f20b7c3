package governance

import (
	"context"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/notify"
	"gorm.io/gorm"
)

// RequestToJoin files a join request for a private community. Submitting
// again while a request is pending updates its message instead of adding a
// second one.
func (s *Service) RequestToJoin(ctx context.Context, communityID, userID, message string) (_ *model.JoinRequest, err error) {
	ctx, end := s.begin(ctx, "RequestToJoin")
	defer end(&err)

	var jr *model.JoinRequest
	var ownerID string
	err = s.tx(ctx, "request to join", func(tx *gorm.DB) error {
		c, err := loadCommunity(tx, communityID)
		if err != nil {
			return err
		}
		if !c.IsActive {
			return newErr(KindInvalidState, ReasonCommunityInactive)
		}
		if !c.IsPrivate {
			return newErr(KindInvalidState, ReasonCommunityPublic)
		}
		if err := s.admissible(ctx, tx, communityID, userID); err != nil {
			return err
		}
		if jr, err = s.joinRequests.Upsert(ctx, tx, communityID, userID, message, s.now()); err != nil {
			return err
		}
		ownerID, err = s.ownerOf(ctx, tx, communityID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Event{
		Type:        notify.EventJoinRequestCreated,
		CommunityID: communityID,
		RecipientID: ownerID,
		Payload:     map[string]any{"join_request_id": jr.ID, "user_id": userID},
	})
	return jr, nil
}

// RespondJoinRequest approves or rejects a pending request. Approval makes
// the requester a member in the same transaction. Moderators and above only.
func (s *Service) RespondJoinRequest(ctx context.Context, requestID, actorID string, status model.JoinRequestStatus) (_ *model.JoinRequest, err error) {
	ctx, end := s.begin(ctx, "RespondJoinRequest")
	defer end(&err)

	if status != model.JoinRequestApproved && status != model.JoinRequestRejected {
		return nil, newErr(KindInvalidState, ReasonInvalidAction)
	}

	var jr *model.JoinRequest
	err = s.tx(ctx, "respond join request", func(tx *gorm.DB) error {
		existing, err := s.joinRequests.Get(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if _, err := s.requireRole(ctx, tx, existing.CommunityID, actorID, model.RoleModerator); err != nil {
			return err
		}
		if status == model.JoinRequestApproved {
			banned, err := s.restrictions.IsActiveBan(ctx, tx, existing.CommunityID, existing.UserID, s.now())
			if err != nil {
				return err
			}
			if banned {
				return newErr(KindForbidden, ReasonBanned)
			}
		}
		if jr, err = s.joinRequests.Respond(ctx, tx, requestID, status, actorID, s.now()); err != nil {
			return err
		}
		if jr == nil {
			return &Error{Kind: KindInvalidState, Reason: ReasonJoinRequestProcessed, Status: string(existing.Status)}
		}
		if status != model.JoinRequestApproved {
			return nil
		}
		if _, ok, err := s.members.Role(ctx, tx, jr.CommunityID, jr.UserID); err != nil || ok {
			return err
		}
		_, err = s.members.Upsert(ctx, tx, jr.CommunityID, jr.UserID, model.RoleMember)
		return err
	})
	if err != nil {
		return nil, err
	}

	action := audit.ActionJoinRequestRejected
	if jr.Status == model.JoinRequestApproved {
		action = audit.ActionJoinRequestApproved
	}
	s.record(ctx, jr.CommunityID, actorID, action,
		model.JSONMap{"join_request_id": jr.ID, "user_id": jr.UserID, "status": string(model.JoinRequestPending)},
		model.JSONMap{"join_request_id": jr.ID, "user_id": jr.UserID, "status": string(jr.Status)}, nil)
	s.notify(ctx, notify.Event{
		Type:        notify.EventJoinRequestAnswer,
		CommunityID: jr.CommunityID,
		RecipientID: jr.UserID,
		Payload:     map[string]any{"join_request_id": jr.ID, "status": string(jr.Status)},
	})
	return jr, nil
}

// ListJoinRequests returns the community's pending requests to moderators
// and above.
func (s *Service) ListJoinRequests(ctx context.Context, communityID, actorID string) (_ []model.JoinRequest, err error) {
	ctx, end := s.begin(ctx, "ListJoinRequests")
	defer end(&err)

	q := s.db.WithContext(ctx)
	if _, err := s.requireRole(ctx, q, communityID, actorID, model.RoleModerator); err != nil {
		return nil, storeErr("list join requests", err)
	}
	out, err := s.joinRequests.ListPending(ctx, q, communityID)
	return out, storeErr("list join requests", err)
}

// AuditLog returns the newest audit entries for a community to owners and
// organizers.
func (s *Service) AuditLog(ctx context.Context, communityID, actorID string, limit int) (_ []model.AuditLogEntry, err error) {
	ctx, end := s.begin(ctx, "AuditLog")
	defer end(&err)

	q := s.db.WithContext(ctx)
	if _, err := s.requireRole(ctx, q, communityID, actorID, model.RoleOrganizer); err != nil {
		return nil, storeErr("audit log", err)
	}
	out, err := audit.Store{}.List(ctx, q, communityID, limit)
	return out, storeErr("audit log", err)
}
