package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/api/middleware"
	"github.com/d9705996/commune/internal/governance"
	"github.com/d9705996/commune/internal/model"
)

// GovernanceHandler serves the community governance routes.
type GovernanceHandler struct {
	svc *governance.Service
	log *slog.Logger
}

// NewGovernanceHandler creates a GovernanceHandler.
func NewGovernanceHandler(svc *governance.Service, log *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{svc: svc, log: log}
}

func actorID(r *http.Request) string {
	if c := middleware.ClaimsFromContext(r.Context()); c != nil {
		return c.UserID
	}
	return ""
}

func (h *GovernanceHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	renderGovernanceError(w, r, h.log, err)
}

// ---- resource attributes --------------------------------------------------

type communityAttrs struct {
	UniqueURL   string    `json:"unique_url"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"is_private"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type membershipAttrs struct {
	CommunityID string     `json:"community_id"`
	UserID      string     `json:"user_id"`
	Role        model.Role `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
}

type restrictionAttrs struct {
	CommunityID string                `json:"community_id"`
	UserID      string                `json:"user_id"`
	Type        model.RestrictionType `json:"type"`
	Reason      string                `json:"reason"`
	AppliedBy   string                `json:"applied_by"`
	ExpiresAt   *time.Time            `json:"expires_at"`
	ArchivedAt  *time.Time            `json:"archived_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

type transferAttrs struct {
	CommunityID    string               `json:"community_id"`
	CurrentOwnerID string               `json:"current_owner_id"`
	TargetUserID   string               `json:"target_user_id"`
	Status         model.TransferStatus `json:"status"`
	ExpiresAt      time.Time            `json:"expires_at"`
	CreatedAt      time.Time            `json:"created_at"`
}

type joinRequestAttrs struct {
	CommunityID string                  `json:"community_id"`
	UserID      string                  `json:"user_id"`
	Message     string                  `json:"message"`
	Status      model.JoinRequestStatus `json:"status"`
	RespondedBy *string                 `json:"responded_by,omitempty"`
	RespondedAt *time.Time              `json:"responded_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

type auditAttrs struct {
	CommunityID   string        `json:"community_id"`
	UserID        string        `json:"user_id"`
	ActionType    string        `json:"action_type"`
	PreviousState model.JSONMap `json:"previous_state,omitempty"`
	NewState      model.JSONMap `json:"new_state,omitempty"`
	Metadata      model.JSONMap `json:"metadata,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func communityResource(c *model.Community) any {
	return resource("communities", c.ID, communityAttrs{
		UniqueURL: c.UniqueURL, Name: c.Name, Description: c.Description,
		IsPrivate: c.IsPrivate, IsActive: c.IsActive, CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	})
}

func membershipResource(m *model.Membership) any {
	return resource("memberships", m.ID, membershipAttrs{
		CommunityID: m.CommunityID, UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt,
	})
}

func restrictionResource(x *model.Restriction) any {
	return resource("restrictions", x.ID, restrictionAttrs{
		CommunityID: x.CommunityID, UserID: x.UserID, Type: x.Type, Reason: x.Reason,
		AppliedBy: x.AppliedBy, ExpiresAt: x.ExpiresAt, ArchivedAt: x.ArchivedAt, CreatedAt: x.CreatedAt,
	})
}

func transferResource(t *model.OwnershipTransfer) any {
	return resource("ownership_transfers", t.ID, transferAttrs{
		CommunityID: t.CommunityID, CurrentOwnerID: t.CurrentOwnerID, TargetUserID: t.TargetUserID,
		Status: t.Status, ExpiresAt: t.ExpiresAt, CreatedAt: t.CreatedAt,
	})
}

func joinRequestResource(j *model.JoinRequest) any {
	return resource("join_requests", j.ID, joinRequestAttrs{
		CommunityID: j.CommunityID, UserID: j.UserID, Message: j.Message, Status: j.Status,
		RespondedBy: j.RespondedBy, RespondedAt: j.RespondedAt, CreatedAt: j.CreatedAt,
	})
}

func auditResource(e *model.AuditLogEntry) any {
	return resource("audit_log_entries", e.ID, auditAttrs{
		CommunityID: e.CommunityID, UserID: e.UserID, ActionType: e.ActionType,
		PreviousState: e.PreviousState, NewState: e.NewState, Metadata: e.Metadata, CreatedAt: e.CreatedAt,
	})
}

func resource(typ, id string, attrs any) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{Type: typ, ID: id, Attributes: attrs}
}

// list converts a slice of models with the given resource builder.
func list[T any](items []T, build func(*T) any) []any {
	out := make([]any, 0, len(items))
	for i := range items {
		out = append(out, build(&items[i]))
	}
	return out
}
