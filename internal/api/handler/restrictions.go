package handler

import (
	"net/http"
	"time"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/governance"
	"github.com/d9705996/commune/internal/model"
)

type restrictRequest struct {
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Restrict handles POST /api/v1/communities/{id}/restrictions.
func (h *GovernanceHandler) Restrict(w http.ResponseWriter, r *http.Request) {
	var req restrictRequest
	if err := jsonapi.Decode(r, &req); err != nil {
		renderBadBody(w, err)
		return
	}
	switch {
	case req.UserID == "":
		renderMissing(w, "user_id")
		return
	case req.Type == "":
		renderMissing(w, "type")
		return
	}
	x, err := h.svc.Restrict(r.Context(), actorID(r), governance.RestrictInput{
		CommunityID: r.PathValue("id"),
		UserID:      req.UserID,
		Type:        model.RestrictionType(req.Type),
		Reason:      req.Reason,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, restrictionResource(x))
}

// ListRestrictions handles GET /api/v1/communities/{id}/restrictions.
func (h *GovernanceHandler) ListRestrictions(w http.ResponseWriter, r *http.Request) {
	xs, err := h.svc.ListRestrictions(r.Context(), r.PathValue("id"), actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(xs, restrictionResource), jsonapi.Meta{"count": len(xs)})
}

// ActiveRestrictions handles
// GET /api/v1/communities/{id}/members/{userID}/restrictions.
func (h *GovernanceHandler) ActiveRestrictions(w http.ResponseWriter, r *http.Request) {
	xs, err := h.svc.ActiveRestrictions(r.Context(), r.PathValue("id"), r.PathValue("userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(xs, restrictionResource), jsonapi.Meta{"count": len(xs)})
}

// LiftRestriction handles DELETE /api/v1/restrictions/{id}.
func (h *GovernanceHandler) LiftRestriction(w http.ResponseWriter, r *http.Request) {
	x, err := h.svc.LiftRestriction(r.Context(), actorID(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, restrictionResource(x))
}
