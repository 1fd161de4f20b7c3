package handler

import (
	"net/http"
	"strings"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/governance"
)

type createCommunityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

// CreateCommunity handles POST /api/v1/communities.
func (h *GovernanceHandler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	var req createCommunityRequest
	if err := jsonapi.Decode(r, &req); err != nil {
		renderBadBody(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		renderMissing(w, "name")
		return
	}
	c, err := h.svc.CreateCommunity(r.Context(), actorID(r), governance.CreateCommunityInput{
		Name: req.Name, Description: req.Description, IsPrivate: req.IsPrivate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, communityResource(c))
}

// ListCommunities handles GET /api/v1/communities.
func (h *GovernanceHandler) ListCommunities(w http.ResponseWriter, r *http.Request) {
	cs, err := h.svc.ListCommunities(r.Context(), actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(cs, communityResource), jsonapi.Meta{"count": len(cs)})
}

// GetCommunity handles GET /api/v1/communities/{id}.
func (h *GovernanceHandler) GetCommunity(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCommunity(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, communityResource(c))
}

// GetCommunityByURL handles GET /api/v1/communities/by-url/{url}.
func (h *GovernanceHandler) GetCommunityByURL(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCommunityByURL(r.Context(), r.PathValue("url"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, communityResource(c))
}

type updateCommunityRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
}

// UpdateCommunity handles PATCH /api/v1/communities/{id}.
func (h *GovernanceHandler) UpdateCommunity(w http.ResponseWriter, r *http.Request) {
	var req updateCommunityRequest
	if err := jsonapi.Decode(r, &req); err != nil {
		renderBadBody(w, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		renderMissing(w, "name")
		return
	}
	c, err := h.svc.UpdateCommunity(r.Context(), r.PathValue("id"), actorID(r), governance.UpdateCommunityInput{
		Name: req.Name, Description: req.Description, IsPrivate: req.IsPrivate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, communityResource(c))
}

// DeactivateCommunity handles POST /api/v1/communities/{id}/deactivate.
func (h *GovernanceHandler) DeactivateCommunity(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateCommunity(r.Context(), r.PathValue("id"), actorID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReactivateCommunity handles POST /api/v1/communities/{id}/reactivate.
func (h *GovernanceHandler) ReactivateCommunity(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ReactivateCommunity(r.Context(), r.PathValue("id"), actorID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCommunity handles DELETE /api/v1/communities/{id}. Admin only.
func (h *GovernanceHandler) DeleteCommunity(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCommunity(r.Context(), r.PathValue("id"), actorID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuditLog handles GET /api/v1/communities/{id}/audit?limit=N.
func (h *GovernanceHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	entries, err := h.svc.AuditLog(r.Context(), r.PathValue("id"), actorID(r), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(entries, auditResource), jsonapi.Meta{"count": len(entries)})
}
