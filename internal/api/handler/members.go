package handler

import (
	"net/http"
	"strconv"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/model"
)

// ListMembers handles GET /api/v1/communities/{id}/members.
func (h *GovernanceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.ListMembers(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ms, membershipResource), jsonapi.Meta{"count": len(ms)})
}

// Join handles POST /api/v1/communities/{id}/members. The caller joins.
func (h *GovernanceHandler) Join(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Join(r.Context(), r.PathValue("id"), actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, membershipResource(m))
}

// Leave handles DELETE /api/v1/communities/{id}/members/me.
func (h *GovernanceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Leave(r.Context(), r.PathValue("id"), actorID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateMemberRole handles PATCH /api/v1/communities/{id}/members/{userID}.
func (h *GovernanceHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := jsonapi.Decode(r, &req); err != nil {
		renderBadBody(w, err)
		return
	}
	if req.Role == "" {
		renderMissing(w, "role")
		return
	}
	m, err := h.svc.UpdateMemberRole(r.Context(), r.PathValue("id"), actorID(r), r.PathValue("userID"), model.Role(req.Role))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, membershipResource(m))
}

// RemoveMember handles DELETE /api/v1/communities/{id}/members/{userID}.
func (h *GovernanceHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveMember(r.Context(), r.PathValue("id"), actorID(r), r.PathValue("userID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
