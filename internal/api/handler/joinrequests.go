package handler

import (
	"net/http"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/model"
)

type joinRequestBody struct {
	Message string `json:"message"`
}

// RequestToJoin handles POST /api/v1/communities/{id}/join-requests. The
// body is optional.
func (h *GovernanceHandler) RequestToJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequestBody
	if r.ContentLength != 0 {
		if err := jsonapi.Decode(r, &req); err != nil {
			renderBadBody(w, err)
			return
		}
	}
	jr, err := h.svc.RequestToJoin(r.Context(), r.PathValue("id"), actorID(r), req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, joinRequestResource(jr))
}

// ListJoinRequests handles GET /api/v1/communities/{id}/join-requests.
func (h *GovernanceHandler) ListJoinRequests(w http.ResponseWriter, r *http.Request) {
	jrs, err := h.svc.ListJoinRequests(r.Context(), r.PathValue("id"), actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(jrs, joinRequestResource), jsonapi.Meta{"count": len(jrs)})
}

type respondJoinRequestBody struct {
	Status string `json:"status"`
}

// RespondJoinRequest handles POST /api/v1/join-requests/{id}/respond.
func (h *GovernanceHandler) RespondJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req respondJoinRequestBody
	if err := jsonapi.Decode(r, &req); err != nil {
		renderBadBody(w, err)
		return
	}
	if req.Status == "" {
		renderMissing(w, "status")
		return
	}
	jr, err := h.svc.RespondJoinRequest(r.Context(), r.PathValue("id"), actorID(r), model.JoinRequestStatus(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, joinRequestResource(jr))
}
