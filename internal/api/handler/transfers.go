package handler

import (
	"net/http"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/governance"
)

// initiateTransferRequest holds the body of POST .../transfers.
type initiateTransferRequest struct {
	TargetUserID string
	pass         string
}

func (r *initiateTransferRequest) UnmarshalJSON(data []byte) error {
	return secretFields(data, map[string]*string{"target_user_id": &r.TargetUserID, "password": &r.pass})
}

// InitiateTransfer handles POST /api/v1/communities/{id}/transfers.
func (h *GovernanceHandler) InitiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req initiateTransferRequest
	if err := jsonapi.Decode(r, &req); err != nil {
		renderBadBody(w, err)
		return
	}
	switch {
	case req.TargetUserID == "":
		renderMissing(w, "target_user_id")
		return
	case req.pass == "":
		renderMissing(w, "password")
		return
	}
	t, err := h.svc.InitiateTransfer(r.Context(), r.PathValue("id"), actorID(r), req.TargetUserID, req.pass)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, transferResource(t))
}

// ListTransfers handles GET /api/v1/communities/{id}/transfers.
func (h *GovernanceHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	ts, err := h.svc.ListTransfers(r.Context(), r.PathValue("id"), actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ts, transferResource), jsonapi.Meta{"count": len(ts)})
}

// GetTransfer handles GET /api/v1/transfers/{id}.
func (h *GovernanceHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTransfer(r.Context(), r.PathValue("id"), actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, transferResource(t))
}

type respondTransferRequest struct {
	Action string `json:"action"`
}

// RespondTransfer handles POST /api/v1/transfers/{id}/respond.
func (h *GovernanceHandler) RespondTransfer(w http.ResponseWriter, r *http.Request) {
	var req respondTransferRequest
	if err := jsonapi.Decode(r, &req); err != nil {
		renderBadBody(w, err)
		return
	}
	if req.Action == "" {
		renderMissing(w, "action")
		return
	}
	t, err := h.svc.RespondTransfer(r.Context(), r.PathValue("id"), actorID(r), governance.TransferAction(req.Action))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, transferResource(t))
}
