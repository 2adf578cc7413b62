package api

import (
	"net/http"

	"github.com/erazemk/inventura/internal/accountability"
)

// ClaimsHandler handles self-service verification: holders report items
// present and supervisors review the reports.
type ClaimsHandler struct {
	Engine *accountability.Engine
}

type submitClaimRequest struct {
	SerialNumber string `json:"serial_number"`
	SessionID    string `json:"session_id"`
}

type confirmClaimRequest struct {
	Accepted *bool `json:"accepted"`
}

// Submit handles POST /api/claims.
func (h *ClaimsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	it, err := h.Engine.SubmitClaim(r.Context(), actor(r), req.SerialNumber, req.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, it)
}

// Confirm handles POST /api/items/{id}/confirm.
func (h *ClaimsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Accepted == nil {
		jsonError(w, http.StatusBadRequest, "accepted required")
		return
	}

	it, s, err := h.Engine.ConfirmClaim(r.Context(), actor(r), r.PathValue("id"), *req.Accepted)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, itemResponse{Item: it, Session: s})
}
