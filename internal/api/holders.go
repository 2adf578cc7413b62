package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/store"
)

// HoldersHandler handles the people equipment can be assigned to.
type HoldersHandler struct {
	Data     *data.Access
	Protocol *mutation.Protocol
}

type createHolderRequest struct {
	Name   string `json:"name"`
	Rank   string `json:"rank"`
	UserID string `json:"user_id"`
}

// List handles GET /api/holders. With ?q= the query is resolved the same way
// holder assignment resolves it.
func (h *HoldersHandler) List(w http.ResponseWriter, r *http.Request) {
	holders, err := h.Data.Holders().Query(r.Context(), store.Filter{"unit_id": actor(r).UnitID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if q := r.URL.Query().Get("q"); q != "" {
		jsonResponse(w, http.StatusOK, model.SelectHolder(holders, q))
		return
	}
	if holders == nil {
		holders = []model.Holder{}
	}
	jsonResponse(w, http.StatusOK, holders)
}

// Create handles POST /api/holders.
func (h *HoldersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHolderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	a := actor(r)
	holder, err := mutation.Create(r.Context(), h.Protocol, h.Data.Holders(), &model.Holder{
		UnitID: a.UnitID,
		Name:   req.Name,
		Rank:   req.Rank,
		UserID: req.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("holder created", "user", a.UserID, "holder", holder.Name, "id", holder.ID)
	jsonResponse(w, http.StatusCreated, holder)
}
