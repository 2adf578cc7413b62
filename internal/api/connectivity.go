package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/replica"
)

// ConnectivityHandler switches between the remote store and the local
// replica.
type ConnectivityHandler struct {
	Conn    *connectivity.Controller
	Replica *replica.Manager
}

type connectivityRequest struct {
	Mode string `json:"mode"`
}

type connectivityResponse struct {
	Mode      connectivity.Mode `json:"mode"`
	Pending   int               `json:"pending"`
	SyncError string            `json:"sync_error,omitempty"`
}

func (h *ConnectivityHandler) status() connectivityResponse {
	return connectivityResponse{
		Mode:    h.Conn.CurrentMode(),
		Pending: len(h.Replica.Replica().Pending()),
	}
}

// Get handles GET /api/connectivity.
func (h *ConnectivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.status())
}

// Set handles PUT /api/connectivity. The mode switches even if syncing the
// replica fails; the failure is reported alongside the new mode.
func (h *ConnectivityHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := connectivity.ParseMode(req.Mode)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	syncErr := h.Conn.SetMode(r.Context(), mode == connectivity.Online)
	resp := h.status()
	if syncErr != nil {
		if resp.Mode != mode {
			writeError(w, r, syncErr)
			return
		}
		slog.Warn("replica sync failed after mode switch", "mode", mode, "error", syncErr)
		resp.SyncError = syncErr.Error()
	}
	slog.Info("connectivity mode set", "user", actor(r).UserID, "mode", resp.Mode)
	jsonResponse(w, http.StatusOK, resp)
}

// Resync handles POST /api/replica/resync.
func (h *ConnectivityHandler) Resync(w http.ResponseWriter, r *http.Request) {
	if !h.Conn.Online() {
		writeError(w, r, apperr.InvalidState("resync needs online mode"))
		return
	}
	if err := h.Replica.Resync(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.status())
}
