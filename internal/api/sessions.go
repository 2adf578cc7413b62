package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/inventura/internal/accountability"
	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/store"
)

// keepAliveInterval spaces the comment lines sent on idle event streams.
const keepAliveInterval = 15 * time.Second

// SessionsHandler handles accountability sessions and their items.
type SessionsHandler struct {
	Engine *accountability.Engine
	Data   *data.Access
}

type startSessionRequest struct {
	EquipmentIDs []string `json:"equipment_ids"`
}

type markRequest struct {
	Method string `json:"method"`
}

type sessionResponse struct {
	Session model.Session              `json:"session"`
	Items   []model.AccountabilityItem `json:"items"`
}

type itemResponse struct {
	Item    *model.AccountabilityItem `json:"item"`
	Session *model.Session            `json:"session"`
}

// List handles GET /api/sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{"unit_id": actor(r).UnitID}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}
	sessions, err := h.Data.Sessions().Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	jsonResponse(w, http.StatusOK, sessions)
}

// Start handles POST /api/sessions.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	active, err := h.Engine.Start(r.Context(), actor(r), req.EquipmentIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Clients follow the session through the event stream instead.
	defer active.Close()

	jsonResponse(w, http.StatusCreated, sessionResponse{Session: active.Session(), Items: active.Items()})
}

// Get handles GET /api/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, items, err := h.Engine.Get(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.AccountabilityItem{}
	}
	jsonResponse(w, http.StatusOK, sessionResponse{Session: *s, Items: items})
}

// Complete handles POST /api/sessions/{id}/complete.
func (h *SessionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Engine.Complete(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}

// MarkAccountedFor handles POST /api/items/{id}/account.
func (h *SessionsHandler) MarkAccountedFor(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	it, s, err := h.Engine.MarkAccountedFor(r.Context(), actor(r), r.PathValue("id"), req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, itemResponse{Item: it, Session: s})
}

// Events handles GET /api/sessions/{id}/events as a server-sent event stream
// of item and session changes. The stream ends when the client goes away or
// the hub closes because the server went offline.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, _, err := h.Engine.Get(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	hub := h.Data.Hub()
	if hub == nil {
		writeError(w, r, apperr.New(apperr.CodeNetworkUnavailable, "live updates are disabled"))
		return
	}
	sub, err := hub.Subscribe(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer sub.Cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Warn("event stream cannot flush", "session_id", id, "error", err)
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("encoding event", "session_id", id, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
