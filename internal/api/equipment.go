package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/inventura/internal/accountability"
	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/store"
)

// EquipmentHandler handles the equipment endpoints the accountability
// workflow needs. Full catalog management lives elsewhere.
type EquipmentHandler struct {
	Data     *data.Access
	Protocol *mutation.Protocol
	Engine   *accountability.Engine
}

type createEquipmentRequest struct {
	NSN               string `json:"nsn"`
	Nomenclature      string `json:"nomenclature"`
	SerialNumber      string `json:"serial_number"`
	StockNumber       string `json:"stock_number"`
	Location          string `json:"location"`
	MaintenanceStatus string `json:"maintenance_status"`
}

type assignHolderRequest struct {
	Query string `json:"query"`
}

type assignHolderError struct {
	errorResponse
	Selection model.HolderSelection `json:"selection"`
}

func validMaintenanceStatus(s string) bool {
	switch s {
	case model.MaintenanceOperational, model.MaintenanceDegraded,
		model.MaintenanceNonMissionCapable, model.MaintenanceInMaintenance:
		return true
	}
	return false
}

// List handles GET /api/equipment.
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{"unit_id": actor(r).UnitID}
	for _, key := range []string{"nsn", "holder_id", "group_id"} {
		if v := r.URL.Query().Get(key); v != "" {
			filter[key] = v
		}
	}
	list, err := h.Data.Equipment().Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Equipment{}
	}
	jsonResponse(w, http.StatusOK, list)
}

// Create handles POST /api/equipment.
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEquipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.NSN == "" || req.Nomenclature == "" {
		jsonError(w, http.StatusBadRequest, "nsn and nomenclature required")
		return
	}
	if req.SerialNumber != "" {
		if err := model.ValidateSerial(req.SerialNumber); err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.MaintenanceStatus == "" {
		req.MaintenanceStatus = model.MaintenanceOperational
	}
	if !validMaintenanceStatus(req.MaintenanceStatus) {
		jsonError(w, http.StatusBadRequest, "invalid maintenance_status")
		return
	}

	a := actor(r)
	e, err := mutation.Create(r.Context(), h.Protocol, h.Data.Equipment(), &model.Equipment{
		UnitID:            a.UnitID,
		NSN:               req.NSN,
		Nomenclature:      req.Nomenclature,
		SerialNumber:      req.SerialNumber,
		StockNumber:       req.StockNumber,
		Location:          req.Location,
		MaintenanceStatus: req.MaintenanceStatus,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("equipment created", "user", a.UserID, "id", e.ID, "nsn", e.NSN)
	jsonResponse(w, http.StatusCreated, e)
}

// Get handles GET /api/equipment/{id}.
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.Data.Equipment().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if e.UnitID != actor(r).UnitID {
		writeError(w, r, apperr.Unauthorized("equipment %s belongs to another unit", e.ID))
		return
	}
	jsonResponse(w, http.StatusOK, e)
}

// AssignHolder handles PUT /api/equipment/{id}/holder. When the query does not
// resolve to exactly one holder the candidates are returned with the error.
func (h *EquipmentHandler) AssignHolder(w http.ResponseWriter, r *http.Request) {
	var req assignHolderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, sel, err := h.Engine.AssignHolder(r.Context(), actor(r), r.PathValue("id"), req.Query)
	if err != nil {
		if sel.Outcome == model.SelectionAmbiguous || sel.Outcome == model.SelectionNone {
			status, body := errorBody(err)
			jsonResponse(w, status, assignHolderError{errorResponse: body, Selection: sel})
			return
		}
		writeError(w, r, err)
		return
	}

	slog.Info("holder assigned", "user", actor(r).UserID, "equipment_id", e.ID, "holder_id", e.HolderID)
	jsonResponse(w, http.StatusOK, e)
}
