package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/reconcile"
)

// ReconcileHandler runs the administrative cleanup jobs.
type ReconcileHandler struct {
	Data     *data.Access
	Protocol *mutation.Protocol
}

// Duplicates handles POST /api/reconcile/duplicates.
func (h *ReconcileHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	report, err := reconcile.CollapseDuplicates(r.Context(), h.Protocol, h.Data.Equipment())
	h.respond(w, r, "duplicates", report, err)
}

// Orphans handles POST /api/reconcile/orphans.
func (h *ReconcileHandler) Orphans(w http.ResponseWriter, r *http.Request) {
	report, err := reconcile.ReleaseOrphans(r.Context(), h.Protocol, h.Data.Equipment(), h.Data.Groups())
	h.respond(w, r, "orphans", report, err)
}

func (h *ReconcileHandler) respond(w http.ResponseWriter, r *http.Request, job string, report reconcile.Report, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if report.Changed == nil {
		report.Changed = []string{}
	}
	slog.Info("reconciliation finished", "user", actor(r).UserID, "job", job,
		"examined", report.Examined, "changed", len(report.Changed))
	jsonResponse(w, http.StatusOK, report)
}
