package http

import (
	"net/http"

	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/pkg/httpx"
)

// MaintenanceHandler exposes manual triggers for the scheduled jobs,
// for operators who do not want to wait for the next window. Admin-only.
type MaintenanceHandler struct {
	MaintenanceService *service.MaintenanceService
	PolicyService      *service.PolicyService
}

// HandleAggregate handles POST /v1/maintenance/aggregate: rolls up the
// previous UTC day immediately.
func (h *MaintenanceHandler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	if _, err := h.PolicyService.RequireAdminOrAllowlisted(r.Context(), callerFromRequest(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	rollup, err := h.MaintenanceService.Audit.AggregatePreviousDay(r.Context())
	if err != nil {
		writeServiceError(w, r, service.Internal(err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":   rollup.DateKey,
		"events": rollup.Total,
	})
}

// HandleCleanup handles POST /v1/maintenance/cleanup: runs retention
// deletion immediately.
func (h *MaintenanceHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if _, err := h.PolicyService.RequireAdminOrAllowlisted(r.Context(), callerFromRequest(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	deleted, err := h.MaintenanceService.Audit.CleanupRetention(r.Context())
	if err != nil {
		writeServiceError(w, r, service.Internal(err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
