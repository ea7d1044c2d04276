package http

import (
	"net/http"
	"strconv"

	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/pkg/httpx"
)

const maxStatsDays = 90

// StatsHandler serves the rollup-backed reporting endpoints. Both are
// admin-only.
type StatsHandler struct {
	AuditService  *service.AuditService
	PolicyService *service.PolicyService
}

// HandleRegistrationBlocks handles GET /v1/stats/registration-blocks.
// Accepts ?days=N (default 7, capped at 90).
func (h *StatsHandler) HandleRegistrationBlocks(w http.ResponseWriter, r *http.Request) {
	if _, err := h.PolicyService.RequireAdminOrAllowlisted(r.Context(), callerFromRequest(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	stats, err := h.AuditService.RegistrationBlockStats(r.Context(), daysParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, stats)
}

// HandleSecurityLogs handles GET /v1/stats/security-logs. Accepts
// ?days=N (default 7, capped at 90).
func (h *StatsHandler) HandleSecurityLogs(w http.ResponseWriter, r *http.Request) {
	if _, err := h.PolicyService.RequireAdminOrAllowlisted(r.Context(), callerFromRequest(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	stats, err := h.AuditService.SecurityLogsDailyStats(r.Context(), daysParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, stats)
}

func daysParam(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		return 0 // service default
	}
	return min(days, maxStatsDays)
}
