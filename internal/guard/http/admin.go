package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/pkg/httpx"
)

// AdminHandler serves elevation and allowlist administration.
type AdminHandler struct {
	AdminService *service.AdminService
}

type setClaimsRequest struct {
	// UID of the target account; empty means self.
	UID string `json:"uid,omitempty"`

	// Email hint; when present it must match the target account.
	Email string `json:"email,omitempty"`
}

type setClaimsResponse struct {
	Success     bool   `json:"success"`
	TargetUID   string `json:"targetUid"`
	TargetEmail string `json:"targetEmail"`
	ActorUID    string `json:"actorUid"`
}

type allowlistDocument struct {
	AdminEmails         []string  `json:"adminEmails"`
	AdminUserIDs        []string  `json:"adminUserIds"`
	BlockedEmailDomains []string  `json:"blockedEmailDomains"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
}

// HandleSetClaims handles POST /v1/admin/claims.
func (h *AdminHandler) HandleSetClaims(w http.ResponseWriter, r *http.Request) {
	var req setClaimsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w)
		return
	}

	elevation, err := h.AdminService.SetAdminClaims(r.Context(), callerFromRequest(r), req.UID, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, setClaimsResponse{
		Success:     true,
		TargetUID:   elevation.TargetUID,
		TargetEmail: elevation.TargetEmail,
		ActorUID:    elevation.ActorUID,
	})
}

// HandleGetAllowlist handles GET /v1/admin/allowlist.
func (h *AdminHandler) HandleGetAllowlist(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.AdminService.Allowlist(r.Context(), callerFromRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, allowlistFromDomain(cfg))
}

// HandlePutAllowlist handles PUT /v1/admin/allowlist, replacing the
// whole document.
func (h *AdminHandler) HandlePutAllowlist(w http.ResponseWriter, r *http.Request) {
	var req allowlistDocument
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w)
		return
	}

	cfg, err := h.AdminService.UpdateAllowlist(r.Context(), callerFromRequest(r), domain.AllowlistConfig{
		AdminEmails:         req.AdminEmails,
		AdminUserIDs:        req.AdminUserIDs,
		BlockedEmailDomains: req.BlockedEmailDomains,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, allowlistFromDomain(cfg))
}

func allowlistFromDomain(cfg domain.AllowlistConfig) allowlistDocument {
	return allowlistDocument{
		AdminEmails:         cfg.AdminEmails,
		AdminUserIDs:        cfg.AdminUserIDs,
		BlockedEmailDomains: cfg.BlockedEmailDomains,
		UpdatedAt:           cfg.UpdatedAt,
	}
}
