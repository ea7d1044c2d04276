package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/pkg/httpx"
)

// TOTPHandler serves the TOTP enrollment lifecycle.
type TOTPHandler struct {
	TOTPService *service.TOTPService
}

type totpSecretResponse struct {
	OtpauthURL string `json:"otpauthUrl"`
	QRDataURL  string `json:"qrDataUrl"`
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

type totpStatusResponse struct {
	Enabled              bool `json:"enabled"`
	HasBackupCodes       bool `json:"hasBackupCodes"`
	RemainingBackupCodes int  `json:"remainingBackupCodes"`
}

type totpReauthResponse struct {
	Success    bool      `json:"success"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// HandleGenerateSecret handles POST /v1/totp/secret.
func (h *TOTPHandler) HandleGenerateSecret(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.TOTPService.GenerateSecret(r.Context(), callerFromRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, totpSecretResponse{
		OtpauthURL: enrollment.OtpauthURL,
		QRDataURL:  enrollment.QRDataURL,
	})
}

// HandleVerify handles POST /v1/totp/verify: confirms the provisioned
// secret and enables TOTP.
func (h *TOTPHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req totpCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w)
		return
	}

	if err := h.TOTPService.VerifyAndEnable(r.Context(), callerFromRequest(r), req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleDisable handles DELETE /v1/totp.
func (h *TOTPHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	if err := h.TOTPService.Disable(r.Context(), callerFromRequest(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleStatus handles GET /v1/totp/status.
func (h *TOTPHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.TOTPService.Status(r.Context(), callerFromRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, totpStatusResponse{
		Enabled:              status.Enabled,
		HasBackupCodes:       status.HasBackupCodes,
		RemainingBackupCodes: status.RemainingBackupCodes,
	})
}

// HandleReauth handles POST /v1/totp/reauth: re-verifies a code for an
// already-enrolled account before a sensitive action.
func (h *TOTPHandler) HandleReauth(w http.ResponseWriter, r *http.Request) {
	var req totpCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w)
		return
	}

	verifiedAt, err := h.TOTPService.VerifyForElevatedAction(r.Context(), callerFromRequest(r), req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, totpReauthResponse{
		Success:    true,
		VerifiedAt: verifiedAt,
	})
}
