package http

import (
	"encoding/json"
	"net/http"

	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/pkg/httpx"
)

// BackupCodesHandler serves recovery-code generation and redemption.
type BackupCodesHandler struct {
	BackupCodeService *service.BackupCodeService
}

type backupCodesResponse struct {
	// Codes are shown exactly once; only salted hashes are stored.
	Codes []string `json:"codes"`
}

type backupCodeVerifyRequest struct {
	Code string `json:"code"`
}

// HandleGenerate handles POST /v1/totp/backup-codes. Any previous set
// is replaced.
func (h *BackupCodesHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	codes, err := h.BackupCodeService.Generate(r.Context(), callerFromRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{Codes: codes})
}

// HandleVerify handles POST /v1/backup-codes/verify: consumes one
// single-use code.
func (h *BackupCodesHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req backupCodeVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w)
		return
	}

	if err := h.BackupCodeService.Verify(r.Context(), callerFromRequest(r), req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
