package http

import (
	"encoding/json"
	"net/http"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/pkg/httpx"
)

// RegistrationHandler serves the pre-registration guard.
type RegistrationHandler struct {
	RegistrationService *service.RegistrationService
}

type registrationGuardRequest struct {
	Email string `json:"email"`

	// Website is the hidden honeypot field; humans leave it empty.
	Website string `json:"website,omitempty"`

	// UserAgent overrides the transport header, letting a dry run
	// simulate the registrant's client rather than the admin's own.
	UserAgent string `json:"userAgent,omitempty"`

	// TestMode requests an admin-only dry run: all checks evaluated,
	// nothing mutated, every would-block reason returned.
	TestMode bool `json:"testMode,omitempty"`
}

type registrationGuardResponse struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// HandleGuard handles POST /v1/register/guard. The signup flow calls
// this before creating an account; a non-2xx response means the
// attempt must be rejected.
func (h *RegistrationHandler) HandleGuard(w http.ResponseWriter, r *http.Request) {
	var req registrationGuardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w)
		return
	}

	caller := callerFromRequest(r)
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = caller.UserAgent
	}
	attempt := domain.RegistrationAttempt{
		Email:     req.Email,
		Honeypot:  req.Website,
		UserAgent: userAgent,
		IP:        caller.IP,
	}

	var (
		decision domain.GuardDecision
		err      error
	)
	if req.TestMode {
		decision, err = h.RegistrationService.DryRun(r.Context(), caller, attempt)
	} else {
		decision, err = h.RegistrationService.PreRegister(r.Context(), attempt)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, registrationGuardResponse{
		Allowed: decision.Allowed,
		Reasons: decision.Reasons,
	})
}
