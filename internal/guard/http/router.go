package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/pkg/httpx"
	"github.com/merchhq/storeguard/pkg/jwtx"
	"github.com/merchhq/storeguard/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store               store.Store
	PolicyService       *service.PolicyService
	TOTPService         *service.TOTPService
	BackupCodeService   *service.BackupCodeService
	AdminService        *service.AdminService
	RegistrationService *service.RegistrationService
	AuditService        *service.AuditService
	MaintenanceService  *service.MaintenanceService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Global chain: request logging first, then identity extraction.
	// Identity is optional at the transport level; the policy engine
	// decides per operation.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.AuthnMiddleware(r.verifier),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerTOTP()
	r.registerBackupCodes()
	r.registerAdmin()
	r.registerRegistration()
	r.registerStats()
	r.registerMaintenance()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerTOTP() {
	h := &TOTPHandler{TOTPService: r.TOTPService}

	// Secret generation and status are cheap per-user operations.
	r.Mux.Handle("POST /v1/totp/secret",
		httpx.Chain(http.HandlerFunc(h.HandleGenerateSecret),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/totp/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// Code verification endpoints are brute-forceable, so strict.
	r.Mux.Handle("POST /v1/totp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/totp/reauth",
		httpx.Chain(http.HandlerFunc(h.HandleReauth),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("DELETE /v1/totp",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerBackupCodes() {
	h := &BackupCodesHandler{BackupCodeService: r.BackupCodeService}

	r.Mux.Handle("POST /v1/totp/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleGenerate),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Redemption is a guessable credential check, so strict.
	r.Mux.Handle("POST /v1/backup-codes/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{AdminService: r.AdminService}

	r.Mux.Handle("POST /v1/admin/claims",
		httpx.Chain(http.HandlerFunc(h.HandleSetClaims),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /v1/admin/allowlist",
		httpx.Chain(http.HandlerFunc(h.HandleGetAllowlist),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("PUT /v1/admin/allowlist",
		httpx.Chain(http.HandlerFunc(h.HandlePutAllowlist),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerRegistration() {
	h := &RegistrationHandler{RegistrationService: r.RegistrationService}

	// Public signup pre-check. The durable counter inside the service
	// is the limiter of record; this transport limit just absorbs
	// bursts.
	r.Mux.Handle("POST /v1/register/guard",
		httpx.Chain(http.HandlerFunc(h.HandleGuard),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerStats() {
	h := &StatsHandler{AuditService: r.AuditService, PolicyService: r.PolicyService}

	r.Mux.Handle("GET /v1/stats/registration-blocks",
		httpx.Chain(http.HandlerFunc(h.HandleRegistrationBlocks),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/stats/security-logs",
		httpx.Chain(http.HandlerFunc(h.HandleSecurityLogs),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMaintenance() {
	h := &MaintenanceHandler{MaintenanceService: r.MaintenanceService, PolicyService: r.PolicyService}

	r.Mux.Handle("POST /v1/maintenance/aggregate",
		httpx.Chain(http.HandlerFunc(h.HandleAggregate),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/maintenance/cleanup",
		httpx.Chain(http.HandlerFunc(h.HandleCleanup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
