package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/merchhq/storeguard/internal/guard/http"
	"github.com/merchhq/storeguard/internal/guard/service"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/internal/guard/store/drivers/sqlite"
	"github.com/merchhq/storeguard/pkg/cryptox"
	"github.com/merchhq/storeguard/pkg/jwtx"
	"github.com/merchhq/storeguard/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the guard service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	verifier jwtx.Verifier

	policyService       *service.PolicyService
	totpService         *service.TOTPService
	backupCodeService   *service.BackupCodeService
	adminService        *service.AdminService
	registrationService *service.RegistrationService
	auditService        *service.AuditService
	maintenanceService  *service.MaintenanceService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "guard-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initVerifier(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.maintenanceService.Start()

	app.logger.Info("guard service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down guard service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.maintenanceService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("guard service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initVerifier() error {
	if app.cfg.VerificationKeyFile == "" {
		return fmt.Errorf("GUARD_VERIFICATION_KEY_FILE is required")
	}

	pemBytes, err := os.ReadFile(app.cfg.VerificationKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read verification key: %w", err)
	}

	verifier, err := jwtx.NewVerifier(pemBytes, app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to load verification key: %w", err)
	}
	app.verifier = verifier
	return nil
}

func (app *Application) initServices() error {
	app.policyService = &service.PolicyService{Store: app.db}

	app.auditService = &service.AuditService{
		Store:           app.db,
		RetentionWindow: app.cfg.RetentionWindow,
	}

	app.totpService = &service.TOTPService{
		Store:  app.db,
		Policy: app.policyService,
		Audit:  app.auditService,
		Issuer: app.cfg.Issuer,
	}

	app.backupCodeService = &service.BackupCodeService{
		Store:  app.db,
		Policy: app.policyService,
		Audit:  app.auditService,
	}

	app.adminService = &service.AdminService{
		Store:                app.db,
		Policy:               app.policyService,
		Audit:                app.auditService,
		BootstrapAdminEmails: app.cfg.BootstrapAdminEmails,
	}

	keySalt := app.cfg.RateLimitKeySalt
	if keySalt == "" {
		// A per-boot salt keeps keys unlinkable across restarts; set
		// GUARD_RATE_LIMIT_KEY_SALT to make windows survive restarts.
		salt, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return fmt.Errorf("failed to generate rate limit key salt: %w", err)
		}
		keySalt = salt
	}

	app.registrationService = &service.RegistrationService{
		Store:           app.db,
		Policy:          app.policyService,
		Audit:           app.auditService,
		KeySalt:         keySalt,
		RateLimitMax:    app.cfg.RateLimitMax,
		RateLimitWindow: app.cfg.RateLimitWindow,
	}

	app.maintenanceService = service.NewMaintenanceService(app.auditService, app.logger)
	app.maintenanceService.AggregateHour = app.cfg.AggregateHour
	app.maintenanceService.CleanupHour = app.cfg.CleanupHour

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.PolicyService = app.policyService
	router.TOTPService = app.totpService
	router.BackupCodeService = app.backupCodeService
	router.AdminService = app.adminService
	router.RegistrationService = app.registrationService
	router.AuditService = app.auditService
	router.MaintenanceService = app.maintenanceService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
