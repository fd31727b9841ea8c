package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/background"
	"github.com/invoiceflow/gatehouse/internal/cache"
	"github.com/invoiceflow/gatehouse/internal/config"
	"github.com/invoiceflow/gatehouse/internal/database"
	"github.com/invoiceflow/gatehouse/internal/handlers"
	middlewareCustom "github.com/invoiceflow/gatehouse/internal/middleware"
	"github.com/invoiceflow/gatehouse/internal/models"
	"github.com/invoiceflow/gatehouse/internal/repositories"
	"github.com/invoiceflow/gatehouse/internal/routes"
	"github.com/invoiceflow/gatehouse/internal/services"
	pkgauth "github.com/invoiceflow/gatehouse/pkg/auth"
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
	pkglogger "github.com/invoiceflow/gatehouse/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Redis backs the throttle counters. The throttle fails open when the
	// store goes away mid-flight, but refusing to start without it would
	// hide a misconfigured address until the first incident.
	rdb, err := cache.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	profileRepo := repositories.NewSecondFactorRepository(db)

	counterStore := cache.NewCounterStore(rdb)
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Background workers for post-login session bookkeeping
	runner := background.NewRunner(4, 256, 30*time.Second, logger)

	// Initialize services
	throttleService := services.NewThrottleService(counterStore, attemptRepo, services.ThrottleConfig{
		Threshold: cfg.Auth.ThrottleThreshold,
		Window:    cfg.Auth.ThrottleWindow,
	}, logger)

	sessionService := services.NewSessionService(sessionRepo, accountRepo, runner, services.SessionServiceConfig{
		IdleLifetime:  cfg.Session.IdleLifetime,
		MaxLifetime:   cfg.Session.MaxLifetime,
		TouchInterval: cfg.Session.TouchInterval,
	}, logger, auditLogger)

	totpManager, err := auth.NewTOTPManager(cfg.SecondFactor.EncryptionKey, cfg.SecondFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	secondFactorService := services.NewSecondFactorService(profileRepo, sessionService, totpManager, services.SecondFactorConfig{
		RecoveryCodeCount: cfg.SecondFactor.RecoveryCodeCount,
	}, logger, auditLogger)

	authService := services.NewAuthService(accountRepo, throttleService, sessionService, secondFactorService, auth.TimingConfig{
		Floor:  cfg.Auth.TimingFloor,
		Jitter: cfg.Auth.TimingJitter,
	}, logger, auditLogger)

	// CSRF tokens live as long as an idle session could
	csrfManager := auth.NewCSRFTokenManager(cfg.Session.IdleLifetime)

	// Session cleanup task
	cleanupManager := background.NewCleanupManager(sessionService, logger, cfg.Session.CleanupInterval)

	cookieConfig := auth.CookieConfig{
		SessionName: cfg.Session.CookieName,
		Domain:      cfg.Session.CookieDomain,
		Secure:      cfg.Session.CookieSecure,
		SameSite:    cfg.Session.CookieSameSite,
	}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, csrfManager, cookieConfig,
		int(cfg.Session.MaxLifetime.Seconds()), ipConfig, logger)
	sessionsHandler := handlers.NewSessionsHandler(sessionService, csrfManager, logger)
	secondFactorHandler := handlers.NewSecondFactorHandler(secondFactorService, logger)
	healthHandler := handlers.NewHealthHandler(db, handlers.PingFunc(func(ctx context.Context) error {
		return cache.HealthCheck(ctx, rdb)
	}), logger)

	// Bootstrap first account if configured
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureBootstrapAccount(bootstrapCtx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure bootstrap account", slog.Any("error", err))
	}
	bootstrapCancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(auth.SessionMiddleware(sessionService, cookieConfig, logger))
	router.Use(middlewareCustom.CSRFProtection(csrfManager, logger))
	router.Use(middlewareCustom.SecondFactorGate(secondFactorService, middlewareCustom.SecondFactorGateConfig{
		Enforce:     cfg.SecondFactor.Enforce,
		VerifyPath:  cfg.SecondFactor.VerifyPath,
		ExemptPaths: cfg.SecondFactor.ExemptPaths,
	}, logger))

	// Register routes
	routes.RegisterRoutes(router, authHandler, sessionsHandler, secondFactorHandler, healthHandler)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// In-flight requests are done; drain queued session bookkeeping before
	// the database connections go away
	cleanupCancel()
	cleanupManager.Stop()
	runner.Stop()

	logger.Info("server stopped gracefully")
}

// ensureBootstrapAccount creates the first account if BOOTSTRAP_USERNAME and
// BOOTSTRAP_PASSWORD are set. Accounts otherwise arrive through platform
// provisioning, not through this service.
func ensureBootstrapAccount(ctx context.Context, accountRepo *repositories.AccountRepository, logger *slog.Logger) error {
	username := os.Getenv("BOOTSTRAP_USERNAME")
	password := os.Getenv("BOOTSTRAP_PASSWORD")

	if username == "" || password == "" {
		logger.Info("no BOOTSTRAP_USERNAME or BOOTSTRAP_PASSWORD set, skipping bootstrap account creation")
		return nil
	}

	_, err := accountRepo.GetByUsername(ctx, username)
	if err == nil {
		logger.Info("bootstrap account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if bootstrap account exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	account := &models.Account{
		Username:     username,
		PasswordHash: hashedPassword,
		Active:       true,
	}

	if _, err := accountRepo.Create(ctx, account); err != nil {
		return fmt.Errorf("failed to create bootstrap account: %w", err)
	}

	logger.Info("bootstrap account created successfully")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
