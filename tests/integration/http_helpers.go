package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/background"
	"github.com/invoiceflow/gatehouse/internal/cache"
	"github.com/invoiceflow/gatehouse/internal/config"
	"github.com/invoiceflow/gatehouse/internal/database"
	"github.com/invoiceflow/gatehouse/internal/handlers"
	middlewareCustom "github.com/invoiceflow/gatehouse/internal/middleware"
	"github.com/invoiceflow/gatehouse/internal/routes"
	"github.com/invoiceflow/gatehouse/internal/services"
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
	pkglogger "github.com/invoiceflow/gatehouse/pkg/logger"
)

// TestServer wraps httptest.Server with the full middleware chain, a real
// database, and a miniredis-backed throttle
type TestServer struct {
	Server      *httptest.Server
	DB          *database.DB
	Redis       *miniredis.Miniredis
	Config      *config.Config
	CSRFManager *auth.CSRFTokenManager

	client    *http.Client
	csrfToken string
	rdb       *redis.Client
	runner    *background.Runner
	logger    *slog.Logger
}

// NewTestServer initializes a complete HTTP server against the given database
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Auth: config.AuthConfig{
			ThrottleThreshold: 5,
			ThrottleWindow:    15 * time.Minute,
			// No timing floor; padding every failed login would slow the suite
			TimingFloor:  0,
			TimingJitter: 0,
		},
		Session: config.SessionConfig{
			CookieName:     "gatehouse_session",
			CookieSecure:   false,
			CookieSameSite: "lax",
			IdleLifetime:   14 * 24 * time.Hour,
			MaxLifetime:    30 * 24 * time.Hour,
			TouchInterval:  time.Minute,
		},
		SecondFactor: config.SecondFactorConfig{
			Enforce:           true,
			Issuer:            "GatehouseTest",
			EncryptionKey:     []byte("test-2fa-encryption-key-32-bytes"),
			RecoveryCodeCount: 8,
			VerifyPath:        "/auth/2fa/verify",
			ExemptPaths:       []string{"/auth/login", "/auth/logout", "/auth/2fa/verify", "/healthz"},
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
	}

	accountRepo, sessionRepo, attemptRepo, profileRepo := InitializeRepositories(db)

	counterStore := cache.NewCounterStore(rdb)
	auditLogger := pkglogger.NewAuditLogger(logger)
	runner := background.NewRunner(2, 64, 5*time.Second, logger)

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
		mr.Close()
		return nil, fmt.Errorf("failed to create TOTP manager: %w", err)
	}

	secondFactorService := services.NewSecondFactorService(profileRepo, sessionService, totpManager, services.SecondFactorConfig{
		RecoveryCodeCount: cfg.SecondFactor.RecoveryCodeCount,
	}, logger, auditLogger)

	authService := services.NewAuthService(accountRepo, throttleService, sessionService, secondFactorService, auth.TimingConfig{
		Floor:  cfg.Auth.TimingFloor,
		Jitter: cfg.Auth.TimingJitter,
	}, logger, auditLogger)

	csrfManager := auth.NewCSRFTokenManager(time.Hour)

	cookieConfig := auth.CookieConfig{
		SessionName: cfg.Session.CookieName,
		Secure:      cfg.Session.CookieSecure,
		SameSite:    cfg.Session.CookieSameSite,
	}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	authHandler := handlers.NewAuthHandler(authService, csrfManager, cookieConfig,
		int(cfg.Session.MaxLifetime.Seconds()), ipConfig, logger)
	sessionsHandler := handlers.NewSessionsHandler(sessionService, csrfManager, logger)
	secondFactorHandler := handlers.NewSecondFactorHandler(secondFactorService, logger)
	healthHandler := handlers.NewHealthHandler(db, handlers.PingFunc(func(ctx context.Context) error {
		return cache.HealthCheck(ctx, rdb)
	}), logger)

	// Production chain minus CORS; the in-process client is same-origin
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(middlewareCustom.RequestLogger(logger))
	r.Use(auth.SessionMiddleware(sessionService, cookieConfig, logger))
	r.Use(middlewareCustom.CSRFProtection(csrfManager, logger))
	r.Use(middlewareCustom.SecondFactorGate(secondFactorService, middlewareCustom.SecondFactorGateConfig{
		Enforce:     cfg.SecondFactor.Enforce,
		VerifyPath:  cfg.SecondFactor.VerifyPath,
		ExemptPaths: cfg.SecondFactor.ExemptPaths,
	}, logger))

	routes.RegisterRoutes(r, authHandler, sessionsHandler, secondFactorHandler, healthHandler)

	server := httptest.NewServer(r)

	// Cookie jar carries the session and CSRF cookies between requests;
	// redirects stay observable instead of being followed
	jar, err := cookiejar.New(nil)
	if err != nil {
		server.Close()
		mr.Close()
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &TestServer{
		Server:      server,
		DB:          db,
		Redis:       mr,
		Config:      cfg,
		CSRFManager: csrfManager,
		client:      client,
		rdb:         rdb,
		runner:      runner,
		logger:      logger,
	}, nil
}

// Close shuts down the test server and its dependencies
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.CSRFManager != nil {
		ts.CSRFManager.Stop()
	}
	if ts.runner != nil {
		ts.runner.Stop()
	}
	if ts.rdb != nil {
		ts.rdb.Close()
	}
	if ts.Redis != nil {
		ts.Redis.Close()
	}
}

// Request makes an HTTP request through the cookie-jar client. The CSRF
// token from the most recent Login is attached automatically.
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if ts.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", ts.csrfToken)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return ts.client.Do(req)
}

// Login performs the login flow and remembers the CSRF token for
// subsequent state-changing requests
func (ts *TestServer) Login(username, password string) (*handlers.LoginResponse, *http.Response, error) {
	resp, err := ts.Request("POST", "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp, nil
	}

	var loginResp handlers.LoginResponse
	if err := ParseJSONResponse(resp, &loginResp); err != nil {
		return nil, resp, fmt.Errorf("failed to parse login response: %w", err)
	}

	ts.csrfToken = loginResp.CSRFToken
	return &loginResp, resp, nil
}

// RequestWithBearer makes a request authenticated by Authorization header
// instead of the cookie jar
func (ts *TestServer) RequestWithBearer(method, path, token string, body interface{}) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	bare := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return bare.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorCode extracts the machine-readable code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp pkghttp.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	return errResp.Error, nil
}
