package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/handlers"
	"github.com/invoiceflow/gatehouse/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionsHandler *handlers.SessionsHandler,
	secondFactorHandler *handlers.SecondFactorHandler,
	healthHandler *handlers.HealthHandler,
) {
	// Flood backstop for the login endpoint; the credential throttle
	// inside the service is the real lockout control
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no session required
	router.Get("/healthz", healthHandler.Check)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)

	// Logout succeeds with or without a live session
	router.Post("/auth/logout", authHandler.Logout)

	// Protected routes - resolved session required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAccount())

		r.Post("/auth/password", authHandler.ChangePassword)

		r.Get("/auth/sessions", sessionsHandler.List)
		r.Delete("/auth/sessions", sessionsHandler.RevokeAll)
		r.Delete("/auth/sessions/{sessionID}", sessionsHandler.Revoke)

		r.Post("/auth/2fa/setup", secondFactorHandler.Setup)
		r.Post("/auth/2fa/enable", secondFactorHandler.Enable)
		r.Post("/auth/2fa/verify", secondFactorHandler.Verify)
		r.Post("/auth/2fa/disable", secondFactorHandler.Disable)
		r.Get("/auth/2fa/status", secondFactorHandler.Status)
	})
}
