package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit is the flood backstop for the auth endpoints.
// The credential throttle is the real lockout control; this limit only
// sheds raw request floods, so it sits well above the throttle threshold
// to keep locked-out attempts reaching the throttle's audit trail.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 30,
		Window:   1 * time.Minute,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests, slow down")
		}),
	)
}
