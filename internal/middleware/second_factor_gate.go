package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/invoiceflow/gatehouse/internal/auth"
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
)

// SecondFactorChecker reports whether an account has an enabled second factor
type SecondFactorChecker interface {
	Enabled(ctx context.Context, accountID string) (bool, error)
}

// SecondFactorGateConfig controls the gate decision.
// ExemptPaths entries ending in "/" match as prefixes; everything else
// must match exactly. Routes are gated unless explicitly exempted.
type SecondFactorGateConfig struct {
	Enforce     bool
	VerifyPath  string
	ExemptPaths []string
}

// SecondFactorGate holds sessions that have not completed second-factor
// verification away from application handlers. Runs after session
// resolution. Pass-through order:
//   - enforcement disabled at startup
//   - unauthenticated request (login enforcement lives elsewhere)
//   - exempt path
//   - session already verified
//   - account has no enabled second factor
//
// Everything else is challenged: browsers get a 303 to the verification
// page, API clients a 403 naming it.
func SecondFactorGate(checker SecondFactorChecker, cfg SecondFactorGateConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enforce {
				next.ServeHTTP(w, r)
				return
			}

			account := auth.GetAccountFromContext(r)
			if account == nil {
				next.ServeHTTP(w, r)
				return
			}

			if pathExempt(r.URL.Path, cfg.ExemptPaths) {
				next.ServeHTTP(w, r)
				return
			}

			session := auth.GetSessionFromContext(r)
			if session != nil && session.SecondFactorVerified {
				next.ServeHTTP(w, r)
				return
			}

			enabled, err := checker.Enabled(r.Context(), account.ID)
			if err != nil {
				logger.Error("second factor lookup failed in gate",
					slog.String("account_id", account.ID),
					slog.Any("error", err))
				pkghttp.WriteInternalError(w, "unable to process request")
				return
			}
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			if wantsHTML(r) {
				http.Redirect(w, r, cfg.VerifyPath, http.StatusSeeOther)
				return
			}
			pkghttp.WriteErrorWithDetails(w, http.StatusForbidden,
				"second_factor_required",
				"second factor verification required",
				cfg.VerifyPath)
		})
	}
}

// pathExempt reports whether path is on the allow-list. Entries with a
// trailing slash cover everything beneath them.
func pathExempt(path string, exempt []string) bool {
	for _, entry := range exempt {
		if strings.HasSuffix(entry, "/") {
			if strings.HasPrefix(path, entry) {
				return true
			}
			continue
		}
		if path == entry {
			return true
		}
	}
	return false
}

// wantsHTML distinguishes browser navigation from API calls. Bearer
// clients never want a redirect; otherwise the Accept header decides.
func wantsHTML(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
