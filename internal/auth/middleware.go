package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/invoiceflow/gatehouse/internal/models"
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AccountContextKey is the key for storing the authenticated account in context
	AccountContextKey contextKey = "account"
	// SessionContextKey is the key for storing the resolved session in context
	SessionContextKey contextKey = "session"
	// TokenContextKey is the key for storing the presented session token in context
	TokenContextKey contextKey = "session_token"
)

// SessionResolver looks up the session and account behind an opaque token
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.Session, *models.Account, error)
}

// SessionMiddleware resolves the session token from the cookie or the
// Authorization header and injects the session and account into context.
// Requests without a resolvable session continue anonymously; enforcement
// is left to RequireAccount and the second-factor gate.
func SessionMiddleware(resolver SessionResolver, cookieConfig CookieConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := extractSessionToken(r, cookieConfig)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, account, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrSessionNotFound) {
					// Stale cookie; clear it so the browser stops sending it
					if fromCookie {
						ClearSessionCookie(w, cookieConfig)
					}
				} else {
					logger.Warn("session resolution failed",
						slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, account)
			ctx = context.WithValue(ctx, SessionContextKey, session)
			ctx = context.WithValue(ctx, TokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccount rejects requests that did not resolve to an account.
// Must run after SessionMiddleware.
func RequireAccount() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetAccountFromContext(r) == nil {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractSessionToken pulls the opaque token from the session cookie or a
// Bearer Authorization header. The boolean reports whether the token came
// from the cookie.
func extractSessionToken(r *http.Request, cookieConfig CookieConfig) (string, bool) {
	if token, err := GetSessionCookie(r, cookieConfig); err == nil && token != "" {
		return token, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], false
}

// GetAccountFromContext extracts the authenticated account from request context
func GetAccountFromContext(r *http.Request) *models.Account {
	account, ok := r.Context().Value(AccountContextKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// GetSessionFromContext extracts the resolved session from request context
func GetSessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// GetSessionTokenFromContext extracts the presented session token from request context
func GetSessionTokenFromContext(r *http.Request) string {
	token, ok := r.Context().Value(TokenContextKey).(string)
	if !ok {
		return ""
	}
	return token
}
