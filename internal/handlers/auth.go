package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
	"github.com/invoiceflow/gatehouse/internal/services"
	pkgauth "github.com/invoiceflow/gatehouse/pkg/auth"
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
)

// AuthServiceInterface defines the interface for login business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, src models.SourceContext, username, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, src models.SourceContext, account *models.Account, currentPassword, newPassword, currentToken string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service       AuthServiceInterface
	csrf          *auth.CSRFTokenManager
	cookieConfig  auth.CookieConfig
	sessionMaxAge int
	ipConfig      *pkghttp.IPConfig
	logger        *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. sessionMaxAge is the cookie
// lifetime in seconds; it should track the session's absolute lifetime.
func NewAuthHandler(service AuthServiceInterface, csrf *auth.CSRFTokenManager, cookieConfig auth.CookieConfig, sessionMaxAge int, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:       service,
		csrf:          csrf,
		cookieConfig:  cookieConfig,
		sessionMaxAge: sessionMaxAge,
		ipConfig:      ipConfig,
		logger:        logger,
	}
}

// Login handles account login
// @Summary Account login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))

	src := models.SourceContext{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: pkghttp.ClientString(r),
	}

	result, err := h.service.Login(r.Context(), src, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrLockedOut):
			pkghttp.WriteTooManyRequests(w, services.LockoutMessage)
		case errors.Is(err, models.ErrAccountInactive):
			pkghttp.WriteForbidden(w, "Account is deactivated")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	csrfToken, err := h.csrf.GenerateToken(result.Session.ID)
	if err != nil {
		h.logger.Error("failed to issue CSRF token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, result.Token, h.sessionMaxAge, h.cookieConfig)
	auth.SetCSRFTokenCookie(w, csrfToken, h.sessionMaxAge, h.cookieConfig)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LoginResponse{
		Token:                result.Token,
		CSRFToken:            csrfToken,
		SecondFactorRequired: result.SecondFactorRequired,
		Account: &AccountDTO{
			ID:        result.Account.ID,
			Username:  result.Account.Username,
			CreatedAt: result.Account.CreatedAt,
		},
	})
}

// Logout handles account logout by deleting the presented session
// @Summary Account logout
// @Security SessionAuth
// @Produce json
// @Success 204
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.GetSessionTokenFromContext(r)

	// Logging out without a live session is still a success; the browser
	// cookies get cleared either way
	if token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			h.logger.Error("logout failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	if session := auth.GetSessionFromContext(r); session != nil {
		h.csrf.RevokeSession(session.ID)
	}

	auth.ClearSessionCookie(w, h.cookieConfig)
	auth.ClearCSRFTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles password rotation for the authenticated account
// @Summary Change password
// @Accept json
// @Security SessionAuth
// @Param request body ChangePasswordRequest true "Change password request"
// @Produce json
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/password [post]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	src := models.SourceContext{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: pkghttp.ClientString(r),
	}
	currentToken := auth.GetSessionTokenFromContext(r)

	err := h.service.ChangePassword(r.Context(), src, account, req.CurrentPassword, req.NewPassword, currentToken)
	if err != nil {
		var validationErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.As(err, &validationErr):
			pkghttp.WriteBadRequest(w, validationErr.Error())
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
