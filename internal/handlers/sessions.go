package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
)

// SessionRegistryInterface defines the interface for session management
type SessionRegistryInterface interface {
	List(ctx context.Context, account *models.Account, currentToken string) ([]models.SessionView, error)
	Revoke(ctx context.Context, account *models.Account, sessionID string) error
	RevokeAll(ctx context.Context, accountID, exceptToken string) (int64, error)
}

// SessionsHandler handles session management HTTP requests
type SessionsHandler struct {
	service SessionRegistryInterface
	csrf    *auth.CSRFTokenManager
	logger  *slog.Logger
}

// NewSessionsHandler creates a new SessionsHandler
func NewSessionsHandler(service SessionRegistryInterface, csrf *auth.CSRFTokenManager, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{
		service: service,
		csrf:    csrf,
		logger:  logger,
	}
}

// List handles listing the caller's active sessions
// @Summary List active sessions
// @Security SessionAuth
// @Produce json
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/sessions [get]
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	views, err := h.service.List(r.Context(), account, auth.GetSessionTokenFromContext(r))
	if err != nil {
		h.logger.Error("failed to list sessions", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SessionListResponse{Sessions: views})
}

// Revoke handles revoking a single session by ID
// @Summary Revoke a session
// @Security SessionAuth
// @Param sessionID path string true "Session ID"
// @Produce json
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/sessions/{sessionID} [delete]
func (h *SessionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session ID is required")
		return
	}

	if err := h.service.Revoke(r.Context(), account, sessionID); err != nil {
		// Foreign sessions look identical to missing ones
		if errors.Is(err, models.ErrSessionNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		h.logger.Error("failed to revoke session",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	h.csrf.RevokeSession(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll handles revoking every session except the calling one
// @Summary Revoke all other sessions
// @Security SessionAuth
// @Produce json
// @Success 200 {object} RevokeAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/sessions [delete]
func (h *SessionsHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	revoked, err := h.service.RevokeAll(r.Context(), account.ID, auth.GetSessionTokenFromContext(r))
	if err != nil {
		h.logger.Error("failed to revoke sessions", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RevokeAllResponse{Revoked: revoked})
}
