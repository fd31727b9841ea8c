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
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
)

// SecondFactorServiceInterface defines the interface for second-factor
// lifecycle operations
type SecondFactorServiceInterface interface {
	Setup(ctx context.Context, account *models.Account) (*models.SecondFactorSetup, error)
	Enable(ctx context.Context, account *models.Account, sessionID, code string) error
	ConfirmSession(ctx context.Context, account *models.Account, sessionID, code string) error
	Disable(ctx context.Context, account *models.Account, password, code string) error
	Status(ctx context.Context, accountID string) (*models.SecondFactorStatus, error)
}

// SecondFactorHandler handles second-factor HTTP requests
type SecondFactorHandler struct {
	service SecondFactorServiceInterface
	logger  *slog.Logger
}

// NewSecondFactorHandler creates a new SecondFactorHandler
func NewSecondFactorHandler(service SecondFactorServiceInterface, logger *slog.Logger) *SecondFactorHandler {
	return &SecondFactorHandler{
		service: service,
		logger:  logger,
	}
}

// Setup handles POST /auth/2fa/setup to begin enrollment
// @Summary Begin second-factor setup
// @Security SessionAuth
// @Produce json
// @Success 200 {object} models.SecondFactorSetup
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/2fa/setup [post]
func (h *SecondFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	setup, err := h.service.Setup(r.Context(), account)
	if err != nil {
		if errors.Is(err, models.ErrSecondFactorEnabled) {
			pkghttp.WriteConflict(w, "Second factor is already enabled")
			return
		}
		h.logger.Error("failed to start second factor setup",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Setup failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(setup)
}

// Enable handles POST /auth/2fa/enable to confirm enrollment
// @Summary Enable second factor
// @Accept json
// @Security SessionAuth
// @Param request body SecondFactorCodeRequest true "Enable request"
// @Produce json
// @Success 200 {object} SecondFactorStateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/2fa/enable [post]
func (h *SecondFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	session := auth.GetSessionFromContext(r)
	if account == nil || session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	code, ok := h.readCode(w, r)
	if !ok {
		return
	}

	if err := h.service.Enable(r.Context(), account, session.ID, code); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSecondFactorCode):
			pkghttp.WriteUnauthorized(w, "Verification failed")
		case errors.Is(err, models.ErrSecondFactorEnabled):
			pkghttp.WriteConflict(w, "Second factor is already enabled")
		case errors.Is(err, models.ErrSecondFactorNotSetUp):
			pkghttp.WriteConflict(w, "Second factor setup has not been started")
		default:
			h.logger.Error("failed to enable second factor",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SecondFactorStateResponse{
		Enabled: true,
		Message: "Second factor has been enabled",
	})
}

// Verify handles POST /auth/2fa/verify to unlock the calling session
// @Summary Verify second factor for this session
// @Accept json
// @Security SessionAuth
// @Param request body SecondFactorCodeRequest true "Verify request"
// @Produce json
// @Success 200 {object} VerifySecondFactorResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/2fa/verify [post]
func (h *SecondFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	session := auth.GetSessionFromContext(r)
	if account == nil || session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	code, ok := h.readCode(w, r)
	if !ok {
		return
	}

	if err := h.service.ConfirmSession(r.Context(), account, session.ID, code); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSecondFactorCode):
			// Wrong, expired and replayed codes all land here
			pkghttp.WriteUnauthorized(w, "Verification failed")
		case errors.Is(err, models.ErrSecondFactorNotSetUp):
			pkghttp.WriteConflict(w, "Second factor is not enabled")
		default:
			h.logger.Error("failed to verify second factor",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(VerifySecondFactorResponse{Verified: true})
}

// Disable handles POST /auth/2fa/disable to tear down the second factor
// @Summary Disable second factor
// @Accept json
// @Security SessionAuth
// @Param request body DisableSecondFactorRequest true "Disable request"
// @Produce json
// @Success 200 {object} SecondFactorStateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/2fa/disable [post]
func (h *SecondFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req DisableSecondFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	code := normalizeCode(req.Code)
	if !isValidCodeFormat(code) {
		pkghttp.WriteBadRequest(w, "Invalid code format")
		return
	}

	if err := h.service.Disable(r.Context(), account, req.Password, code); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials),
			errors.Is(err, models.ErrInvalidSecondFactorCode):
			pkghttp.WriteUnauthorized(w, "Verification failed")
		case errors.Is(err, models.ErrSecondFactorNotSetUp):
			pkghttp.WriteConflict(w, "Second factor is not enabled")
		default:
			h.logger.Error("failed to disable second factor",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SecondFactorStateResponse{
		Enabled: false,
		Message: "Second factor has been disabled",
	})
}

// Status handles GET /auth/2fa/status
// @Summary Second-factor status
// @Security SessionAuth
// @Produce json
// @Success 200 {object} models.SecondFactorStatus
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/2fa/status [get]
func (h *SecondFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), account.ID)
	if err != nil {
		h.logger.Error("failed to get second factor status",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve status")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// readCode decodes and format-checks a single-code request body, writing
// the error response itself when the input is unusable.
func (h *SecondFactorHandler) readCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req SecondFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return "", false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return "", false
	}

	code := normalizeCode(req.Code)
	if !isValidCodeFormat(code) {
		pkghttp.WriteBadRequest(w, "Invalid code format")
		return "", false
	}
	return code, true
}

// normalizeCode uppercases and trims so recovery codes typed in lowercase
// still match; TOTP digits pass through unchanged
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// isValidCodeFormat validates code shape before service processing.
// Accepts either:
//   - 6 digits (TOTP code)
//   - 8 characters from the recovery-code charset (no 0, 1, I, L, O)
func isValidCodeFormat(code string) bool {
	if len(code) == 6 {
		for _, ch := range code {
			if ch < '0' || ch > '9' {
				return false
			}
		}
		return true
	}

	if len(code) == 8 {
		for _, ch := range code {
			if !((ch >= '2' && ch <= '9') ||
				(ch >= 'A' && ch <= 'H') ||
				(ch >= 'J' && ch <= 'K') ||
				(ch >= 'M' && ch <= 'N') ||
				(ch >= 'P' && ch <= 'Z')) {
				return false
			}
		}
		return true
	}

	return false
}
