package handlers

import (
	"time"

	"github.com/invoiceflow/gatehouse/internal/models"
)

// Login DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginResponse carries the session token for API clients (browser clients
// get the same token in the httpOnly cookie) plus the CSRF token the page
// must echo on state-changing requests.
type LoginResponse struct {
	Token                string      `json:"token"`
	CSRFToken            string      `json:"csrf_token"`
	SecondFactorRequired bool        `json:"second_factor_required"`
	Account              *AccountDTO `json:"account"`
}

// AccountDTO represents an account in HTTP responses
type AccountDTO struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Password change DTOs

// ChangePasswordRequest carries the current and replacement password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// Session DTOs

// SessionListResponse wraps the caller's active sessions
type SessionListResponse struct {
	Sessions []models.SessionView `json:"sessions"`
}

// RevokeAllResponse reports how many sessions were torn down
type RevokeAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// Second-factor DTOs

// SecondFactorCodeRequest carries a TOTP or recovery code
type SecondFactorCodeRequest struct {
	Code string `json:"code" validate:"required,max=20"`
}

// DisableSecondFactorRequest requires both proofs to tear down the factor
type DisableSecondFactorRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,max=20"`
}

// SecondFactorStateResponse reports the enabled flag after a state change
type SecondFactorStateResponse struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// VerifySecondFactorResponse confirms the calling session is now verified
type VerifySecondFactorResponse struct {
	Verified bool `json:"verified"`
}
