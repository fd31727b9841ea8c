package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication outcomes. ErrInvalidCredentials covers both unknown
	// usernames and wrong passwords so callers cannot enumerate accounts.
	ErrLockedOut          = errors.New("too many failed attempts")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is deactivated")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Second-factor errors
	ErrSecondFactorRequired    = errors.New("second factor verification required")
	ErrInvalidSecondFactorCode = errors.New("invalid code")
	ErrSecondFactorNotSetUp    = errors.New("second factor has not been set up")
	ErrSecondFactorEnabled     = errors.New("second factor is already enabled")
)
