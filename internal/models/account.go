package models

import (
	"time"
)

// Account mirrors the account store's row. Gatehouse owns the adapter, not
// the account lifecycle; registration and profile management live in the
// user-management service.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Failure reasons recorded on the attempt audit trail.
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureAccountInactive    = "account_inactive"
	FailureLockedOut          = "locked_out"
)
