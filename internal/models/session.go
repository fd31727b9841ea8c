package models

import "time"

// Session represents one authenticated browser or device. The opaque token
// handed to the client is never stored; only its SHA-256 hash is kept.
// Sessions are deleted outright on logout, revocation, or password change,
// never soft-flagged.
type Session struct {
	ID                   string
	AccountID            string
	TokenHash            string
	IPAddress            string
	UserAgent            string
	Device               string
	Browser              string
	OS                   string
	SecondFactorVerified bool
	CreatedAt            time.Time
	LastActivityAt       time.Time
}

// SessionView is the per-session row shown on the "active sessions" page.
type SessionView struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ip_address"`
	Device         string    `json:"device"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IsCurrent      bool      `json:"is_current"`
}

// SourceContext carries the request origin metadata every authentication
// operation receives explicitly. No ambient request state is consulted.
type SourceContext struct {
	IPAddress string
	UserAgent string
}
