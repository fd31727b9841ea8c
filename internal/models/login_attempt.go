package models

import "time"

// LoginAttempt is one row of the append-only authentication audit trail.
// Username is denormalized: attempts against usernames that never existed
// are recorded too, so there is no account foreign key.
type LoginAttempt struct {
	ID            string    `db:"id"`
	Username      string    `db:"username"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	CreatedAt     time.Time `db:"created_at"`
}
