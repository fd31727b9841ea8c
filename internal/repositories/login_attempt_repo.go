package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/gatehouse/internal/database"
	"github.com/invoiceflow/gatehouse/internal/models"
)

// LoginAttemptRepository appends to the login_attempts audit trail. The
// table is insert-only; nothing in the codebase updates or deletes rows.
// Throttle counters live in the counter store, not here.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt records a login attempt. The username is stored as
// submitted (normalized) whether or not it resolves to an account.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	attempt.ID = uuid.New().String()
	attempt.CreatedAt = time.Now()

	query := `
		INSERT INTO login_attempts (id, username, ip_address, user_agent, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.Username,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}
