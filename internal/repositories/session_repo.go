package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/invoiceflow/gatehouse/internal/database"
	"github.com/invoiceflow/gatehouse/internal/models"
)

// SessionRepository handles database operations for sessions. Rows are
// removed outright on revocation; there is no revoked flag to leak state
// through.
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session

	err := scanner.Scan(
		&session.ID, &session.AccountID, &session.TokenHash,
		&session.IPAddress, &session.UserAgent,
		&session.Device, &session.Browser, &session.OS,
		&session.SecondFactorVerified,
		&session.CreatedAt, &session.LastActivityAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &session, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)

	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	session.ID = uuid.New().String()

	now := time.Now()
	session.CreatedAt = now
	session.LastActivityAt = now

	query := `
		INSERT INTO sessions (id, account_id, token_hash, ip_address, user_agent, device, browser, os, second_factor_verified, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, account_id, token_hash, ip_address, user_agent, device, browser, os, second_factor_verified, created_at, last_activity_at
	`

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query,
		session.ID, session.AccountID, session.TokenHash,
		session.IPAddress, session.UserAgent,
		session.Device, session.Browser, session.OS,
		session.SecondFactorVerified,
		session.CreatedAt, session.LastActivityAt,
	))
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT id, account_id, token_hash, ip_address, user_agent, device, browser, os, second_factor_verified, created_at, last_activity_at
		FROM sessions WHERE token_hash = $1
	`

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// ListByAccount returns the account's sessions newest activity first.
func (r *SessionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Session, error) {
	query := `
		SELECT id, account_id, token_hash, ip_address, user_agent, device, browser, os, second_factor_verified, created_at, last_activity_at
		FROM sessions
		WHERE account_id = $1
		ORDER BY last_activity_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	return scanSessionRows(rows)
}

// DeleteForAccount removes one session, but only when it belongs to the
// given account. A missing row and a foreign row are indistinguishable to
// the caller.
func (r *SessionRepository) DeleteForAccount(ctx context.Context, accountID, sessionID string) error {
	query := `DELETE FROM sessions WHERE id = $1 AND account_id = $2`

	result, err := r.db.Pool.Exec(ctx, query, sessionID, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// DeleteByTokenHash removes the session behind a presented token.
// Deleting an already-gone session is not an error; logout is idempotent.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM sessions WHERE token_hash = $1`

	_, err := r.db.Pool.Exec(ctx, query, tokenHash)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// DeleteAllExcept removes every session for the account except the one
// matching exceptTokenHash and reports how many rows went. Runs in a
// transaction so a partial wipe can never be observed. Pass an empty
// exceptTokenHash to wipe everything.
func (r *SessionRepository) DeleteAllExcept(ctx context.Context, accountID, exceptTokenHash string) (int64, error) {
	var removed int64

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `DELETE FROM sessions WHERE account_id = $1 AND token_hash <> $2`

		result, err := tx.Exec(ctx, query, accountID, exceptTokenHash)
		if err != nil {
			return database.MapPostgresError(err)
		}

		removed = result.RowsAffected()
		return nil
	})

	return removed, err
}

// UpdateLastActivity bumps the sliding idle window.
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_activity_at = $1 WHERE id = $2`

	_, err := r.db.Pool.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// MarkVerified records a successful second-factor check for the session.
func (r *SessionRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE sessions SET second_factor_verified = true WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// DeleteExpired reaps sessions past the idle or absolute lifetime.
func (r *SessionRepository) DeleteExpired(ctx context.Context, idleBefore, createdBefore time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE last_activity_at < $1 OR created_at < $2`

	result, err := r.db.Pool.Exec(ctx, query, idleBefore, createdBefore)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
