package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/invoiceflow/gatehouse/internal/database"
	"github.com/invoiceflow/gatehouse/internal/models"
)

// SecondFactorRepository handles database operations for second-factor
// profiles. Absence of a row means the factor is disabled; disable removes
// the row rather than blanking it.
type SecondFactorRepository struct {
	pool *pgxpool.Pool
}

func NewSecondFactorRepository(db *database.DB) *SecondFactorRepository {
	return &SecondFactorRepository{pool: db.Pool}
}

func scanSecondFactorRow(scanner rowScanner) (*models.SecondFactorProfile, error) {
	var profile models.SecondFactorProfile
	var lastUsedAt *time.Time

	err := scanner.Scan(
		&profile.AccountID,
		&profile.SecretEncrypted,
		&profile.SecretNonce,
		&profile.Enabled,
		pq.Array(&profile.RecoveryCodeHashes),
		&lastUsedAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	profile.LastUsedAt = lastUsedAt

	return &profile, nil
}

func (r *SecondFactorRepository) GetByAccountID(ctx context.Context, accountID string) (*models.SecondFactorProfile, error) {
	query := `
		SELECT account_id, secret_encrypted, secret_nonce, enabled, recovery_code_hashes, last_used_at, created_at, updated_at
		FROM second_factor_profiles WHERE account_id = $1
	`

	return scanSecondFactorRow(r.pool.QueryRow(ctx, query, accountID))
}

// Upsert stages or restages setup material. Re-running setup before enable
// overwrites the previous secret and codes in place.
func (r *SecondFactorRepository) Upsert(ctx context.Context, profile *models.SecondFactorProfile) error {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	query := `
		INSERT INTO second_factor_profiles (account_id, secret_encrypted, secret_nonce, enabled, recovery_code_hashes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			enabled = EXCLUDED.enabled,
			recovery_code_hashes = EXCLUDED.recovery_code_hashes,
			last_used_at = NULL,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		profile.AccountID,
		profile.SecretEncrypted,
		profile.SecretNonce,
		profile.Enabled,
		pq.Array(profile.RecoveryCodeHashes),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// SetEnabled flips the enabled flag after possession is proven.
func (r *SecondFactorRepository) SetEnabled(ctx context.Context, accountID string, enabled bool) error {
	query := `UPDATE second_factor_profiles SET enabled = $1, updated_at = $2 WHERE account_id = $3`

	result, err := r.pool.Exec(ctx, query, enabled, time.Now(), accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateRecoveryCodes persists the hash list after a code is burned.
func (r *SecondFactorRepository) UpdateRecoveryCodes(ctx context.Context, accountID string, hashes []string) error {
	query := `UPDATE second_factor_profiles SET recovery_code_hashes = $1, updated_at = $2 WHERE account_id = $3`

	result, err := r.pool.Exec(ctx, query, pq.Array(hashes), time.Now(), accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateLastUsed records when a code last validated, for the replay guard
// and the status view.
func (r *SecondFactorRepository) UpdateLastUsed(ctx context.Context, accountID string) error {
	query := `UPDATE second_factor_profiles SET last_used_at = $1, updated_at = $2 WHERE account_id = $3`

	_, err := r.pool.Exec(ctx, query, time.Now(), time.Now(), accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// Delete removes the profile entirely; the account drops back to disabled.
func (r *SecondFactorRepository) Delete(ctx context.Context, accountID string) error {
	query := `DELETE FROM second_factor_profiles WHERE account_id = $1`

	result, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
