package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/gatehouse/internal/database"
	"github.com/invoiceflow/gatehouse/internal/models"
)

// AccountRepository is the adapter over the account store. Account
// lifecycle (registration, profile edits) is owned elsewhere; this service
// only reads credentials and writes password hashes.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.Username, &passwordHash, &account.Active,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, username, password_hash, active, created_at, updated_at
		FROM accounts WHERE id = $1
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername looks up an account case-insensitively. The caller
// normalizes for throttle keys; the store may hold mixed-case names created
// before normalization existed.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `
		SELECT id, username, password_hash, active, created_at, updated_at
		FROM accounts WHERE lower(username) = lower($1)
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

// UpdatePassword replaces the stored hash. The plaintext never reaches
// this layer.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Create inserts an account row. Only the startup bootstrap and the
// integration harness call this; accounts otherwise arrive through
// platform provisioning.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, username, password_hash, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, username, password_hash, active, created_at, updated_at
	`

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Username, passwordHash, account.Active,
		account.CreatedAt, account.UpdatedAt,
	))
}
