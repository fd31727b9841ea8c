package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/invoiceflow/gatehouse/internal/database"
	"github.com/invoiceflow/gatehouse/internal/models"
	"github.com/invoiceflow/gatehouse/internal/repositories"
	"github.com/invoiceflow/gatehouse/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("gatehouse"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(goose.NopLogger())

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"second_factor_profiles",
		"login_attempts",
		"sessions",
		"accounts",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.AccountRepository,
	*repositories.SessionRepository,
	*repositories.LoginAttemptRepository,
	*repositories.SecondFactorRepository,
) {
	return repositories.NewAccountRepository(db),
		repositories.NewSessionRepository(db),
		repositories.NewLoginAttemptRepository(db),
		repositories.NewSecondFactorRepository(db)
}

// SeedAccount inserts a test account with a hashed password
func SeedAccount(ctx context.Context, pool *pgxpool.Pool, username, password string, active bool) (*models.Account, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO accounts (id, username, password_hash, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, username, password_hash, active, created_at, updated_at
	`

	var account models.Account
	err = pool.QueryRow(ctx, query, uuid.New().String(), username, hashedPassword, active).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return &account, nil
}

// sha256Hash computes the hex SHA-256 digest the session store keys on
func sha256Hash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// SeedSession inserts a session row for the given plaintext token
func SeedSession(ctx context.Context, pool *pgxpool.Pool, accountID, token string, verified bool) (string, error) {
	query := `
		INSERT INTO sessions (id, account_id, token_hash, ip_address, user_agent, device, browser, os, second_factor_verified, created_at, last_activity_at)
		VALUES ($1, $2, $3, '203.0.113.10', 'integration-test', 'Desktop', 'Firefox', 'Linux', $4, NOW(), NOW())
		RETURNING id
	`

	var sessionID string
	err := pool.QueryRow(ctx, query, uuid.New().String(), accountID, sha256Hash(token), verified).Scan(&sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	return sessionID, nil
}

// SeedStaleSession inserts a session idle for longer than any plausible
// lifetime, for exercising the expiry sweep
func SeedStaleSession(ctx context.Context, pool *pgxpool.Pool, accountID, token string) (string, error) {
	query := `
		INSERT INTO sessions (id, account_id, token_hash, second_factor_verified, created_at, last_activity_at)
		VALUES ($1, $2, $3, false, NOW() - INTERVAL '90 days', NOW() - INTERVAL '60 days')
		RETURNING id
	`

	var sessionID string
	err := pool.QueryRow(ctx, query, uuid.New().String(), accountID, sha256Hash(token)).Scan(&sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to insert stale session: %w", err)
	}

	return sessionID, nil
}

// CountLoginAttempts returns how many audit rows exist for a username
func CountLoginAttempts(ctx context.Context, pool *pgxpool.Pool, username string) (int, error) {
	var count int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM login_attempts WHERE username = $1`, username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count, nil
}
