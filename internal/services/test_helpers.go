package services

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.Account, error)
	GetByUsernameFunc  func(ctx context.Context, username string) (*models.Account, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string) error
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

// RecordedAttempt captures one Record call made against MockAttemptThrottle.
type RecordedAttempt struct {
	Username      string
	Success       bool
	FailureReason string
}

// MockAttemptThrottle implements AttemptThrottle for testing. Record calls
// are collected in Recorded unless RecordFunc overrides the behavior.
type MockAttemptThrottle struct {
	CheckFunc  func(ctx context.Context, sourceAddr, username string) (bool, string)
	RecordFunc func(ctx context.Context, src models.SourceContext, username string, success bool, failureReason string)
	Recorded   []RecordedAttempt
}

func (m *MockAttemptThrottle) Check(ctx context.Context, sourceAddr, username string) (bool, string) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, sourceAddr, username)
	}
	return false, ""
}

func (m *MockAttemptThrottle) Record(ctx context.Context, src models.SourceContext, username string, success bool, failureReason string) {
	if m.RecordFunc != nil {
		m.RecordFunc(ctx, src, username, success, failureReason)
		return
	}
	m.Recorded = append(m.Recorded, RecordedAttempt{
		Username:      username,
		Success:       success,
		FailureReason: failureReason,
	})
}

// MockSessionRegistry implements SessionRegistry for testing
type MockSessionRegistry struct {
	CreateFunc        func(ctx context.Context, account *models.Account, token string, src models.SourceContext) (*models.Session, error)
	DeleteByTokenFunc func(ctx context.Context, token string) error
	RevokeAllFunc     func(ctx context.Context, accountID, exceptToken string) (int64, error)
}

func (m *MockSessionRegistry) Create(ctx context.Context, account *models.Account, token string, src models.SourceContext) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account, token, src)
	}
	return NewTestSession("session_test", account.ID, token), nil
}

func (m *MockSessionRegistry) DeleteByToken(ctx context.Context, token string) error {
	if m.DeleteByTokenFunc != nil {
		return m.DeleteByTokenFunc(ctx, token)
	}
	return nil
}

func (m *MockSessionRegistry) RevokeAll(ctx context.Context, accountID, exceptToken string) (int64, error) {
	if m.RevokeAllFunc != nil {
		return m.RevokeAllFunc(ctx, accountID, exceptToken)
	}
	return 0, nil
}

// MockSecondFactorChecker implements SecondFactorChecker for testing
type MockSecondFactorChecker struct {
	EnabledFunc func(ctx context.Context, accountID string) (bool, error)
}

func (m *MockSecondFactorChecker) Enabled(ctx context.Context, accountID string) (bool, error) {
	if m.EnabledFunc != nil {
		return m.EnabledFunc(ctx, accountID)
	}
	return false, nil
}

// MockAttemptLog implements AttemptLog for testing. Recorded attempts are
// collected in Attempts unless RecordAttemptFunc overrides the behavior.
type MockAttemptLog struct {
	RecordAttemptFunc func(ctx context.Context, attempt *models.LoginAttempt) error
	Attempts          []*models.LoginAttempt
}

func (m *MockAttemptLog) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	m.Attempts = append(m.Attempts, attempt)
	return nil
}

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	CreateFunc             func(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByTokenHashFunc     func(ctx context.Context, tokenHash string) (*models.Session, error)
	ListByAccountFunc      func(ctx context.Context, accountID string) ([]*models.Session, error)
	DeleteForAccountFunc   func(ctx context.Context, accountID, sessionID string) error
	DeleteByTokenHashFunc  func(ctx context.Context, tokenHash string) error
	DeleteAllExceptFunc    func(ctx context.Context, accountID, exceptTokenHash string) (int64, error)
	UpdateLastActivityFunc func(ctx context.Context, id string) error
	MarkVerifiedFunc       func(ctx context.Context, id string) error
	DeleteExpiredFunc      func(ctx context.Context, idleBefore, createdBefore time.Time) (int64, error)
}

func (m *MockSessionStore) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	created := *session
	created.ID = "session_test"
	created.CreatedAt = time.Now()
	created.LastActivityAt = created.CreatedAt
	return &created, nil
}

func (m *MockSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	if m.GetByTokenHashFunc != nil {
		return m.GetByTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Session, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID)
	}
	return []*models.Session{}, nil
}

func (m *MockSessionStore) DeleteForAccount(ctx context.Context, accountID, sessionID string) error {
	if m.DeleteForAccountFunc != nil {
		return m.DeleteForAccountFunc(ctx, accountID, sessionID)
	}
	return nil
}

func (m *MockSessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if m.DeleteByTokenHashFunc != nil {
		return m.DeleteByTokenHashFunc(ctx, tokenHash)
	}
	return nil
}

func (m *MockSessionStore) DeleteAllExcept(ctx context.Context, accountID, exceptTokenHash string) (int64, error) {
	if m.DeleteAllExceptFunc != nil {
		return m.DeleteAllExceptFunc(ctx, accountID, exceptTokenHash)
	}
	return 0, nil
}

func (m *MockSessionStore) UpdateLastActivity(ctx context.Context, id string) error {
	if m.UpdateLastActivityFunc != nil {
		return m.UpdateLastActivityFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionStore) MarkVerified(ctx context.Context, id string) error {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionStore) DeleteExpired(ctx context.Context, idleBefore, createdBefore time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, idleBefore, createdBefore)
	}
	return 0, nil
}

// MockTaskRunner implements TaskRunner for testing. The default runs the
// submitted function inline so tests observe its effects synchronously.
type MockTaskRunner struct {
	SubmitFunc func(name string, fn func(context.Context)) bool
}

func (m *MockTaskRunner) Submit(name string, fn func(context.Context)) bool {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(name, fn)
	}
	fn(context.Background())
	return true
}

// MockSecondFactorRepository implements SecondFactorRepository for testing
type MockSecondFactorRepository struct {
	GetByAccountIDFunc      func(ctx context.Context, accountID string) (*models.SecondFactorProfile, error)
	UpsertFunc              func(ctx context.Context, profile *models.SecondFactorProfile) error
	SetEnabledFunc          func(ctx context.Context, accountID string, enabled bool) error
	UpdateRecoveryCodesFunc func(ctx context.Context, accountID string, hashes []string) error
	UpdateLastUsedFunc      func(ctx context.Context, accountID string) error
	DeleteFunc              func(ctx context.Context, accountID string) error
}

func (m *MockSecondFactorRepository) GetByAccountID(ctx context.Context, accountID string) (*models.SecondFactorProfile, error) {
	if m.GetByAccountIDFunc != nil {
		return m.GetByAccountIDFunc(ctx, accountID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSecondFactorRepository) Upsert(ctx context.Context, profile *models.SecondFactorProfile) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, profile)
	}
	return nil
}

func (m *MockSecondFactorRepository) SetEnabled(ctx context.Context, accountID string, enabled bool) error {
	if m.SetEnabledFunc != nil {
		return m.SetEnabledFunc(ctx, accountID, enabled)
	}
	return nil
}

func (m *MockSecondFactorRepository) UpdateRecoveryCodes(ctx context.Context, accountID string, hashes []string) error {
	if m.UpdateRecoveryCodesFunc != nil {
		return m.UpdateRecoveryCodesFunc(ctx, accountID, hashes)
	}
	return nil
}

func (m *MockSecondFactorRepository) UpdateLastUsed(ctx context.Context, accountID string) error {
	if m.UpdateLastUsedFunc != nil {
		return m.UpdateLastUsedFunc(ctx, accountID)
	}
	return nil
}

func (m *MockSecondFactorRepository) Delete(ctx context.Context, accountID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, accountID)
	}
	return nil
}

// MockSessionVerifier implements SessionVerifier for testing
type MockSessionVerifier struct {
	MarkVerifiedFunc func(ctx context.Context, sessionID string) error
	Verified         []string
}

func (m *MockSessionVerifier) MarkVerified(ctx context.Context, sessionID string) error {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, sessionID)
	}
	m.Verified = append(m.Verified, sessionID)
	return nil
}

// ============================================================================
// Test Data Builders
// ============================================================================

// NewTestAccount creates an active account
func NewTestAccount(id, username string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:        id,
		Username:  username,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestAccountWithPassword creates an active account whose password hash
// matches the given plaintext. MinCost keeps test runs fast.
func NewTestAccountWithPassword(id, username, password string) *models.Account {
	account := NewTestAccount(id, username)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	account.PasswordHash = string(hash)
	return account
}

// NewTestAccountInactive creates a deactivated account
func NewTestAccountInactive(id, username string) *models.Account {
	account := NewTestAccount(id, username)
	account.Active = false
	return account
}

// NewTestSession creates a session row for the given plaintext token
func NewTestSession(id, accountID, token string) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:             id,
		AccountID:      accountID,
		TokenHash:      auth.HashSessionToken(token),
		IPAddress:      "203.0.113.10",
		UserAgent:      "test-agent",
		Device:         "Desktop",
		Browser:        "Firefox",
		OS:             "Linux",
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// NewTestSourceContext creates request origin metadata
func NewTestSourceContext() models.SourceContext {
	return models.SourceContext{
		IPAddress: "203.0.113.10",
		UserAgent: "test-agent",
	}
}

// NewTestRecoveryHashes bcrypt-hashes the given plaintext codes. MinCost
// keeps test runs fast.
func NewTestRecoveryHashes(codes ...string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		hashes[i] = string(hash)
	}
	return hashes
}
