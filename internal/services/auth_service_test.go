package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
	pkgauth "github.com/invoiceflow/gatehouse/pkg/auth"
	pkglogger "github.com/invoiceflow/gatehouse/pkg/logger"
)

func newAuthService(accounts *MockAccountRepository, throttle *MockAttemptThrottle, sessions *MockSessionRegistry, secondFactor *MockSecondFactorChecker) *AuthService {
	logger := slog.Default()
	return NewAuthService(
		accounts,
		throttle,
		sessions,
		secondFactor,
		auth.TimingConfig{}, // no floor; tests assert behavior, not latency
		logger,
		pkglogger.NewAuditLogger(logger),
	)
}

func accountRepoWith(account *models.Account) *MockAccountRepository {
	return &MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			if account != nil && username == account.Username {
				return account, nil
			}
			return nil, models.ErrNotFound
		},
	}
}

// ============================================================================
// Login Tests
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	throttle := &MockAttemptThrottle{}
	svc := newAuthService(accountRepoWith(account), throttle, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	result, err := svc.Login(context.Background(), NewTestSourceContext(), "alice", "Sup3rSecret!")

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.NotNil(t, result.Session)
	assert.Equal(t, "acct_1", result.Account.ID)
	assert.False(t, result.SecondFactorRequired)

	require.Len(t, throttle.Recorded, 1)
	assert.True(t, throttle.Recorded[0].Success)
}

func TestAuthService_Login_SecondFactorRequired(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	secondFactor := &MockSecondFactorChecker{
		EnabledFunc: func(ctx context.Context, accountID string) (bool, error) {
			return true, nil
		},
	}
	svc := newAuthService(accountRepoWith(account), &MockAttemptThrottle{}, &MockSessionRegistry{}, secondFactor)

	result, err := svc.Login(context.Background(), NewTestSourceContext(), "alice", "Sup3rSecret!")

	require.NoError(t, err)
	assert.True(t, result.SecondFactorRequired)
	assert.NotEmpty(t, result.Token)
}

func TestAuthService_Login_SecondFactorLookupError(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	secondFactor := &MockSecondFactorChecker{
		EnabledFunc: func(ctx context.Context, accountID string) (bool, error) {
			return false, models.ErrInternalServer
		},
	}
	svc := newAuthService(accountRepoWith(account), &MockAttemptThrottle{}, &MockSessionRegistry{}, secondFactor)

	result, err := svc.Login(context.Background(), NewTestSourceContext(), "alice", "Sup3rSecret!")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestAuthService_Login_SessionCreateError(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	sessions := &MockSessionRegistry{
		CreateFunc: func(ctx context.Context, account *models.Account, token string, src models.SourceContext) (*models.Session, error) {
			return nil, models.ErrInternalServer
		},
	}
	svc := newAuthService(accountRepoWith(account), &MockAttemptThrottle{}, sessions, &MockSecondFactorChecker{})

	result, err := svc.Login(context.Background(), NewTestSourceContext(), "alice", "Sup3rSecret!")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

// ============================================================================
// Authenticate Tests
// ============================================================================

func TestAuthService_Authenticate_UnknownUsername(t *testing.T) {
	throttle := &MockAttemptThrottle{}
	svc := newAuthService(&MockAccountRepository{}, throttle, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	account, err := svc.Authenticate(context.Background(), NewTestSourceContext(), "nobody", "whatever")

	assert.Nil(t, account)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	require.Len(t, throttle.Recorded, 1)
	assert.False(t, throttle.Recorded[0].Success)
	assert.Equal(t, models.FailureInvalidCredentials, throttle.Recorded[0].FailureReason)
}

func TestAuthService_Authenticate_WrongPassword(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	throttle := &MockAttemptThrottle{}
	svc := newAuthService(accountRepoWith(account), throttle, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	result, err := svc.Authenticate(context.Background(), NewTestSourceContext(), "alice", "not-the-password")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	require.Len(t, throttle.Recorded, 1)
	assert.Equal(t, models.FailureInvalidCredentials, throttle.Recorded[0].FailureReason)
}

func TestAuthService_Authenticate_UnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	svc := newAuthService(accountRepoWith(account), &MockAttemptThrottle{}, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	_, wrongPasswordErr := svc.Authenticate(context.Background(), NewTestSourceContext(), "alice", "not-the-password")
	_, unknownUserErr := svc.Authenticate(context.Background(), NewTestSourceContext(), "nobody", "not-the-password")

	assert.Equal(t, wrongPasswordErr, unknownUserErr)
}

func TestAuthService_Authenticate_InactiveAccount(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	account.Active = false
	throttle := &MockAttemptThrottle{}
	svc := newAuthService(accountRepoWith(account), throttle, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	result, err := svc.Authenticate(context.Background(), NewTestSourceContext(), "alice", "Sup3rSecret!")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrAccountInactive)

	require.Len(t, throttle.Recorded, 1)
	assert.Equal(t, models.FailureAccountInactive, throttle.Recorded[0].FailureReason)
}

func TestAuthService_Authenticate_InactiveAccountWrongPassword(t *testing.T) {
	// The password is checked before the active flag, so a wrong password
	// on a deactivated account never reveals the deactivation.
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")
	account.Active = false
	svc := newAuthService(accountRepoWith(account), &MockAttemptThrottle{}, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	_, err := svc.Authenticate(context.Background(), NewTestSourceContext(), "alice", "not-the-password")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_Authenticate_LockedOut(t *testing.T) {
	lookedUp := false
	accounts := &MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			lookedUp = true
			return NewTestAccountWithPassword("acct_1", "bob", "Sup3rSecret!"), nil
		},
	}
	var recorded []RecordedAttempt
	throttle := &MockAttemptThrottle{
		CheckFunc: func(ctx context.Context, sourceAddr, username string) (bool, string) {
			return true, LockoutMessage
		},
		RecordFunc: func(ctx context.Context, src models.SourceContext, username string, success bool, failureReason string) {
			recorded = append(recorded, RecordedAttempt{Username: username, Success: success, FailureReason: failureReason})
		},
	}
	svc := newAuthService(accounts, throttle, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	result, err := svc.Authenticate(context.Background(), NewTestSourceContext(), "bob", "Sup3rSecret!")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrLockedOut)
	assert.False(t, lookedUp, "locked-out attempt must not touch the account store")

	// The locked attempt is still booked on the audit trail
	require.Len(t, recorded, 1)
	assert.Equal(t, models.FailureLockedOut, recorded[0].FailureReason)
	assert.False(t, recorded[0].Success)
}

func TestAuthService_Authenticate_LockedOutDespiteCorrectPassword(t *testing.T) {
	// Five failures, then the correct password: the sixth attempt comes
	// back locked, not successful.
	account := NewTestAccountWithPassword("acct_bob", "bob", "Sup3rSecret!")
	throttle := &MockAttemptThrottle{}
	throttle.CheckFunc = func(ctx context.Context, sourceAddr, username string) (bool, string) {
		failures := 0
		for _, r := range throttle.Recorded {
			if !r.Success {
				failures++
			}
		}
		if failures >= 5 {
			return true, LockoutMessage
		}
		return false, ""
	}
	svc := newAuthService(accountRepoWith(account), throttle, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}
	for i := 0; i < 5; i++ {
		_, err := svc.Authenticate(context.Background(), src, "bob", "wrong-password")
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	_, err := svc.Authenticate(context.Background(), src, "bob", "Sup3rSecret!")
	assert.ErrorIs(t, err, models.ErrLockedOut)
}

func TestAuthService_Authenticate_NormalizesUsername(t *testing.T) {
	var seen string
	accounts := &MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			seen = username
			return nil, models.ErrNotFound
		},
	}
	svc := newAuthService(accounts, &MockAttemptThrottle{}, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	_, _ = svc.Authenticate(context.Background(), NewTestSourceContext(), "  Alice ", "whatever")

	assert.Equal(t, "alice", seen)
}

// ============================================================================
// Logout Tests
// ============================================================================

func TestAuthService_Logout_DeletesSession(t *testing.T) {
	var deleted string
	sessions := &MockSessionRegistry{
		DeleteByTokenFunc: func(ctx context.Context, token string) error {
			deleted = token
			return nil
		},
	}
	svc := newAuthService(&MockAccountRepository{}, &MockAttemptThrottle{}, sessions, &MockSecondFactorChecker{})

	err := svc.Logout(context.Background(), "some-token")

	assert.NoError(t, err)
	assert.Equal(t, "some-token", deleted)
}

func TestAuthService_Logout_EmptyTokenIsNoop(t *testing.T) {
	called := false
	sessions := &MockSessionRegistry{
		DeleteByTokenFunc: func(ctx context.Context, token string) error {
			called = true
			return nil
		},
	}
	svc := newAuthService(&MockAccountRepository{}, &MockAttemptThrottle{}, sessions, &MockSecondFactorChecker{})

	err := svc.Logout(context.Background(), "")

	assert.NoError(t, err)
	assert.False(t, called)
}

func TestAuthService_Logout_DeleteError(t *testing.T) {
	sessions := &MockSessionRegistry{
		DeleteByTokenFunc: func(ctx context.Context, token string) error {
			return models.ErrInternalServer
		},
	}
	svc := newAuthService(&MockAccountRepository{}, &MockAttemptThrottle{}, sessions, &MockSecondFactorChecker{})

	err := svc.Logout(context.Background(), "some-token")

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

// ============================================================================
// ChangePassword Tests
// ============================================================================

func TestAuthService_ChangePassword_Success(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")

	var storedHash string
	accounts := &MockAccountRepository{
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
			storedHash = passwordHash
			return nil
		},
	}
	var revokedAccount, sparedToken string
	sessions := &MockSessionRegistry{
		RevokeAllFunc: func(ctx context.Context, accountID, exceptToken string) (int64, error) {
			revokedAccount = accountID
			sparedToken = exceptToken
			return 2, nil
		},
	}
	svc := newAuthService(accounts, &MockAttemptThrottle{}, sessions, &MockSecondFactorChecker{})

	err := svc.ChangePassword(context.Background(), NewTestSourceContext(), account, "Sup3rSecret!", "N3w&Better1", "current-token")

	require.NoError(t, err)
	assert.NoError(t, pkgauth.ComparePassword(storedHash, "N3w&Better1"))
	assert.Equal(t, "acct_1", revokedAccount)
	assert.Equal(t, "current-token", sparedToken)
}

func TestAuthService_ChangePassword_WrongCurrentPassword(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")

	updated := false
	accounts := &MockAccountRepository{
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
			updated = true
			return nil
		},
	}
	svc := newAuthService(accounts, &MockAttemptThrottle{}, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	err := svc.ChangePassword(context.Background(), NewTestSourceContext(), account, "wrong", "N3w&Better1", "current-token")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.False(t, updated)
}

func TestAuthService_ChangePassword_WeakNewPassword(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")

	updated := false
	accounts := &MockAccountRepository{
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
			updated = true
			return nil
		},
	}
	svc := newAuthService(accounts, &MockAttemptThrottle{}, &MockSessionRegistry{}, &MockSecondFactorChecker{})

	err := svc.ChangePassword(context.Background(), NewTestSourceContext(), account, "Sup3rSecret!", "weak", "current-token")

	var validationErr *pkgauth.PasswordValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.NotEmpty(t, validationErr.Errors)
	assert.False(t, updated)
}

func TestAuthService_ChangePassword_RevokeAllError(t *testing.T) {
	account := NewTestAccountWithPassword("acct_1", "alice", "Sup3rSecret!")

	sessions := &MockSessionRegistry{
		RevokeAllFunc: func(ctx context.Context, accountID, exceptToken string) (int64, error) {
			return 0, models.ErrInternalServer
		},
	}
	svc := newAuthService(&MockAccountRepository{}, &MockAttemptThrottle{}, sessions, &MockSecondFactorChecker{})

	err := svc.ChangePassword(context.Background(), NewTestSourceContext(), account, "Sup3rSecret!", "N3w&Better1", "current-token")

	assert.ErrorIs(t, err, models.ErrInternalServer)
}
