package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
	pkgauth "github.com/invoiceflow/gatehouse/pkg/auth"
	pkglogger "github.com/invoiceflow/gatehouse/pkg/logger"
)

// AccountRepository is the adapter contract over the account store.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// AttemptThrottle guards the credential check and books every outcome.
type AttemptThrottle interface {
	Check(ctx context.Context, sourceAddr, username string) (bool, string)
	Record(ctx context.Context, src models.SourceContext, username string, success bool, failureReason string)
}

// SessionRegistry is the slice of the session service the login flow needs.
type SessionRegistry interface {
	Create(ctx context.Context, account *models.Account, token string, src models.SourceContext) (*models.Session, error)
	DeleteByToken(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, accountID, exceptToken string) (int64, error)
}

// SecondFactorChecker reports whether an account has an enabled profile.
type SecondFactorChecker interface {
	Enabled(ctx context.Context, accountID string) (bool, error)
}

// AuthService handles credential authentication and the login/logout flow
type AuthService struct {
	accounts     AccountRepository
	throttle     AttemptThrottle
	sessions     SessionRegistry
	secondFactor SecondFactorChecker
	timing       *auth.TimingDelay
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	accounts AccountRepository,
	throttle AttemptThrottle,
	sessions SessionRegistry,
	secondFactor SecondFactorChecker,
	timing auth.TimingConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		accounts:     accounts,
		throttle:     throttle,
		sessions:     sessions,
		secondFactor: secondFactor,
		timing:       auth.NewTimingDelay(timing),
		logger:       logger,
		auditLogger:  auditLogger,
	}
}

// LoginResult carries everything the handler needs to answer a successful
// credential submission. Token is the plaintext session token; it exists
// only in this response.
type LoginResult struct {
	Token                string
	Session              *models.Session
	Account              *models.Account
	SecondFactorRequired bool
}

// Authenticate validates a username/password pair. The throttle is
// consulted before the password is touched, so a locked-out caller pays no
// hash cost; the timing floor narrows the resulting response-time gap on
// failures.
func (s *AuthService) Authenticate(ctx context.Context, src models.SourceContext, username, password string) (*models.Account, error) {
	start := time.Now()
	username = strings.ToLower(strings.TrimSpace(username))

	if locked, _ := s.throttle.Check(ctx, src.IPAddress, username); locked {
		s.throttle.Record(ctx, src, username, false, models.FailureLockedOut)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_locked_out",
			Username:      username,
			IPAddress:     src.IPAddress,
			UserAgent:     src.UserAgent,
			Success:       false,
			FailureReason: models.FailureLockedOut,
		})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrLockedOut
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown username and wrong password present identically
			s.recordFailure(ctx, src, username, "", models.FailureInvalidCredentials)
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		s.recordFailure(ctx, src, username, account.ID, models.FailureInvalidCredentials)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if !account.Active {
		s.recordFailure(ctx, src, username, account.ID, models.FailureAccountInactive)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrAccountInactive
	}

	s.throttle.Record(ctx, src, username, true, "")
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		AccountID: account.ID,
		Username:  username,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		Success:   true,
	})
	s.timing.WaitFrom(start, true)

	return account, nil
}

// Login authenticates, mints an opaque session token, and creates the
// session row. When the account's second factor is enabled the session
// starts unverified and the caller is told to send a code next.
func (s *AuthService) Login(ctx context.Context, src models.SourceContext, username, password string) (*LoginResult, error) {
	account, err := s.Authenticate(ctx, src, username, password)
	if err != nil {
		return nil, err
	}

	required, err := s.secondFactor.Enabled(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to check second-factor state",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session, err := s.sessions.Create(ctx, account, token, src)
	if err != nil {
		s.logger.Error("failed to create session",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("login succeeded",
		slog.String("account_id", account.ID),
		slog.String("session_id", session.ID),
		slog.Bool("second_factor_required", required))

	return &LoginResult{
		Token:                token,
		Session:              session,
		Account:              account,
		SecondFactorRequired: required,
	}, nil
}

// Logout deletes the session behind the presented token. Logging out an
// already-dead session succeeds; there is nothing useful to report.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		s.logger.Error("failed to delete session on logout", slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// ChangePassword verifies the current password, stores the new hash, then
// wipes every other session for the account. The wipe is the point of the
// operation; when it fails the whole call fails.
func (s *AuthService) ChangePassword(ctx context.Context, src models.SourceContext, account *models.Account, currentPassword, newPassword, currentToken string) error {
	if err := pkgauth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		s.auditLogger.LogPasswordChange(account.ID, src.IPAddress, false)
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		s.logger.Error("failed to update password",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	removed, err := s.sessions.RevokeAll(ctx, account.ID, currentToken)
	if err != nil {
		s.logger.Error("failed to revoke sessions after password change",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogPasswordChange(account.ID, src.IPAddress, true)
	s.logger.Info("password changed, other sessions revoked",
		slog.String("account_id", account.ID),
		slog.Int64("sessions_revoked", removed))

	return nil
}

// recordFailure books a failed attempt with the throttle and the audit log
func (s *AuthService) recordFailure(ctx context.Context, src models.SourceContext, username, accountID, reason string) {
	s.throttle.Record(ctx, src, username, false, reason)
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		AccountID:     accountID,
		Username:      username,
		IPAddress:     src.IPAddress,
		UserAgent:     src.UserAgent,
		Success:       false,
		FailureReason: reason,
	})
}
