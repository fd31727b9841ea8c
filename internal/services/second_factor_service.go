package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
	pkgauth "github.com/invoiceflow/gatehouse/pkg/auth"
	pkglogger "github.com/invoiceflow/gatehouse/pkg/logger"
)

// SecondFactorRepository is the storage contract for second-factor profiles.
type SecondFactorRepository interface {
	GetByAccountID(ctx context.Context, accountID string) (*models.SecondFactorProfile, error)
	Upsert(ctx context.Context, profile *models.SecondFactorProfile) error
	SetEnabled(ctx context.Context, accountID string, enabled bool) error
	UpdateRecoveryCodes(ctx context.Context, accountID string, hashes []string) error
	UpdateLastUsed(ctx context.Context, accountID string) error
	Delete(ctx context.Context, accountID string) error
}

// SessionVerifier flips the per-session verified flag once a code passes.
type SessionVerifier interface {
	MarkVerified(ctx context.Context, sessionID string) error
}

// SecondFactorConfig holds second-factor behavior settings.
type SecondFactorConfig struct {
	RecoveryCodeCount int
}

// SecondFactorService drives the per-account second-factor lifecycle:
// disabled, setup pending once a secret is staged, enabled after the user
// proves possession with a live code.
type SecondFactorService struct {
	profiles    SecondFactorRepository
	sessions    SessionVerifier
	totp        *auth.TOTPManager
	config      SecondFactorConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewSecondFactorService creates a new SecondFactorService
func NewSecondFactorService(
	profiles SecondFactorRepository,
	sessions SessionVerifier,
	totp *auth.TOTPManager,
	config SecondFactorConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *SecondFactorService {
	return &SecondFactorService{
		profiles:    profiles,
		sessions:    sessions,
		totp:        totp,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Setup stages a fresh secret and recovery code batch for the account and
// returns the only copy of the plaintext material the caller will ever see.
// Re-running setup before enabling replaces the staged secret. Setup on an
// already-enabled account is rejected; disable first.
func (s *SecondFactorService) Setup(ctx context.Context, account *models.Account) (*models.SecondFactorSetup, error) {
	profile, err := s.getProfile(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if profile.State() == models.SecondFactorEnabled {
		return nil, models.ErrSecondFactorEnabled
	}

	enrollment, err := s.totp.GenerateEnrollment(account.Username)
	if err != nil {
		s.logger.Error("failed to generate enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := s.totp.GenerateRecoveryCodes(s.config.RecoveryCodeCount)
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), 14)
		if err != nil {
			s.logger.Error("failed to hash recovery code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		hashes[i] = string(hash)
	}

	staged := &models.SecondFactorProfile{
		AccountID:          account.ID,
		SecretEncrypted:    enrollment.Encrypted,
		SecretNonce:        enrollment.Nonce,
		Enabled:            false,
		RecoveryCodeHashes: hashes,
	}
	if err := s.profiles.Upsert(ctx, staged); err != nil {
		s.logger.Error("failed to store second-factor profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogSecondFactorEvent("second_factor_setup_started", account.ID, true)

	return &models.SecondFactorSetup{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCode,
		RecoveryCodes:   codes,
	}, nil
}

// Enable proves possession of the staged secret and flips the profile on.
// The calling session is marked verified so the account does not gate
// itself out of the request that just finished enrollment.
func (s *SecondFactorService) Enable(ctx context.Context, account *models.Account, sessionID, code string) error {
	profile, err := s.getProfile(ctx, account.ID)
	if err != nil {
		return err
	}

	switch profile.State() {
	case models.SecondFactorEnabled:
		return models.ErrSecondFactorEnabled
	case models.SecondFactorDisabled:
		return models.ErrSecondFactorNotSetUp
	}

	valid, err := s.checkTOTP(ctx, profile, code)
	if err != nil {
		return err
	}
	if !valid {
		s.auditLogger.LogSecondFactorEvent("second_factor_enable_failed", account.ID, false)
		return models.ErrInvalidSecondFactorCode
	}

	if err := s.sessions.MarkVerified(ctx, sessionID); err != nil {
		s.logger.Error("failed to mark session verified",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.profiles.SetEnabled(ctx, account.ID, true); err != nil {
		s.logger.Error("failed to enable second factor", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogSecondFactorEvent("second_factor_enabled", account.ID, true)
	s.logger.Info("second factor enabled", slog.String("account_id", account.ID))
	return nil
}

// ConfirmSession verifies a code for an enabled account and marks the
// session verified. A TOTP code is tried first, then the submitted value
// is treated as a recovery code. Callers get the same invalid-code answer
// for every flavor of failure.
func (s *SecondFactorService) ConfirmSession(ctx context.Context, account *models.Account, sessionID, code string) error {
	profile, err := s.getProfile(ctx, account.ID)
	if err != nil {
		return err
	}
	if profile.State() != models.SecondFactorEnabled {
		return models.ErrSecondFactorNotSetUp
	}

	valid, err := s.checkTOTP(ctx, profile, code)
	if err != nil {
		return err
	}
	if !valid {
		valid, err = s.consumeRecoveryCode(ctx, account.ID, profile, code)
		if err != nil {
			return err
		}
	}
	if !valid {
		s.auditLogger.LogSecondFactorEvent("second_factor_verify_failed", account.ID, false)
		return models.ErrInvalidSecondFactorCode
	}

	if err := s.sessions.MarkVerified(ctx, sessionID); err != nil {
		s.logger.Error("failed to mark session verified",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogSecondFactorEvent("second_factor_verified", account.ID, true)
	return nil
}

// Disable turns the second factor off. Both proofs are required: the
// account password and one valid code, TOTP or recovery. The profile row
// is deleted outright, so the secret and remaining recovery codes are
// gone, not flagged.
func (s *SecondFactorService) Disable(ctx context.Context, account *models.Account, password, code string) error {
	profile, err := s.getProfile(ctx, account.ID)
	if err != nil {
		return err
	}
	if profile.State() != models.SecondFactorEnabled {
		return models.ErrSecondFactorNotSetUp
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		s.auditLogger.LogSecondFactorEvent("second_factor_disable_failed", account.ID, false)
		return models.ErrInvalidCredentials
	}

	valid, err := s.checkTOTP(ctx, profile, code)
	if err != nil {
		return err
	}
	if !valid {
		valid, err = s.consumeRecoveryCode(ctx, account.ID, profile, code)
		if err != nil {
			return err
		}
	}
	if !valid {
		s.auditLogger.LogSecondFactorEvent("second_factor_disable_failed", account.ID, false)
		return models.ErrInvalidSecondFactorCode
	}

	if err := s.profiles.Delete(ctx, account.ID); err != nil {
		s.logger.Error("failed to delete second-factor profile", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogSecondFactorEvent("second_factor_disabled", account.ID, true)
	s.logger.Info("second factor disabled", slog.String("account_id", account.ID))
	return nil
}

// Enabled reports whether the account has an enabled second factor.
// Absence of a profile is an ordinary false, not an error.
func (s *SecondFactorService) Enabled(ctx context.Context, accountID string) (bool, error) {
	profile, err := s.profiles.GetByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("failed to load second-factor profile", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return profile.State() == models.SecondFactorEnabled, nil
}

// Status returns the account-facing view of the profile. Never exposes
// secret material or code hashes.
func (s *SecondFactorService) Status(ctx context.Context, accountID string) (*models.SecondFactorStatus, error) {
	profile, err := s.profiles.GetByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.SecondFactorStatus{}, nil
		}
		s.logger.Error("failed to load second-factor profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.SecondFactorStatus{
		Enabled:                profile.State() == models.SecondFactorEnabled,
		RecoveryCodesRemaining: len(profile.RecoveryCodeHashes),
		LastUsedAt:             profile.LastUsedAt,
	}, nil
}

// getProfile loads the profile, mapping absence to a nil profile rather
// than an error so State() can report disabled.
func (s *SecondFactorService) getProfile(ctx context.Context, accountID string) (*models.SecondFactorProfile, error) {
	profile, err := s.profiles.GetByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to load second-factor profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return profile, nil
}

// checkTOTP decrypts the stored secret and validates a time-step code
// against it. A passing code bumps the last-used marker so the same step
// cannot be replayed.
func (s *SecondFactorService) checkTOTP(ctx context.Context, profile *models.SecondFactorProfile, code string) (bool, error) {
	secretBytes, err := s.totp.DecryptSecret(profile.SecretEncrypted, profile.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt second-factor secret", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	valid, err := s.totp.ValidateTOTP(string(secretBytes), code, profile.LastUsedAt)
	if err != nil {
		s.logger.Error("code validation error", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	if !valid {
		return false, nil
	}

	if err := s.profiles.UpdateLastUsed(ctx, profile.AccountID); err != nil {
		s.logger.Error("failed to update last-used marker", slog.Any("error", err))
	}
	return true, nil
}

// consumeRecoveryCode checks the submitted value against the stored hash
// list and burns the matching entry. The shrunken list must persist before
// we report success; a code that cannot be marked used stays unusable.
func (s *SecondFactorService) consumeRecoveryCode(ctx context.Context, accountID string, profile *models.SecondFactorProfile, code string) (bool, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return false, nil
	}

	for i, hash := range profile.RecoveryCodeHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalized)) != nil {
			continue
		}

		remaining := make([]string, 0, len(profile.RecoveryCodeHashes)-1)
		remaining = append(remaining, profile.RecoveryCodeHashes[:i]...)
		remaining = append(remaining, profile.RecoveryCodeHashes[i+1:]...)

		if err := s.profiles.UpdateRecoveryCodes(ctx, accountID, remaining); err != nil {
			s.logger.Error("failed to burn recovery code", slog.Any("error", err))
			return false, models.ErrInternalServer
		}
		profile.RecoveryCodeHashes = remaining

		s.auditLogger.LogSecondFactorEvent("second_factor_recovery_code_used", accountID, true)
		s.logger.Info("recovery code consumed",
			slog.String("account_id", accountID),
			slog.Int("codes_remaining", len(remaining)))
		return true, nil
	}

	return false, nil
}
