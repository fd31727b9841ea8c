package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
	pkglogger "github.com/invoiceflow/gatehouse/pkg/logger"
)

// SessionStore is the storage contract for session rows.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Session, error)
	DeleteForAccount(ctx context.Context, accountID, sessionID string) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteAllExcept(ctx context.Context, accountID, exceptTokenHash string) (int64, error)
	UpdateLastActivity(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, idleBefore, createdBefore time.Time) (int64, error)
}

// TaskRunner submits fire-and-forget work. Submissions may be dropped when
// the runner is saturated; callers must not depend on execution.
type TaskRunner interface {
	Submit(name string, fn func(context.Context)) bool
}

// SessionServiceConfig holds session lifetime behavior.
type SessionServiceConfig struct {
	IdleLifetime  time.Duration // sliding window since last activity
	MaxLifetime   time.Duration // absolute cap since creation
	TouchInterval time.Duration // minimum gap between activity writes
}

// SessionService owns the session registry: one row per live login,
// resolved on every request, removed permanently on logout or revocation.
type SessionService struct {
	store       SessionStore
	accounts    AccountRepository
	tasks       TaskRunner
	config      SessionServiceConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(
	store SessionStore,
	accounts AccountRepository,
	tasks TaskRunner,
	config SessionServiceConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *SessionService {
	return &SessionService{
		store:       store,
		accounts:    accounts,
		tasks:       tasks,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Create hashes the token and inserts the session row. The plaintext token
// is never stored; losing it means the session can only be revoked, not
// resumed. Sessions always start unverified; the access gate decides
// whether that matters for this account.
func (s *SessionService) Create(ctx context.Context, account *models.Account, token string, src models.SourceContext) (*models.Session, error) {
	device, browser, os := classifyClient(src.UserAgent)

	session := &models.Session{
		AccountID:            account.ID,
		TokenHash:            auth.HashSessionToken(token),
		IPAddress:            src.IPAddress,
		UserAgent:            src.UserAgent,
		Device:               device,
		Browser:              browser,
		OS:                   os,
		SecondFactorVerified: false,
	}

	created, err := s.store.Create(ctx, session)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogSessionEvent("session_created", account.ID, src.IPAddress, map[string]string{
		"session_id": created.ID,
		"device":     device,
		"browser":    browser,
	})

	return created, nil
}

// Resolve finds the live session and account behind a presented token.
// Expired rows are terminal: they are deleted on sight and reported as not
// found, exactly like a token that never existed.
func (s *SessionService) Resolve(ctx context.Context, token string) (*models.Session, *models.Account, error) {
	tokenHash := auth.HashSessionToken(token)

	session, err := s.store.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrSessionNotFound
		}
		return nil, nil, err
	}

	if s.expired(session) {
		if err := s.store.DeleteByTokenHash(ctx, tokenHash); err != nil {
			s.logger.Error("failed to delete expired session",
				slog.String("session_id", session.ID),
				slog.Any("error", err))
		}
		return nil, nil, models.ErrSessionNotFound
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrSessionNotFound
		}
		return nil, nil, err
	}

	// Deactivated accounts lose every session immediately
	if !account.Active {
		return nil, nil, models.ErrSessionNotFound
	}

	s.touch(session)

	return session, account, nil
}

// List returns the account's sessions newest activity first, with the
// caller's own row flagged.
func (s *SessionService) List(ctx context.Context, account *models.Account, currentToken string) ([]models.SessionView, error) {
	sessions, err := s.store.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	currentHash := auth.HashSessionToken(currentToken)

	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, models.SessionView{
			ID:             session.ID,
			IPAddress:      session.IPAddress,
			Device:         session.Device,
			Browser:        session.Browser,
			OS:             session.OS,
			CreatedAt:      session.CreatedAt,
			LastActivityAt: session.LastActivityAt,
			IsCurrent:      session.TokenHash == currentHash,
		})
	}

	return views, nil
}

// Revoke deletes one of the account's sessions. A session that does not
// exist and one that belongs to someone else get the same answer.
func (s *SessionService) Revoke(ctx context.Context, account *models.Account, sessionID string) error {
	if err := s.store.DeleteForAccount(ctx, account.ID, sessionID); err != nil {
		return err
	}

	s.auditLogger.LogSessionEvent("session_revoked", account.ID, "", map[string]string{
		"session_id": sessionID,
	})

	return nil
}

// RevokeAll deletes every session for the account except the one matching
// exceptToken and returns the count removed. An empty exceptToken wipes
// them all.
func (s *SessionService) RevokeAll(ctx context.Context, accountID, exceptToken string) (int64, error) {
	exceptHash := ""
	if exceptToken != "" {
		exceptHash = auth.HashSessionToken(exceptToken)
	}

	removed, err := s.store.DeleteAllExcept(ctx, accountID, exceptHash)
	if err != nil {
		return 0, err
	}

	s.auditLogger.LogSessionEvent("sessions_revoked_all", accountID, "", map[string]string{
		"spared_current": boolLabel(exceptToken != ""),
	})

	return removed, nil
}

// DeleteByToken removes the session behind a token. Idempotent.
func (s *SessionService) DeleteByToken(ctx context.Context, token string) error {
	return s.store.DeleteByTokenHash(ctx, auth.HashSessionToken(token))
}

// MarkVerified records a successful second-factor check on the session.
func (s *SessionService) MarkVerified(ctx context.Context, sessionID string) error {
	return s.store.MarkVerified(ctx, sessionID)
}

// CleanupExpired reaps sessions past either lifetime. Called by the
// background cleaner; request paths never wait on it.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	now := time.Now()
	return s.store.DeleteExpired(ctx, now.Add(-s.config.IdleLifetime), now.Add(-s.config.MaxLifetime))
}

// touch bumps last_activity_at off the request path, at most once per
// touch interval per session.
func (s *SessionService) touch(session *models.Session) {
	if time.Since(session.LastActivityAt) < s.config.TouchInterval {
		return
	}

	id := session.ID
	submitted := s.tasks.Submit("session_touch", func(ctx context.Context) {
		if err := s.store.UpdateLastActivity(ctx, id); err != nil {
			s.logger.Error("failed to update session activity",
				slog.String("session_id", id),
				slog.Any("error", err))
		}
	})
	if !submitted {
		s.logger.Warn("session touch dropped, task runner saturated",
			slog.String("session_id", id))
	}
}

func (s *SessionService) expired(session *models.Session) bool {
	now := time.Now()
	if now.Sub(session.LastActivityAt) > s.config.IdleLifetime {
		return true
	}
	return now.Sub(session.CreatedAt) > s.config.MaxLifetime
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
