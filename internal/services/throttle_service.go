package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/invoiceflow/gatehouse/internal/models"
	pkglogger "github.com/invoiceflow/gatehouse/pkg/logger"
)

// LockoutMessage is the user-visible text returned while a counter is over
// threshold. Deliberately does not say which counter tripped.
const LockoutMessage = "Too many failed login attempts. Please try again later."

// CounterStore is the volatile counter port behind the throttle. Counters
// disappear when the store restarts; lockouts silently reset with them.
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, keys ...string) error
}

// AttemptLog appends one audit row per authentication attempt.
type AttemptLog interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// ThrottleConfig holds the lockout threshold and counter window.
type ThrottleConfig struct {
	Threshold int
	Window    time.Duration
}

// ThrottleService tracks failed login attempts per source address and per
// username and reports lockout once either count reaches the threshold.
type ThrottleService struct {
	counters CounterStore
	attempts AttemptLog
	config   ThrottleConfig
	logger   *slog.Logger
}

// NewThrottleService creates a new ThrottleService
func NewThrottleService(counters CounterStore, attempts AttemptLog, config ThrottleConfig, logger *slog.Logger) *ThrottleService {
	return &ThrottleService{
		counters: counters,
		attempts: attempts,
		config:   config,
		logger:   logger,
	}
}

// Check reports whether the source address or the username is currently
// locked out. Counter-store faults are logged and treated as not locked;
// an unreachable store must never lock out the whole user base.
func (s *ThrottleService) Check(ctx context.Context, sourceAddr, username string) (bool, string) {
	if locked := s.counterAtThreshold(ctx, addressKey(sourceAddr)); locked {
		s.logger.Warn("source address locked out", slog.String("ip_address", sourceAddr))
		return true, LockoutMessage
	}

	if username = normalizeUsername(username); username != "" {
		if locked := s.counterAtThreshold(ctx, usernameKey(username)); locked {
			s.logger.Warn("username locked out",
				slog.String("username", pkglogger.MaskUsername(username)),
				slog.String("ip_address", sourceAddr))
			return true, LockoutMessage
		}
	}

	return false, ""
}

// Record notes the outcome of an authentication attempt. On failure both
// counters are incremented, created with the window TTL when absent; on
// success both are deleted. One audit row is always appended, whatever the
// lock state. Every fault in here is logged and swallowed: recording must
// never decide an authentication outcome.
func (s *ThrottleService) Record(ctx context.Context, src models.SourceContext, username string, success bool, failureReason string) {
	normalized := normalizeUsername(username)

	if success {
		keys := []string{addressKey(src.IPAddress)}
		if normalized != "" {
			keys = append(keys, usernameKey(normalized))
		}
		if err := s.counters.Delete(ctx, keys...); err != nil {
			s.logger.Error("failed to reset throttle counters", slog.Any("error", err))
		}
	} else {
		if _, err := s.counters.Increment(ctx, addressKey(src.IPAddress), s.config.Window); err != nil {
			s.logger.Error("failed to increment address counter", slog.Any("error", err))
		}
		if normalized != "" {
			if _, err := s.counters.Increment(ctx, usernameKey(normalized), s.config.Window); err != nil {
				s.logger.Error("failed to increment username counter", slog.Any("error", err))
			}
		}
	}

	attempt := &models.LoginAttempt{
		Username:  normalized,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		Success:   success,
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
	}
}

func (s *ThrottleService) counterAtThreshold(ctx context.Context, key string) bool {
	count, found, err := s.counters.Get(ctx, key)
	if err != nil {
		s.logger.Error("failed to read throttle counter",
			slog.String("key", key),
			slog.Any("error", err))
		return false
	}

	return found && count >= int64(s.config.Threshold)
}

func addressKey(sourceAddr string) string {
	return "throttle:ip:" + sourceAddr
}

func usernameKey(username string) string {
	return "throttle:user:" + username
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
