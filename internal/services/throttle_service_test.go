package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/gatehouse/internal/cache"
	"github.com/invoiceflow/gatehouse/internal/models"
)

func newThrottleHarness(t *testing.T) (*ThrottleService, *MockAttemptLog, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	attempts := &MockAttemptLog{}
	svc := NewThrottleService(
		cache.NewCounterStore(rdb),
		attempts,
		ThrottleConfig{Threshold: 5, Window: 15 * time.Minute},
		slog.Default(),
	)
	return svc, attempts, mr
}

func failTimes(t *testing.T, svc *ThrottleService, src models.SourceContext, username string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		svc.Record(context.Background(), src, username, false, models.FailureInvalidCredentials)
	}
}

func TestThrottleService_Check_CleanSlate(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)

	locked, msg := svc.Check(context.Background(), "1.2.3.4", "bob")

	assert.False(t, locked)
	assert.Empty(t, msg)
}

func TestThrottleService_Check_BelowThreshold(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 4)

	locked, _ := svc.Check(context.Background(), "1.2.3.4", "bob")
	assert.False(t, locked)
}

func TestThrottleService_Check_LockedAfterThresholdFailures(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 5)

	locked, msg := svc.Check(context.Background(), "1.2.3.4", "bob")
	assert.True(t, locked)
	assert.Equal(t, LockoutMessage, msg)
}

func TestThrottleService_Check_UsernameLockFollowsAcrossAddresses(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 5)

	// Same username from a fresh address is still locked
	locked, _ := svc.Check(context.Background(), "5.6.7.8", "bob")
	assert.True(t, locked)

	// A different username from the fresh address is not
	locked, _ = svc.Check(context.Background(), "5.6.7.8", "carol")
	assert.False(t, locked)
}

func TestThrottleService_Check_AddressLockCoversAllUsernames(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	// Spray five different usernames from one address
	for _, username := range []string{"u1", "u2", "u3", "u4", "u5"} {
		svc.Record(context.Background(), src, username, false, models.FailureInvalidCredentials)
	}

	locked, _ := svc.Check(context.Background(), "1.2.3.4", "someone-new")
	assert.True(t, locked)
}

func TestThrottleService_Check_UsernameCaseInsensitive(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "Bob", 5)

	locked, _ := svc.Check(context.Background(), "5.6.7.8", "bob")
	assert.True(t, locked)
}

func TestThrottleService_Check_EmptyUsernameSkipsUsernameCounter(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "", 5)

	// The address took all five hits; no username counter exists
	locked, _ := svc.Check(context.Background(), "1.2.3.4", "")
	assert.True(t, locked)

	locked, _ = svc.Check(context.Background(), "5.6.7.8", "")
	assert.False(t, locked)
}

func TestThrottleService_Check_StoreDownFailsOpen(t *testing.T) {
	svc, _, mr := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 5)
	mr.Close()

	locked, _ := svc.Check(context.Background(), "1.2.3.4", "bob")
	assert.False(t, locked)
}

func TestThrottleService_Record_SuccessResetsBothCounters(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 5)
	svc.Record(context.Background(), src, "bob", true, "")

	// One fresh failure after the reset must not lock
	svc.Record(context.Background(), src, "bob", false, models.FailureInvalidCredentials)
	locked, _ := svc.Check(context.Background(), "1.2.3.4", "bob")
	assert.False(t, locked)
}

func TestThrottleService_Record_WindowExpiryUnlocks(t *testing.T) {
	svc, _, mr := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 5)

	locked, _ := svc.Check(context.Background(), "1.2.3.4", "bob")
	require.True(t, locked)

	mr.FastForward(15*time.Minute + time.Second)

	locked, _ = svc.Check(context.Background(), "1.2.3.4", "bob")
	assert.False(t, locked)
}

func TestThrottleService_Record_FailuresDoNotExtendWindow(t *testing.T) {
	svc, _, mr := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 5)

	// Hammering during the lockout keeps counting but must not push the
	// expiry out; the window is fixed from the first failure.
	mr.FastForward(14 * time.Minute)
	failTimes(t, svc, src, "bob", 3)
	mr.FastForward(time.Minute + time.Second)

	locked, _ := svc.Check(context.Background(), "1.2.3.4", "bob")
	assert.False(t, locked)
}

func TestThrottleService_Record_AlwaysWritesAuditRow(t *testing.T) {
	svc, attempts, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	svc.Record(context.Background(), src, "bob", false, models.FailureInvalidCredentials)
	svc.Record(context.Background(), src, "bob", true, "")
	svc.Record(context.Background(), src, "bob", false, models.FailureLockedOut)

	require.Len(t, attempts.Attempts, 3)

	first := attempts.Attempts[0]
	assert.Equal(t, "bob", first.Username)
	assert.Equal(t, "1.2.3.4", first.IPAddress)
	assert.Equal(t, "test-agent", first.UserAgent)
	assert.False(t, first.Success)
	require.NotNil(t, first.FailureReason)
	assert.Equal(t, models.FailureInvalidCredentials, *first.FailureReason)

	second := attempts.Attempts[1]
	assert.True(t, second.Success)
	assert.Nil(t, second.FailureReason)

	third := attempts.Attempts[2]
	require.NotNil(t, third.FailureReason)
	assert.Equal(t, models.FailureLockedOut, *third.FailureReason)
}

func TestThrottleService_Record_AuditInsertFailureIsSwallowed(t *testing.T) {
	svc, _, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failing := &MockAttemptLog{
		RecordAttemptFunc: func(ctx context.Context, attempt *models.LoginAttempt) error {
			return models.ErrInternalServer
		},
	}
	svc.attempts = failing

	// Must not panic or surface the error, and the counter still moves
	svc.Record(context.Background(), src, "bob", false, models.FailureInvalidCredentials)

	count, found, err := svc.counters.Get(context.Background(), addressKey("1.2.3.4"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), count)
}

func TestThrottleService_BobScenario(t *testing.T) {
	// Five failures for bob from 1.2.3.4, then the sixth attempt with the
	// correct password from the same address must come back locked.
	svc, attempts, _ := newThrottleHarness(t)
	src := models.SourceContext{IPAddress: "1.2.3.4", UserAgent: "test-agent"}

	failTimes(t, svc, src, "bob", 5)

	locked, msg := svc.Check(context.Background(), "1.2.3.4", "bob")
	assert.True(t, locked)
	assert.Equal(t, LockoutMessage, msg)

	// The locked attempt is still audited
	svc.Record(context.Background(), src, "bob", false, models.FailureLockedOut)
	assert.Len(t, attempts.Attempts, 6)
}
