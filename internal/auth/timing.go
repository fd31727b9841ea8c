package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig controls the minimum response time for authentication
// failures. The lockout check deliberately runs before any password
// hashing, so a locked-out reply would otherwise return measurably faster
// than a wrong-password reply; the floor narrows that gap.
type TimingConfig struct {
	Floor          time.Duration // minimum elapsed time for a failed attempt
	Jitter         time.Duration // random extra delay range
	DelayOnSuccess bool          // apply the floor to successful logins too
}

// TimingDelay pads authentication responses up to the configured floor.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandDuration returns a secure random duration in [0, max).
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}

	n := binary.BigEndian.Uint64(buf[:])
	return time.Duration(n % uint64(max))
}

// Wait sleeps for the full floor plus jitter. Used when no start time is
// available.
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	time.Sleep(td.config.Floor + cryptoRandDuration(td.config.Jitter))
}

// WaitFrom sleeps only for the remainder of the floor measured from
// startTime, so work already done (throttle reads, hash comparisons)
// counts toward the target.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	target := td.config.Floor + cryptoRandDuration(td.config.Jitter)

	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
