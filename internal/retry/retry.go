// Package retry computes exponential backoff delays for failed sync rows.
// Pure, stateless, deterministically testable.
package retry

import "time"

const (
	// MaxRetries is the per-row attempt cap.
	MaxRetries = 5

	// maxDelay is the ceiling on any single computed delay.
	maxDelay = 30 * time.Second

	// AutoRecoveryCooldown is how long after its last auto-recovery reset
	// attempt a row at MaxRetries must wait before the pass resets it again;
	// a row never reset before is eligible at once.
	AutoRecoveryCooldown = 3600 * time.Second
)

// Delay returns the backoff delay for the given attempt number (0-based):
// min(maxDelay, 2^attempt) seconds.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the shift before it can overflow or dwarf maxDelay.
	if attempt > 30 {
		return maxDelay
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

// CanRetry reports whether a row with the given retry count may attempt
// another push.
func CanRetry(retryCount int) bool {
	return retryCount < MaxRetries
}

// ShouldAutoRecover reports whether a permanently-failed row (retryCount at
// the cap) is eligible for the auto-recovery reset pass, given the last
// reset attempt (nil if never attempted) and the current time.
func ShouldAutoRecover(retryCount int, lastResetAttempt *time.Time, now time.Time) bool {
	if retryCount < MaxRetries {
		return false
	}
	if lastResetAttempt == nil {
		return true
	}
	return now.Sub(*lastResetAttempt) > AutoRecoveryCooldown
}
