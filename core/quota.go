package core

import (
	"context"
	"time"
)

// UserQuota tracks per-user session admission counters. SessionsToday resets
// to zero exactly once per UTC day; ActiveSessions never goes below zero.
type UserQuota struct {
	UserID         string    `json:"user_id"`
	SessionsToday  int       `json:"sessions_today"`
	ActiveSessions int       `json:"active_sessions"`
	LastReset      time.Time `json:"last_reset"`
}

// QuotaStore applies quota counter updates atomically per user. The
// check-then-increment in Reserve must not interleave with a concurrent
// Reserve for the same user.
type QuotaStore interface {
	// Reserve performs the day-boundary reset if LastReset predates the UTC
	// day of now, checks both caps, and on admission increments the daily
	// and active counters in the same atomic step. Denials return
	// ErrDailyLimitExceeded or ErrConcurrentLimitExceeded.
	Reserve(ctx context.Context, userID string, now time.Time, dailyLimit, concurrentLimit int) error

	// Release decrements the active counter, clamped at zero. The daily
	// counter is never decremented intraday.
	Release(ctx context.Context, userID string) error

	// Usage returns the current counters for a user, or a zero-valued quota
	// if the user has never reserved.
	Usage(ctx context.Context, userID string) (*UserQuota, error)
}
