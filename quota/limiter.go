package quota

import (
	"context"
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
)

// Default admission caps.
const (
	DefaultDailyLimit      = 10
	DefaultConcurrentLimit = 3
)

// Options configures a Limiter.
type Options struct {
	DailyLimit      int
	ConcurrentLimit int
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Limiter enforces per-user admission quota over a QuotaStore. It is
// constructed once at process start and injected wherever sessions are
// created, so tests can substitute isolated instances.
type Limiter struct {
	store           core.QuotaStore
	dailyLimit      int
	concurrentLimit int
	now             func() time.Time
}

// NewLimiter constructs a Limiter with default caps.
func NewLimiter(store core.QuotaStore, optFns ...func(o *Options)) *Limiter {
	opts := Options{
		DailyLimit:      DefaultDailyLimit,
		ConcurrentLimit: DefaultConcurrentLimit,
		Clock:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Limiter{
		store:           store,
		dailyLimit:      opts.DailyLimit,
		concurrentLimit: opts.ConcurrentLimit,
		now:             opts.Clock,
	}
}

// CheckAndReserve admits one new session for the user, atomically
// incrementing both the daily and the active counters. Denials return
// core.ErrDailyLimitExceeded or core.ErrConcurrentLimitExceeded, both of
// which satisfy errors.Is(err, core.ErrRateLimited).
func (l *Limiter) CheckAndReserve(ctx context.Context, userID string) error {
	return l.store.Reserve(ctx, userID, l.now().UTC(), l.dailyLimit, l.concurrentLimit)
}

// Release returns the user's active-session slot. The daily counter is never
// decremented intraday.
func (l *Limiter) Release(ctx context.Context, userID string) error {
	return l.store.Release(ctx, userID)
}

// Usage returns the user's current counters.
func (l *Limiter) Usage(ctx context.Context, userID string) (*core.UserQuota, error) {
	return l.store.Usage(ctx, userID)
}
