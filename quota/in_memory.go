package quota

import (
	"context"
	"sync"
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
)

// InMemoryStore is a volatile QuotaStore keeping counters in a process-local
// map. Suited for tests and single-process deployments; the store mutex makes
// each Reserve/Release atomic per process.
type InMemoryStore struct {
	mu     sync.Mutex
	quotas map[string]*core.UserQuota
}

// NewInMemoryStore constructs an empty in-memory quota store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{quotas: make(map[string]*core.UserQuota)}
}

// Reserve implements core.QuotaStore.
func (s *InMemoryStore) Reserve(ctx context.Context, userID string, now time.Time, dailyLimit, concurrentLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotas[userID]
	if !ok {
		q = &core.UserQuota{UserID: userID, LastReset: now}
		s.quotas[userID] = q
	}

	if !sameUTCDay(q.LastReset, now) {
		q.SessionsToday = 0
		q.LastReset = now
	}

	if q.SessionsToday >= dailyLimit {
		return core.ErrDailyLimitExceeded
	}
	if q.ActiveSessions >= concurrentLimit {
		return core.ErrConcurrentLimitExceeded
	}

	q.SessionsToday++
	q.ActiveSessions++
	return nil
}

// Release implements core.QuotaStore.
func (s *InMemoryStore) Release(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.quotas[userID]; ok && q.ActiveSessions > 0 {
		q.ActiveSessions--
	}
	return nil
}

// Usage implements core.QuotaStore.
func (s *InMemoryStore) Usage(ctx context.Context, userID string) (*core.UserQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.quotas[userID]; ok {
		clone := *q
		return &clone, nil
	}
	return &core.UserQuota{UserID: userID}, nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Interface compliance (compile-time assertion)
var _ core.QuotaStore = (*InMemoryStore)(nil)
