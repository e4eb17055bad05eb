package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
)

// InMemoryStore is a volatile SessionStore keeping sessions in a
// process-local map. Safe for concurrent access; every session handed out is
// a clone so callers can never mutate internal state, and every write
// happens under the store mutex so commits are indivisible.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create implements core.SessionStore.
func (s *InMemoryStore) Create(ctx context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("%w: session %q already exists", core.ErrConflict, sess.ID)
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get implements core.SessionStore.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrNotFound, id)
	}
	return sess.Clone(), nil
}

// CommitTurn implements core.SessionStore. The whole commit happens under
// the write lock: a concurrent reader sees the session before or after, never
// in between.
func (s *InMemoryStore) CommitTurn(ctx context.Context, id string, commit core.TurnCommit) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrNotFound, id)
	}
	if sess.Status != core.StatusActive {
		return nil, fmt.Errorf("%w: session %q is %s", core.ErrSessionNotActive, id, sess.Status)
	}
	if sess.TurnCount != commit.Turn.Index {
		return nil, fmt.Errorf("%w: turn %d committed against turn count %d",
			core.ErrConflict, commit.Turn.Index, sess.TurnCount)
	}

	sess.Turns = append(sess.Turns, commit.Turn)
	sess.TurnCount++
	if commit.Phase != "" {
		sess.Phase = commit.Phase
	}
	if commit.Status != "" {
		sess.Status = commit.Status
	}
	sess.Updated = time.Now().UTC()

	return sess.Clone(), nil
}

// SetStatus implements core.SessionStore.
func (s *InMemoryStore) SetStatus(ctx context.Context, id string, status core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrNotFound, id)
	}
	if sess.Status != core.StatusActive {
		return fmt.Errorf("%w: session %q is %s", core.ErrSessionNotActive, id, sess.Status)
	}
	sess.Status = status
	sess.Updated = time.Now().UTC()
	return nil
}

// SweepStale implements core.SessionStore.
func (s *InMemoryStore) SweepStale(ctx context.Context, cutoff time.Time) ([]*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []*core.Session
	for _, sess := range s.sessions {
		if sess.Status == core.StatusActive && sess.Updated.Before(cutoff) {
			sess.Status = core.StatusAbandoned
			sess.Updated = time.Now().UTC()
			swept = append(swept, sess.Clone())
		}
	}
	return swept, nil
}

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)
