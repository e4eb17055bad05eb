package core

import (
	"context"
	"time"
)

// SessionStore persists sessions. Implementations must make CommitTurn a
// single indivisible operation: concurrent readers observe the session
// either entirely before or entirely after a commit, never in between, and
// two commits against the same base turn count cannot both succeed.
type SessionStore interface {
	// Create persists a new session. The session id must not already exist.
	Create(ctx context.Context, sess *Session) error

	// Get returns a snapshot of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// CommitTurn atomically appends the turn, increments the turn count,
	// applies the optional phase/status overwrites, and refreshes the update
	// timestamp, conditional on the persisted turn count still equalling
	// commit.Turn.Index. Returns the post-commit snapshot.
	//
	// Errors: ErrNotFound, ErrSessionNotActive, ErrConflict (stale base turn
	// count), ErrPersistence (store unavailable after bounded retries).
	CommitTurn(ctx context.Context, id string, commit TurnCommit) (*Session, error)

	// SetStatus transitions the session's lifecycle state. Transitioning an
	// already-terminal session returns ErrSessionNotActive so callers can
	// keep quota release idempotent.
	SetStatus(ctx context.Context, id string, status Status) error

	// SweepStale marks active sessions not updated since the cutoff as
	// abandoned and returns snapshots of the sessions it transitioned, so
	// the caller can release their quota slots.
	SweepStale(ctx context.Context, cutoff time.Time) ([]*Session, error)
}
