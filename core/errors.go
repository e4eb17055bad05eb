package core

import (
	"errors"
	"fmt"
)

// Caller-facing error taxonomy. Every error crossing the engine or HTTP
// boundary wraps exactly one of these sentinels; internal diagnostic detail
// (store errors, SDK errors) stays on the wrapped chain and is logged, never
// returned to clients.
var (
	// ErrTimeout indicates the partner invocation exceeded its time budget.
	// The session is unchanged; the caller may retry.
	ErrTimeout = errors.New("partner invocation timed out")

	// ErrMalformedReply indicates the parser could not extract a non-empty
	// partner line even after the full-text fallback.
	ErrMalformedReply = errors.New("malformed partner reply")

	// ErrAgentFailure indicates the generative backend failed for a reason
	// other than the time budget. The session is unchanged.
	ErrAgentFailure = errors.New("partner invocation failed")

	// ErrConflict indicates another turn is already in flight for the
	// session, or a conditional write lost against a concurrent commit.
	ErrConflict = errors.New("concurrent turn in flight")

	// ErrRateLimited is the umbrella for quota denials. The two concrete
	// reasons below wrap it so callers can distinguish them with errors.Is.
	ErrRateLimited = errors.New("rate limited")

	// ErrDailyLimitExceeded denies session creation because the user already
	// started the maximum number of sessions today.
	ErrDailyLimitExceeded = fmt.Errorf("%w: daily session limit exceeded", ErrRateLimited)

	// ErrConcurrentLimitExceeded denies session creation because the user has
	// too many active sessions.
	ErrConcurrentLimitExceeded = fmt.Errorf("%w: concurrent session limit exceeded", ErrRateLimited)

	// ErrPersistence indicates the backing store stayed unavailable after
	// bounded retries. Session state is unchanged.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound indicates an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrSessionNotActive indicates the session exists but is completed or
	// abandoned and accepts no further turns.
	ErrSessionNotActive = errors.New("session not active")

	// ErrEmptyInput rejects a turn with no user text.
	ErrEmptyInput = errors.New("empty user input")

	// ErrInputTooLong rejects a turn whose user text exceeds the bound.
	ErrInputTooLong = errors.New("user input too long")
)
