package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/antonajp/ai4joy-sub002/logging"
	"github.com/antonajp/ai4joy-sub002/partner"
	"github.com/antonajp/ai4joy-sub002/quota"
	"github.com/antonajp/ai4joy-sub002/reply"
)

// Defaults for turn execution.
const (
	DefaultTurnTimeout  = 30 * time.Second
	DefaultMaxInputLen  = 2000
	DefaultCoachingTurn = core.DefaultCoachingTurn
)

// Options holds configuration overrides passed to New().
type Options struct {
	// TurnTimeout bounds the partner invocation per turn.
	TurnTimeout time.Duration
	// MaxInputLen bounds user input length in runes.
	MaxInputLen int
	// CoachingTurn is the 1-indexed turn carrying the coaching critique and
	// completing the session. Zero disables coaching and auto-completion.
	CoachingTurn int
	// Logger receives structured execution logs.
	Logger logging.Logger
}

// Engine is the top-level turn coordinator. Public methods are safe for
// concurrent use; execution is serialized per session, not globally.
type Engine struct {
	store    core.SessionStore
	limiter  *quota.Limiter
	partners *partner.Cache

	turnTimeout  time.Duration
	maxInputLen  int
	coachingTurn int
	logger       logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs an Engine with optional overrides.
func New(store core.SessionStore, limiter *quota.Limiter, partners *partner.Cache, optFns ...func(o *Options)) *Engine {
	opts := Options{
		TurnTimeout:  DefaultTurnTimeout,
		MaxInputLen:  DefaultMaxInputLen,
		CoachingTurn: DefaultCoachingTurn,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		store:        store,
		limiter:      limiter,
		partners:     partners,
		turnTimeout:  opts.TurnTimeout,
		maxInputLen:  opts.MaxInputLen,
		coachingTurn: opts.CoachingTurn,
		logger:       opts.Logger,
		inflight:     make(map[string]struct{}),
	}
}

// StartSession admits a new session for the user, reserving a quota slot
// first. The reservation is rolled back if the session cannot be persisted.
func (e *Engine) StartSession(ctx context.Context, userID, scenario string) (*core.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: missing user id", core.ErrEmptyInput)
	}

	if err := e.limiter.CheckAndReserve(ctx, userID); err != nil {
		return nil, err
	}

	sess := core.NewSession(core.NewID(), userID, strings.TrimSpace(scenario))
	if err := e.store.Create(ctx, sess); err != nil {
		if relErr := e.limiter.Release(ctx, userID); relErr != nil {
			e.logger.Warn("quota rollback failed", "user_id", userID, "error", relErr.Error())
		}
		return nil, err
	}

	e.logger.Info("session started", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// ExecuteTurn runs one turn for the session. Exactly one execution per
// session is in flight at a time; a concurrent call observes
// core.ErrConflict immediately. On success exactly one turn is appended,
// with zero or one phase change and zero or one status change.
func (e *Engine) ExecuteTurn(ctx context.Context, sessionID, userInput string) (*core.TurnResult, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, core.ErrEmptyInput
	}
	if len([]rune(userInput)) > e.maxInputLen {
		return nil, fmt.Errorf("%w: %d runes exceeds limit %d", core.ErrInputTooLong, len([]rune(userInput)), e.maxInputLen)
	}

	if !e.tryAcquire(sessionID) {
		return nil, fmt.Errorf("%w: session %q", core.ErrConflict, sessionID)
	}
	defer e.release(sessionID)

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != core.StatusActive {
		return nil, fmt.Errorf("%w: session %q is %s", core.ErrSessionNotActive, sessionID, sess.Status)
	}

	tlog := logging.NewSessionLogger(e.logger, sess.ID, sess.UserID).WithTurn(sess.TurnCount)

	prePhase := core.PhaseForTurn(sess.TurnCount)
	coaching := core.CoachingDue(sess.TurnCount+1, e.coachingTurn)

	p, err := e.partners.Resolve(prePhase, coaching)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve partner: %v", core.ErrAgentFailure, err)
	}

	// The invocation is the only long suspension point. The deadline always
	// resolves before any commit: a timed-out turn leaves no trace.
	invokeCtx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.Invoke(invokeCtx, sess.Scenario, sess.Turns, userInput)
	latency := time.Since(start)
	tlog.LogModelCall(string(prePhase), latency, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || invokeCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: after %s", core.ErrTimeout, e.turnTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrAgentFailure, err)
	}

	parsed, err := reply.Parse(raw)
	if err != nil {
		return nil, err
	}
	if coaching && parsed.Coach == "" {
		return nil, fmt.Errorf("%w: coaching turn missing coach section", core.ErrMalformedReply)
	}

	turn := core.Turn{
		Index:     sess.TurnCount,
		UserInput: userInput,
		Reply:     parsed,
		Phase:     prePhase,
		Latency:   latency,
		Timestamp: time.Now().UTC(),
	}

	commit := core.TurnCommit{Turn: turn}
	if postPhase := core.PhaseForTurn(sess.TurnCount + 1); postPhase != sess.Phase {
		commit.Phase = postPhase
	}
	completed := coaching
	if completed {
		commit.Status = core.StatusCompleted
	}

	committed, err := e.store.CommitTurn(ctx, sessionID, commit)
	if err != nil {
		return nil, err
	}

	if completed {
		if relErr := e.limiter.Release(ctx, sess.UserID); relErr != nil {
			tlog.Warn("quota release failed", "error", relErr.Error())
		}
		tlog.Info("session completed", "turns", committed.TurnCount)
	}

	return &core.TurnResult{
		SessionID: sessionID,
		Turn:      turn,
		Phase:     committed.Phase,
		Status:    committed.Status,
	}, nil
}

// EndSession closes a session, marking it completed (normal close) or
// abandoned, and frees the user's active quota slot. Ending an
// already-terminal session is a no-op so the slot is never released twice.
func (e *Engine) EndSession(ctx context.Context, sessionID string, abandon bool) error {
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	status := core.StatusCompleted
	if abandon {
		status = core.StatusAbandoned
	}
	if err := e.store.SetStatus(ctx, sessionID, status); err != nil {
		if errors.Is(err, core.ErrSessionNotActive) {
			return nil
		}
		return err
	}

	if err := e.limiter.Release(ctx, sess.UserID); err != nil {
		e.logger.Warn("quota release failed", "user_id", sess.UserID, "error", err.Error())
	}
	e.logger.Info("session ended", "session_id", sessionID, "status", string(status))
	return nil
}

// GetSession returns a snapshot of the session.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	return e.store.Get(ctx, sessionID)
}

// SweepStale abandons active sessions idle longer than maxAge and releases
// their quota slots. Returns the number of sessions swept.
func (e *Engine) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	swept, err := e.store.SweepStale(ctx, time.Now().Add(-maxAge))
	for _, sess := range swept {
		if relErr := e.limiter.Release(ctx, sess.UserID); relErr != nil {
			e.logger.Warn("quota release failed", "user_id", sess.UserID, "error", relErr.Error())
		}
		e.logger.Info("session abandoned as stale", "session_id", sess.ID)
	}
	return len(swept), err
}

func (e *Engine) tryAcquire(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[sessionID]; busy {
		return false
	}
	e.inflight[sessionID] = struct{}{}
	return true
}

func (e *Engine) release(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, sessionID)
}
