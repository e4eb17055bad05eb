// Package improv provides a high-level façade over the turn engine and its
// services (session store, quota limiter, partner cache & logging) for
// embedding the improv practice loop in another process. Most applications
// interact with this package by:
//  1. Creating an Improv via New() with a model.Model (optionally overriding
//     the default in-memory stores)
//  2. Starting sessions with StartSession
//  3. Driving the conversation with ExecuteTurn until the coaching turn
//     completes the session
//
// The façade delegates orchestration to engine.Engine while keeping setup
// concise. All defaults are safe for local development and testing; the HTTP
// service in cmd/improvd supplies a SQLite store and a structured logger.
package improv

import (
	"context"
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/antonajp/ai4joy-sub002/engine"
	"github.com/antonajp/ai4joy-sub002/logging"
	"github.com/antonajp/ai4joy-sub002/model"
	"github.com/antonajp/ai4joy-sub002/partner"
	"github.com/antonajp/ai4joy-sub002/quota"
	"github.com/antonajp/ai4joy-sub002/session"
)

// Options configures the Improv instance.
type Options struct {
	// TurnTimeout bounds each partner invocation.
	TurnTimeout time.Duration
	// MaxInputLen bounds user input length in runes.
	MaxInputLen int
	// CoachingTurn is the 1-indexed turn that carries the coaching critique
	// and completes the session. Zero disables coaching.
	CoachingTurn int
	// DailyLimit and ConcurrentLimit cap per-user session admission.
	DailyLimit      int
	ConcurrentLimit int
	// PartnerCacheTTL bounds how long a configured partner handle is reused.
	PartnerCacheTTL time.Duration

	// Stores (default to in-memory implementations if not provided).
	SessionStore core.SessionStore
	QuotaStore   core.QuotaStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Improv is the high-level façade aggregating the engine and its services.
type Improv struct {
	engine *engine.Engine
}

// New creates an Improv instance around the given model with optional
// overrides. Any unset store is initialized with an in-memory implementation.
func New(llm model.Model, optFns ...func(o *Options)) *Improv {
	opts := Options{
		TurnTimeout:     engine.DefaultTurnTimeout,
		MaxInputLen:     engine.DefaultMaxInputLen,
		CoachingTurn:    engine.DefaultCoachingTurn,
		DailyLimit:      quota.DefaultDailyLimit,
		ConcurrentLimit: quota.DefaultConcurrentLimit,
		PartnerCacheTTL: partner.DefaultTTL,
		SessionStore:    session.NewInMemoryStore(),
		QuotaStore:      quota.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	limiter := quota.NewLimiter(opts.QuotaStore, func(o *quota.Options) {
		o.DailyLimit = opts.DailyLimit
		o.ConcurrentLimit = opts.ConcurrentLimit
	})
	partners := partner.NewCache(llm, func(o *partner.CacheOptions) {
		o.TTL = opts.PartnerCacheTTL
	})

	e := engine.New(opts.SessionStore, limiter, partners, func(o *engine.Options) {
		o.TurnTimeout = opts.TurnTimeout
		o.MaxInputLen = opts.MaxInputLen
		o.CoachingTurn = opts.CoachingTurn
		o.Logger = opts.Logger
	})

	return &Improv{engine: e}
}

// Engine exposes the underlying engine, e.g. for mounting the HTTP API.
func (i *Improv) Engine() *engine.Engine { return i.engine }

// StartSession admits a new practice session for the user.
func (i *Improv) StartSession(ctx context.Context, userID, scenario string) (*core.Session, error) {
	return i.engine.StartSession(ctx, userID, scenario)
}

// ExecuteTurn runs one conversational turn for the session.
func (i *Improv) ExecuteTurn(ctx context.Context, sessionID, userInput string) (*core.TurnResult, error) {
	return i.engine.ExecuteTurn(ctx, sessionID, userInput)
}

// EndSession closes a session before its coaching turn.
func (i *Improv) EndSession(ctx context.Context, sessionID string, abandon bool) error {
	return i.engine.EndSession(ctx, sessionID, abandon)
}

// GetSession returns a snapshot of the session including its turns.
func (i *Improv) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	return i.engine.GetSession(ctx, sessionID)
}
