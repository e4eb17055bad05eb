package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/antonajp/ai4joy-sub002/model"
	"github.com/antonajp/ai4joy-sub002/partner"
	"github.com/antonajp/ai4joy-sub002/quota"
	"github.com/antonajp/ai4joy-sub002/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine  *Engine
	store   *session.InMemoryStore
	limiter *quota.Limiter
	model   *model.MockModel
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	store := session.NewInMemoryStore()
	limiter := quota.NewLimiter(quota.NewInMemoryStore())
	mock := model.NewMockModel("mock", "test")
	cache := partner.NewCache(mock)
	return &fixture{
		engine:  New(store, limiter, cache, optFns...),
		store:   store,
		limiter: limiter,
		model:   mock,
	}
}

func (f *fixture) startSession(t *testing.T) *core.Session {
	t.Helper()
	sess, err := f.engine.StartSession(context.Background(), "u1", "stuck elevator")
	require.NoError(t, err)
	return sess
}

func TestEngine_StartSession(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	assert.Equal(t, core.StatusActive, sess.Status)
	assert.Equal(t, core.PhaseWarmup, sess.Phase)
	assert.Equal(t, "stuck elevator", sess.Scenario)

	q, err := f.limiter.Usage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, q.ActiveSessions)
	assert.Equal(t, 1, q.SessionsToday)
}

func TestEngine_StartSessionDeniedByQuota(t *testing.T) {
	store := session.NewInMemoryStore()
	limiter := quota.NewLimiter(quota.NewInMemoryStore(), func(o *quota.Options) {
		o.ConcurrentLimit = 1
	})
	e := New(store, limiter, partner.NewCache(model.NewMockModel("mock", "test")))

	_, err := e.StartSession(context.Background(), "u1", "")
	require.NoError(t, err)

	_, err = e.StartSession(context.Background(), "u1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConcurrentLimitExceeded)
	assert.ErrorIs(t, err, core.ErrRateLimited)
}

// failingCreateStore rejects every Create to exercise quota rollback.
type failingCreateStore struct {
	*session.InMemoryStore
}

func (f *failingCreateStore) Create(ctx context.Context, sess *core.Session) error {
	return fmt.Errorf("%w: disk gone", core.ErrPersistence)
}

func TestEngine_StartSessionRollsBackQuotaOnStoreFailure(t *testing.T) {
	limiter := quota.NewLimiter(quota.NewInMemoryStore())
	e := New(&failingCreateStore{session.NewInMemoryStore()}, limiter,
		partner.NewCache(model.NewMockModel("mock", "test")))

	_, err := e.StartSession(context.Background(), "u1", "")
	assert.ErrorIs(t, err, core.ErrPersistence)

	q, qerr := limiter.Usage(context.Background(), "u1")
	require.NoError(t, qerr)
	assert.Equal(t, 0, q.ActiveSessions, "reservation must be rolled back")
}

func TestEngine_ExecuteTurnHappyPath(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	f.model.AddResponse("we should run", "PARTNER: Yes, and we should run.\nROOM: tense murmurs")

	res, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "we should run")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Turn.Index)
	assert.Equal(t, "Yes, and we should run.", res.Turn.Reply.Partner)
	assert.Equal(t, "tense murmurs", res.Turn.Reply.Room)
	assert.Empty(t, res.Turn.Reply.Coach)
	assert.Equal(t, core.PhaseWarmup, res.Turn.Phase)
	assert.Equal(t, core.StatusActive, res.Status)
	assert.Greater(t, res.Turn.Latency, time.Duration(0))

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
}

func TestEngine_ExecuteTurnUnlabeledReplyFallsBack(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	f.model.AddResponse("go", "Let's just go.")

	res, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "go")
	require.NoError(t, err)
	assert.Equal(t, "Let's just go.", res.Turn.Reply.Partner)
	assert.Empty(t, res.Turn.Reply.Room)
}

func TestEngine_ExecuteTurnInputValidation(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	_, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "   ")
	assert.ErrorIs(t, err, core.ErrEmptyInput)

	long := make([]rune, DefaultMaxInputLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.engine.ExecuteTurn(context.Background(), sess.ID, string(long))
	assert.ErrorIs(t, err, core.ErrInputTooLong)
}

func TestEngine_ExecuteTurnUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ExecuteTurn(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEngine_ExecuteTurnOnEndedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	require.NoError(t, f.engine.EndSession(context.Background(), sess.ID, false))

	_, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "hello")
	assert.ErrorIs(t, err, core.ErrSessionNotActive)
}

func TestEngine_ConcurrentTurnConflicts(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	started := make(chan struct{})
	gate := make(chan struct{})
	f.model.SetDelay(func(ctx context.Context) error {
		close(started)
		<-gate
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.engine.ExecuteTurn(context.Background(), sess.ID, "first offer")
	}()

	<-started
	// Second call for the same session must fail fast, not queue.
	_, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "second offer")
	assert.ErrorIs(t, err, core.ErrConflict)

	close(gate)
	wg.Wait()
	require.NoError(t, firstErr)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount, "the losing call must not write a turn")
}

func TestEngine_TimeoutLeavesNoTrace(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.TurnTimeout = 20 * time.Millisecond })
	sess := f.startSession(t)

	f.model.SetDelay(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "slow offer")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TurnCount)
	assert.Empty(t, got.Turns)
}

func TestEngine_AgentFailureSurfaced(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	f.model.SetDelay(func(ctx context.Context) error {
		return errors.New("upstream 500")
	})

	_, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "offer")
	assert.ErrorIs(t, err, core.ErrAgentFailure)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TurnCount)
}

func TestEngine_EmptyGenerationIsMalformed(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	f.model.AddResponse("offer", "   ")

	_, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "offer")
	assert.ErrorIs(t, err, core.ErrMalformedReply)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TurnCount)
}

func playTurns(t *testing.T, f *fixture, sessionID string, n int) []*core.TurnResult {
	t.Helper()
	results := make([]*core.TurnResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := f.engine.ExecuteTurn(context.Background(), sessionID, fmt.Sprintf("offer %d", i))
		require.NoError(t, err)
		results = append(results, res)
	}
	return results
}

func TestEngine_TurnIndicesGapFree(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	results := playTurns(t, f, sess.ID, 6)
	for i, res := range results {
		assert.Equal(t, i, res.Turn.Index)
	}

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 6)
	for i, turn := range got.Turns {
		assert.Equal(t, i, turn.Index)
	}
}

func TestEngine_PhaseTransitionAfterFourTurns(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	results := playTurns(t, f, sess.ID, 5)

	// Turns 1-4 (indices 0-3) play supportive warmup.
	for _, res := range results[:4] {
		assert.Equal(t, core.PhaseWarmup, res.Turn.Phase)
	}
	// The fourth commit advances the persisted phase for the next turn.
	assert.Equal(t, core.PhaseChallenge, results[3].Phase)
	// Turn 5 (index 4) executes in challenge.
	assert.Equal(t, core.PhaseChallenge, results[4].Turn.Phase)

	// Phase is monotonic across the committed history.
	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	seenChallenge := false
	for _, turn := range got.Turns {
		if turn.Phase == core.PhaseChallenge {
			seenChallenge = true
		} else {
			assert.False(t, seenChallenge, "phase must never regress")
		}
	}
}

func TestEngine_CoachingTurnCompletesSession(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CoachingTurn = 3 })
	sess := f.startSession(t)

	playTurns(t, f, sess.ID, 2)

	f.model.AddResponse("final offer", "PARTNER: And scene!\nROOM: applause\nCOACH: You kept every offer alive. Trust your first instinct more.")
	res, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "final offer")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Turn.Index)
	assert.NotEmpty(t, res.Turn.Reply.Coach)
	assert.Equal(t, core.StatusCompleted, res.Status)

	// The active quota slot is freed by completion.
	q, err := f.limiter.Usage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, q.ActiveSessions)

	_, err = f.engine.ExecuteTurn(context.Background(), sess.ID, "one more")
	assert.ErrorIs(t, err, core.ErrSessionNotActive)
}

func TestEngine_TurnBeforeCoachingNeedsNoCoach(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CoachingTurn = 3 })
	sess := f.startSession(t)

	results := playTurns(t, f, sess.ID, 2)
	for _, res := range results {
		assert.Empty(t, res.Turn.Reply.Coach)
		assert.Equal(t, core.StatusActive, res.Status)
	}
}

func TestEngine_CoachingTurnMissingCoachIsMalformed(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CoachingTurn = 1 })
	sess := f.startSession(t)

	f.model.AddResponse("offer", "PARTNER: just a line\nROOM: silence")
	_, err := f.engine.ExecuteTurn(context.Background(), sess.ID, "offer")
	assert.ErrorIs(t, err, core.ErrMalformedReply)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TurnCount, "failed coaching turn must not commit")
}

func TestEngine_EndSessionReleasesQuotaOnce(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	ctx := context.Background()

	require.NoError(t, f.engine.EndSession(ctx, sess.ID, false))
	q, err := f.limiter.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, q.ActiveSessions)

	// Second end is a no-op, not a second release.
	sess2, err := f.engine.StartSession(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, f.engine.EndSession(ctx, sess.ID, true))
	q, err = f.limiter.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, q.ActiveSessions)
	_ = sess2
}

func TestEngine_EndSessionAbandon(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)

	require.NoError(t, f.engine.EndSession(context.Background(), sess.ID, true))
	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAbandoned, got.Status)
}

func TestEngine_SweepStaleReleasesQuota(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t)
	ctx := context.Background()

	// Everything updated before now+1h is stale.
	n, err := f.engine.SweepStale(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAbandoned, got.Status)

	q, err := f.limiter.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, q.ActiveSessions)
}

func TestEngine_UnrelatedSessionsRunConcurrently(t *testing.T) {
	f := newFixture(t)
	s1 := f.startSession(t)
	s2, err := f.engine.StartSession(context.Background(), "u2", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.engine.ExecuteTurn(context.Background(), s1.ID, "offer one")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.engine.ExecuteTurn(context.Background(), s2.ID, "offer two")
	}()
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}
