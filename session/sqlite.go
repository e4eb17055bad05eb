package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/antonajp/ai4joy-sub002/core"
)

// maxCommitAttempts bounds retries of transient SQLite contention before the
// error is promoted to core.ErrPersistence. Write conflicts and not-found
// conditions are never retried.
const maxCommitAttempts = 3

// SQLiteStore implements core.SessionStore and core.QuotaStore on a single
// SQLite database, so turn commits and quota updates share one transactional
// mechanism.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed store at the given path.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		phase TEXT NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0,
		scenario TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_stale ON sessions(updated_at) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		user_input TEXT NOT NULL,
		partner_text TEXT NOT NULL,
		room_text TEXT NOT NULL DEFAULT '',
		coach_text TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, turn_index)
	);

	CREATE TABLE IF NOT EXISTS user_quotas (
		user_id TEXT PRIMARY KEY,
		sessions_today INTEGER NOT NULL DEFAULT 0,
		active_sessions INTEGER NOT NULL DEFAULT 0,
		last_reset INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create implements core.SessionStore.
func (s *SQLiteStore) Create(ctx context.Context, sess *core.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, status, phase, turn_count, scenario, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, string(sess.Status), string(sess.Phase), sess.TurnCount,
		sess.Scenario, sess.Created.Unix(), sess.Updated.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: session %q already exists", core.ErrConflict, sess.ID)
		}
		return fmt.Errorf("%w: insert session: %v", core.ErrPersistence, err)
	}
	return nil
}

// Get implements core.SessionStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, phase, turn_count, scenario, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan session: %v", core.ErrPersistence, err)
	}

	turns, err := s.loadTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	return sess, nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, sessionID string) ([]core.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_index, user_input, partner_text, room_text, coach_text, phase, latency_ms, created_at
		FROM turns WHERE session_id = ? ORDER BY turn_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: query turns: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	turns := []core.Turn{}
	for rows.Next() {
		var t core.Turn
		var phase string
		var latencyMS, createdAt int64
		if err := rows.Scan(&t.Index, &t.UserInput, &t.Reply.Partner, &t.Reply.Room,
			&t.Reply.Coach, &phase, &latencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", core.ErrPersistence, err)
		}
		t.Phase = core.Phase(phase)
		t.Latency = time.Duration(latencyMS) * time.Millisecond
		t.Timestamp = time.Unix(createdAt, 0).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate turns: %v", core.ErrPersistence, err)
	}
	return turns, nil
}

// CommitTurn implements core.SessionStore. The append, counter increment and
// optional overwrites run in one transaction; the UPDATE is conditioned on
// the base turn count so a commit racing an out-of-band writer loses with
// core.ErrConflict instead of clobbering state. Transient contention is
// retried with exponential backoff before surfacing core.ErrPersistence.
func (s *SQLiteStore) CommitTurn(ctx context.Context, id string, commit core.TurnCommit) (*core.Session, error) {
	op := func() error {
		return s.commitTurnOnce(ctx, id, commit)
	}
	if err := s.retry(ctx, op); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) commitTurnOnce(ctx context.Context, id string, commit core.TurnCommit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var turnCount int
	err = tx.QueryRowContext(ctx, `SELECT status, turn_count FROM sessions WHERE id = ?`, id).
		Scan(&status, &turnCount)
	if errors.Is(err, sql.ErrNoRows) {
		return backoff.Permanent(fmt.Errorf("%w: %q", core.ErrNotFound, id))
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if core.Status(status) != core.StatusActive {
		return backoff.Permanent(fmt.Errorf("%w: session %q is %s", core.ErrSessionNotActive, id, status))
	}
	if turnCount != commit.Turn.Index {
		return backoff.Permanent(fmt.Errorf("%w: turn %d committed against turn count %d",
			core.ErrConflict, commit.Turn.Index, turnCount))
	}

	newPhase := string(commit.Phase)
	newStatus := string(commit.Status)
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET
			turn_count = turn_count + 1,
			phase = COALESCE(NULLIF(?, ''), phase),
			status = COALESCE(NULLIF(?, ''), status),
			updated_at = ?
		WHERE id = ? AND turn_count = ? AND status = 'active'`,
		newPhase, newStatus, time.Now().UTC().Unix(), id, commit.Turn.Index,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return backoff.Permanent(fmt.Errorf("%w: conditional update rejected for session %q", core.ErrConflict, id))
	}

	t := commit.Turn
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, turn_index, user_input, partner_text, room_text, coach_text, phase, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.Index, t.UserInput, t.Reply.Partner, t.Reply.Room, t.Reply.Coach,
		string(t.Phase), t.Latency.Milliseconds(), t.Timestamp.Unix(),
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SetStatus implements core.SessionStore.
func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status core.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status = 'active'`,
		string(status), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("%w: update status: %v", core.ErrPersistence, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", core.ErrPersistence, err)
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %q", core.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("%w: read status: %v", core.ErrPersistence, err)
		}
		return fmt.Errorf("%w: session %q is %s", core.ErrSessionNotActive, id, current)
	}
	return nil
}

// SweepStale implements core.SessionStore.
func (s *SQLiteStore) SweepStale(ctx context.Context, cutoff time.Time) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sessions WHERE status = 'active' AND updated_at < ?`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: query stale sessions: %v", core.ErrPersistence, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan stale session: %v", core.ErrPersistence, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate stale sessions: %v", core.ErrPersistence, err)
	}

	var swept []*core.Session
	for _, id := range ids {
		// The conditional update keeps the sweep race-safe: a session that
		// took a turn since the scan stays active.
		res, err := s.db.ExecContext(ctx, `
			UPDATE sessions SET status = ?, updated_at = ?
			WHERE id = ? AND status = 'active' AND updated_at < ?`,
			string(core.StatusAbandoned), time.Now().UTC().Unix(), id, cutoff.Unix(),
		)
		if err != nil {
			return swept, fmt.Errorf("%w: abandon stale session: %v", core.ErrPersistence, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return swept, fmt.Errorf("%w: rows affected: %v", core.ErrPersistence, err)
		}
		if affected == 0 {
			continue
		}
		sess, err := s.Get(ctx, id)
		if err != nil {
			return swept, err
		}
		swept = append(swept, sess)
	}
	return swept, nil
}

// Reserve implements core.QuotaStore. Day-boundary reset, cap checks and
// counter increments run in one transaction keyed on the user row.
func (s *SQLiteStore) Reserve(ctx context.Context, userID string, now time.Time, dailyLimit, concurrentLimit int) error {
	op := func() error {
		return s.reserveOnce(ctx, userID, now, dailyLimit, concurrentLimit)
	}
	return s.retry(ctx, op)
}

func (s *SQLiteStore) reserveOnce(ctx context.Context, userID string, now time.Time, dailyLimit, concurrentLimit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_quotas (user_id, sessions_today, active_sessions, last_reset)
		VALUES (?, 0, 0, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, now.Unix(),
	); err != nil {
		return fmt.Errorf("ensure quota row: %w", err)
	}

	var sessionsToday, activeSessions int
	var lastReset int64
	if err := tx.QueryRowContext(ctx, `
		SELECT sessions_today, active_sessions, last_reset FROM user_quotas WHERE user_id = ?`,
		userID).Scan(&sessionsToday, &activeSessions, &lastReset); err != nil {
		return fmt.Errorf("read quota: %w", err)
	}

	if !sameUTCDay(time.Unix(lastReset, 0), now) {
		sessionsToday = 0
	}
	if sessionsToday >= dailyLimit {
		return backoff.Permanent(core.ErrDailyLimitExceeded)
	}
	if activeSessions >= concurrentLimit {
		return backoff.Permanent(core.ErrConcurrentLimitExceeded)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_quotas SET sessions_today = ?, active_sessions = ?, last_reset = ?
		WHERE user_id = ?`,
		sessionsToday+1, activeSessions+1, now.Unix(), userID,
	); err != nil {
		return fmt.Errorf("update quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Release implements core.QuotaStore.
func (s *SQLiteStore) Release(ctx context.Context, userID string) error {
	op := func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE user_quotas SET active_sessions = active_sessions - 1
			WHERE user_id = ? AND active_sessions > 0`, userID)
		if err != nil {
			return fmt.Errorf("release quota: %w", err)
		}
		return nil
	}
	return s.retry(ctx, op)
}

// Usage implements core.QuotaStore.
func (s *SQLiteStore) Usage(ctx context.Context, userID string) (*core.UserQuota, error) {
	q := &core.UserQuota{UserID: userID}
	var lastReset int64
	err := s.db.QueryRowContext(ctx, `
		SELECT sessions_today, active_sessions, last_reset FROM user_quotas WHERE user_id = ?`,
		userID).Scan(&q.SessionsToday, &q.ActiveSessions, &lastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read quota: %v", core.ErrPersistence, err)
	}
	q.LastReset = time.Unix(lastReset, 0).UTC()
	return q, nil
}

// retry runs op with bounded exponential backoff. Errors marked permanent
// (our taxonomy sentinels) pass through unchanged; anything still failing
// after the attempt budget is promoted to core.ErrPersistence.
func (s *SQLiteStore) retry(ctx context.Context, op backoff.Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxCommitAttempts), ctx))
	if err == nil {
		return nil
	}
	if isTaxonomyError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrPersistence, err)
}

func isTaxonomyError(err error) bool {
	return errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrSessionNotActive) ||
		errors.Is(err, core.ErrConflict) ||
		errors.Is(err, core.ErrRateLimited)
}

func scanSession(row *sql.Row) (*core.Session, error) {
	var sess core.Session
	var status, phase string
	var createdAt, updatedAt int64
	if err := row.Scan(&sess.ID, &sess.UserID, &status, &phase, &sess.TurnCount,
		&sess.Scenario, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sess.Status = core.Status(status)
	sess.Phase = core.Phase(phase)
	sess.Created = time.Unix(createdAt, 0).UTC()
	sess.Updated = time.Unix(updatedAt, 0).UTC()
	return &sess, nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Interface compliance (compile-time assertions)
var (
	_ core.SessionStore = (*SQLiteStore)(nil)
	_ core.QuotaStore   = (*SQLiteStore)(nil)
)
