package core

import "time"

// Status is the lifecycle state of a session. Sessions end through a status
// change, never through a phase change.
type Status string

const (
	// StatusActive accepts turns.
	StatusActive Status = "active"
	// StatusCompleted marks a session closed normally (explicit end or the
	// coaching turn having been played).
	StatusCompleted Status = "completed"
	// StatusAbandoned marks a session closed without completion (explicit
	// abandon or the stale-session sweep).
	StatusAbandoned Status = "abandoned"
)

// Reply is the structured form of one partner generation: the required
// partner line plus optional labeled extras. Partner is never empty on a
// committed turn; Room and Coach default to empty strings when their labels
// were absent.
type Reply struct {
	Partner string `json:"partner"`
	Room    string `json:"room,omitempty"`
	Coach   string `json:"coach,omitempty"`
}

// Turn is one committed exchange. Immutable once committed: turns are
// appended, never edited or removed. Index equals the session's turn count
// at the moment the turn began executing, so committed indices form a
// gap-free sequence starting at zero.
type Turn struct {
	Index     int           `json:"index"`
	UserInput string        `json:"user_input"`
	Reply     Reply         `json:"reply"`
	Phase     Phase         `json:"phase"`
	Latency   time.Duration `json:"latency"`
	Timestamp time.Time     `json:"timestamp"`
}

// Session is one user's practice scene: identity, lifecycle state, the
// derived phase persisted as of the last commit, the scenario premise given
// at creation, and the ordered turn history.
//
// Instances handed out by stores are snapshots; mutating one has no effect
// on persisted state. All writes go through SessionStore.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Status    Status    `json:"status"`
	Phase     Phase     `json:"phase"`
	TurnCount int       `json:"turn_count"`
	Scenario  string    `json:"scenario,omitempty"`
	Turns     []Turn    `json:"turns"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// NewSession creates an active warmup-phase session with zero turns.
func NewSession(id, userID, scenario string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:       id,
		UserID:   userID,
		Status:   StatusActive,
		Phase:    PhaseWarmup,
		Scenario: scenario,
		Turns:    []Turn{},
		Created:  now,
		Updated:  now,
	}
}

// Clone returns a deep copy safe for independent use.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Turns = make([]Turn, len(s.Turns))
	copy(clone.Turns, s.Turns)
	return &clone
}

// History returns the committed turns in order. The slice is a copy.
func (s *Session) History() []Turn {
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return turns
}

// TurnCommit bundles everything one turn applies to a session in a single
// indivisible store operation: the new turn, the post-turn phase, and an
// optional status transition. Zero values for Phase/Status mean "unchanged".
//
// Turn.Index doubles as the conditional-write guard: stores must reject the
// commit with ErrConflict when the persisted turn count no longer equals it.
type TurnCommit struct {
	Turn   Turn
	Phase  Phase
	Status Status
}

// TurnResult is the caller-facing outcome of one executed turn.
type TurnResult struct {
	SessionID string `json:"session_id"`
	Turn      Turn   `json:"turn"`
	Phase     Phase  `json:"phase"`
	Status    Status `json:"status"`
}
