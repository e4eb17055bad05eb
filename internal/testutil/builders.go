package testutil

import (
	"time"

	"github.com/antonajp/ai4joy-sub002/core"
)

// SessionBuilder provides a fluent helper for constructing sessions in tests.
// Example:
//
//	sess := NewSessionBuilder().User("u1").PlayedTurns(4).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type SessionBuilder struct {
	id       string
	userID   string
	status   core.Status
	scenario string
	turns    []core.Turn
}

// NewSessionBuilder creates a builder with default user "test-user".
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{userID: "test-user", status: core.StatusActive}
}

// ID overrides the auto-generated session ID (chainable).
func (b *SessionBuilder) ID(id string) *SessionBuilder { b.id = id; return b }

// User sets the owning user (chainable).
func (b *SessionBuilder) User(userID string) *SessionBuilder { b.userID = userID; return b }

// Status sets the session status (chainable).
func (b *SessionBuilder) Status(s core.Status) *SessionBuilder { b.status = s; return b }

// Scenario sets the scene premise (chainable).
func (b *SessionBuilder) Scenario(s string) *SessionBuilder { b.scenario = s; return b }

// Turn appends a fully specified turn (chainable).
func (b *SessionBuilder) Turn(t core.Turn) *SessionBuilder {
	b.turns = append(b.turns, t)
	return b
}

// PlayedTurns appends n synthetic committed turns with correct indices and
// phases (chainable).
func (b *SessionBuilder) PlayedTurns(n int) *SessionBuilder {
	for i := 0; i < n; i++ {
		b.turns = append(b.turns, NewTurnBuilder().Index(len(b.turns)).Build())
	}
	return b
}

// Build constructs the core.Session value.
func (b *SessionBuilder) Build() *core.Session {
	id := b.id
	if id == "" {
		id = core.NewID()
	}
	sess := core.NewSession(id, b.userID, b.scenario)
	sess.Status = b.status
	for _, t := range b.turns {
		sess.Turns = append(sess.Turns, t)
	}
	sess.TurnCount = len(sess.Turns)
	sess.Phase = core.PhaseForTurn(sess.TurnCount)
	return sess
}

// TurnBuilder constructs a single committed turn.
type TurnBuilder struct {
	index     int
	userInput string
	reply     core.Reply
	timestamp time.Time
}

// NewTurnBuilder creates a builder with a default exchange.
func NewTurnBuilder() *TurnBuilder {
	return &TurnBuilder{
		userInput: "an offer",
		reply:     core.Reply{Partner: "Yes, and a response"},
		timestamp: time.Now().UTC(),
	}
}

// Index sets the zero-based position (chainable).
func (b *TurnBuilder) Index(i int) *TurnBuilder { b.index = i; return b }

// Input sets the user text (chainable).
func (b *TurnBuilder) Input(s string) *TurnBuilder { b.userInput = s; return b }

// Partner sets the partner line (chainable).
func (b *TurnBuilder) Partner(s string) *TurnBuilder { b.reply.Partner = s; return b }

// Room sets the room atmosphere line (chainable).
func (b *TurnBuilder) Room(s string) *TurnBuilder { b.reply.Room = s; return b }

// Coach sets the coaching critique (chainable).
func (b *TurnBuilder) Coach(s string) *TurnBuilder { b.reply.Coach = s; return b }

// At sets the commit timestamp (chainable).
func (b *TurnBuilder) At(ts time.Time) *TurnBuilder { b.timestamp = ts; return b }

// Build constructs the core.Turn value with the phase derived from its index.
func (b *TurnBuilder) Build() core.Turn {
	return core.Turn{
		Index:     b.index,
		UserInput: b.userInput,
		Reply:     b.reply,
		Phase:     core.PhaseForTurn(b.index),
		Timestamp: b.timestamp,
	}
}
