package core

// Phase is the behavioral mode of the scene partner, derived deterministically
// from the session's committed turn count. It never regresses: the derivation
// is monotonic in the turn count and turn counts only grow.
type Phase string

const (
	// PhaseWarmup is the supportive opening mode: the partner accepts and
	// builds on every offer.
	PhaseWarmup Phase = "warmup"

	// PhaseChallenge is the later, fallible mode: the partner introduces
	// complications and imperfect offers the user has to work around.
	PhaseChallenge Phase = "challenge"
)

// WarmupTurns is the number of completed turns played in PhaseWarmup before
// the partner switches to PhaseChallenge. The boundary is defined on the
// zero-indexed pre-turn count: turn counts 0..3 play warmup, 4 and up play
// challenge. In user-facing terms the switch happens after 4 completed turns.
const WarmupTurns = 4

// DefaultCoachingTurn is the 1-indexed turn number whose reply must carry a
// coaching critique.
const DefaultCoachingTurn = 15

// PhaseForTurn returns the phase the partner plays for the turn executing at
// the given zero-indexed pre-turn count.
func PhaseForTurn(turnCount int) Phase {
	if turnCount < WarmupTurns {
		return PhaseWarmup
	}
	return PhaseChallenge
}

// CoachingDue reports whether the turn completing as 1-indexed number
// postTurn must include a coaching section. A coachingTurn of zero disables
// coaching entirely.
func CoachingDue(postTurn, coachingTurn int) bool {
	return coachingTurn > 0 && postTurn == coachingTurn
}
