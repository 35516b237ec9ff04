package events

import "time"

// Type indicates the category of an engine event.
type Type string

const (
	// Phase / turn events
	EventPhaseChanged      Type = "PHASE_CHANGED"
	EventActiveTeamChanged Type = "ACTIVE_TEAM_CHANGED"

	// Scoring events
	EventScoreUpdated   Type = "SCORE_UPDATED"
	EventLivesUpdated   Type = "LIVES_UPDATED"
	EventTeamEliminated Type = "TEAM_ELIMINATED"

	// Timer events
	EventTimerTick      Type = "TIMER_TICK"
	EventTimerCompleted Type = "TIMER_COMPLETED"

	// Power-up events
	EventPowerUpApplied Type = "POWERUP_APPLIED"
	EventPowerUpExpired Type = "POWERUP_EXPIRED"
	EventPowerUpRemoved Type = "POWERUP_REMOVED"

	// Question / answer events
	EventQuestionPresented Type = "QUESTION_PRESENTED"
	EventAnswerSubmitted   Type = "ANSWER_SUBMITTED"

	// Session events
	EventGameOver    Type = "GAME_OVER"
	EventEngineError Type = "ENGINE_ERROR"
)

// AllTypes returns the full event catalogue, for relays that mirror every
// engine event to an external consumer.
func AllTypes() []Type {
	return []Type{
		EventPhaseChanged,
		EventActiveTeamChanged,
		EventScoreUpdated,
		EventLivesUpdated,
		EventTeamEliminated,
		EventTimerTick,
		EventTimerCompleted,
		EventPowerUpApplied,
		EventPowerUpExpired,
		EventPowerUpRemoved,
		EventQuestionPresented,
		EventAnswerSubmitted,
		EventGameOver,
		EventEngineError,
	}
}

// Well-known payload keys shared across the event catalogue. Handlers and
// rule conditions address payload fields by these names.
const (
	KeyTeamID          = "teamId"
	KeyPrevious        = "previous"
	KeyCurrent         = "current"
	KeyPreviousScore   = "previousScore"
	KeyCurrentScore    = "currentScore"
	KeyDelta           = "delta"
	KeyLives           = "lives"
	KeyTimerID         = "timerId"
	KeyRemaining       = "remaining"
	KeyDuration        = "duration"
	KeyEffectType      = "effectType"
	KeyTargetID        = "targetId"
	KeyQuestionID      = "questionId"
	KeyOptionID        = "optionId"
	KeyIsCorrect       = "isCorrect"
	KeyTimeRemainingMs = "timeRemainingMs"
	KeyMultiplier      = "multiplier"
	KeyWinnerTeamID    = "winnerTeamId"
	KeyReason          = "reason"
	KeyError           = "error"
)

// Payload carries the named fields of an event.
type Payload map[string]any

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type      Type
	Payload   Payload
	Timestamp time.Time
}

// String returns a payload field as a string, or "" when absent or not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns a payload field as a bool, or false when absent or not a bool.
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Float returns a numeric payload field as a float64. Integer values are
// widened so that handlers never care which numeric type a publisher used.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
