package model

import (
	"time"
)

// State is the lifecycle state of a chat session.
type State string

const (
	StateIdle    State = "idle"
	StateActive  State = "active"
	StateEnded   State = "ended"
	StateDecided State = "decided"
)

// EndReason records why a session left the active state.
type EndReason string

const (
	EndReasonTimer      EndReason = "timer"
	EndReasonMessageCap EndReason = "message_cap"
	EndReasonSurrender  EndReason = "surrender"
)

// Guess is the user's verdict about their match.
type Guess string

const (
	GuessReal Guess = "real"
	GuessAI   Guess = "ai"
)

// Valid reports whether g is a recognised guess.
func (g Guess) Valid() bool {
	return g == GuessReal || g == GuessAI
}

// Decision is the scored outcome of a session. It is set once.
type Decision struct {
	Guess       Guess     `json:"guess"`
	WasCorrect  bool      `json:"was_correct"`
	RatingDelta int       `json:"rating_delta"`
	DecidedAt   time.Time `json:"decided_at"`
}

// Snapshot is a read-only copy of a chat session's state.
type Snapshot struct {
	SessionID            string    `json:"session_id,omitempty"`
	PersonaID            string    `json:"persona_id,omitempty"`
	Persona              *Persona  `json:"persona,omitempty"`
	State                State     `json:"state"`
	Messages             []Message `json:"messages"`
	TimeRemainingSeconds int       `json:"time_remaining_seconds"`
	MessageCount         int       `json:"message_count"`
	IsEnded              bool      `json:"is_ended"`
	IsTyping             bool      `json:"is_typing"`
	EndReason            EndReason `json:"end_reason,omitempty"`
	DecisionRequired     bool      `json:"decision_required"`
	ShowDecisionPrompt   bool      `json:"show_decision_prompt"`
	Decision             *Decision `json:"decision,omitempty"`
	Rating               *int      `json:"rating,omitempty"`
	StartedAt            time.Time `json:"started_at,omitempty"`
}

// SessionRecord is the persisted row for a played session.
type SessionRecord struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	PersonaID    string     `json:"ai_persona_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	MessageCount *int       `json:"message_count,omitempty"`
	PlayerRating *int       `json:"player_rating,omitempty"`
	UserGuess    *Guess     `json:"user_guess,omitempty"`
	WasCorrect   *bool      `json:"was_correct,omitempty"`
	RatingChange *int       `json:"elo_change,omitempty"`
}

// SessionOutcome is the set of fields written to a session record when it is decided.
type SessionOutcome struct {
	EndedAt      time.Time
	Guess        Guess
	WasCorrect   bool
	RatingDelta  int
	MessageCount int
	PlayerRating int
}

// DecisionRequest is the request to record a guess.
type DecisionRequest struct {
	Guess Guess `json:"guess" validate:"required,oneof=real ai"`
}

// MatchStatus is the matchmaking progress shown to a user.
type MatchStatus struct {
	Searching bool      `json:"searching"`
	Status    string    `json:"status"`
	Session   *Snapshot `json:"session,omitempty"`
}
