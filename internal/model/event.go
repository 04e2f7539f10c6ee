package model

import (
	"time"
)

// EventType represents the type of session lifecycle event.
type EventType string

const (
	EventTypeStarted EventType = "started"
	EventTypeEnded   EventType = "ended"
	EventTypeDecided EventType = "decided"
	EventTypeReset   EventType = "reset"
)

// SessionEvent represents a lifecycle event in a session.
type SessionEvent struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	Type         EventType      `json:"type"`
	Reason       string         `json:"reason,omitempty"`
	Decision     *Decision      `json:"decision,omitempty"`
	MessageCount int            `json:"message_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Sequence     uint64         `json:"sequence,omitempty"`
}
