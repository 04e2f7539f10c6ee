// Package model defines data structures for the match session service.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat line within a session. Messages are append-only.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// JetStream metadata (populated on read)
	Sequence uint64 `json:"sequence,omitempty"`
}

// SendMessageRequest is the request to send a user message.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// SendMessageResponse is the response after a user message was accepted.
type SendMessageResponse struct {
	Message      Message `json:"message"`
	MessageCount int     `json:"message_count"`
	IsEnded      bool    `json:"is_ended"`
}

// TranscriptResponse is the replayed transcript of a session.
type TranscriptResponse struct {
	Messages     []Message `json:"messages"`
	HasMore      bool      `json:"has_more"`
	LastSequence uint64    `json:"last_sequence"`
}

// ErrorEvent represents an error event on a stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
