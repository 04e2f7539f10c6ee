package session

import (
	"context"

	"github.com/realorai/session-service/internal/model"
)

// EventSink receives the transcript and lifecycle events for background persistence.
type EventSink interface {
	PublishMessage(ctx context.Context, userID string, msg *model.Message) error
	PublishEvent(ctx context.Context, event *model.SessionEvent) error
}

// NopSink discards everything.
type NopSink struct{}

// PublishMessage implements EventSink.
func (NopSink) PublishMessage(context.Context, string, *model.Message) error { return nil }

// PublishEvent implements EventSink.
func (NopSink) PublishEvent(context.Context, *model.SessionEvent) error { return nil }
