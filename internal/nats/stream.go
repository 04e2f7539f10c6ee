package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/realorai/session-service/internal/model"
)

const (
	// StreamName is the name of the session archive stream.
	StreamName = "MATCH_SESSIONS"

	// SubjectPrefix is the prefix for all session subjects.
	SubjectPrefix = "session"

	// DefaultPageSize is used when a transcript read does not set a limit.
	DefaultPageSize = 50
	// MaxPageSize caps a single transcript read.
	MaxPageSize = 200
)

// publisher is the part of jetstream.JetStream the archive writes through.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Archive writes session messages and events to JetStream and replays transcripts.
// It satisfies session.EventSink.
type Archive struct {
	js  jetstream.JetStream
	pub publisher
}

// NewArchive creates an Archive on the client's JetStream context.
func NewArchive(client *Client) *Archive {
	js := client.JetStream()
	return &Archive{js: js, pub: js}
}

// EnsureStream creates the session stream if it does not exist.
func (a *Archive) EnsureStream(ctx context.Context) error {
	if _, err := a.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := a.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		DenyDelete:  true,
		Description: "Match session transcripts and lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for a transcript message.
func MessageSubject(userID, sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, userID, sessionID, role)
}

// EventSubject returns the subject for a lifecycle event.
func EventSubject(userID, sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, userID, sessionID, eventType)
}

// TranscriptFilter matches every message of one session.
func TranscriptFilter(userID, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, userID, sessionID)
}

// PublishMessage archives a transcript message. The message id doubles as the
// JetStream dedup id.
func (a *Archive) PublishMessage(ctx context.Context, userID string, msg *model.Message) error {
	if msg.SessionID == "" {
		return errors.New("message has no session id")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := a.pub.Publish(ctx, MessageSubject(userID, msg.SessionID, msg.Role), data, jetstream.WithMsgID(msg.ID))
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	msg.Sequence = ack.Sequence
	return nil
}

// PublishEvent archives a lifecycle event.
func (a *Archive) PublishEvent(ctx context.Context, event *model.SessionEvent) error {
	if event.SessionID == "" {
		return errors.New("event has no session id")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := a.pub.Publish(ctx, EventSubject(event.UserID, event.SessionID, event.Type), data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	event.Sequence = ack.Sequence
	return nil
}

// Page is one slice of a transcript.
type Page struct {
	Messages     []model.Message
	LastSequence uint64
	HasMore      bool
}

// GetMessages replays a session transcript starting after a stream sequence.
func (a *Archive) GetMessages(ctx context.Context, userID, sessionID string, afterSequence uint64, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     TranscriptFilter(userID, sessionID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := a.js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	page := &Page{Messages: make([]model.Message, 0, limit)}
	for msg := range batch.Messages() {
		var m model.Message
		if err := json.Unmarshal(msg.Data(), &m); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			m.Sequence = meta.Sequence.Stream
			page.LastSequence = meta.Sequence.Stream
		}
		page.Messages = append(page.Messages, m)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, fmt.Errorf("batch error: %w", err)
	}

	page.HasMore = len(page.Messages) == limit
	return page, nil
}
