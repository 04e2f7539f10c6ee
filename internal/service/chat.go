// Package service exposes the per-user operations the HTTP layer calls.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/model"
	natsclient "github.com/realorai/session-service/internal/nats"
	"github.com/realorai/session-service/internal/session"
	"github.com/realorai/session-service/pkg/logger"
)

var (
	// ErrNoSession is returned when the user has no session to act on.
	ErrNoSession = errors.New("no session")
	// ErrTranscriptUnavailable is returned when transcript replay is not configured.
	ErrTranscriptUnavailable = errors.New("transcript replay is not available")
)

// ProfileReader loads a player's profile.
type ProfileReader interface {
	CurrentProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// TranscriptReader replays an archived transcript.
type TranscriptReader interface {
	GetMessages(ctx context.Context, userID, sessionID string, afterSequence uint64, limit int) (*natsclient.Page, error)
}

// ChatService routes a user's requests to their session controller.
type ChatService struct {
	registry    *session.Registry
	profiles    ProfileReader
	transcripts TranscriptReader
	logger      *logger.Logger
}

// NewChatService creates a new chat service. transcripts may be nil.
func NewChatService(registry *session.Registry, profiles ProfileReader, transcripts TranscriptReader, log *logger.Logger) *ChatService {
	return &ChatService{
		registry:    registry,
		profiles:    profiles,
		transcripts: transcripts,
		logger:      log.Named("chat"),
	}
}

// Snapshot returns the user's session state.
func (s *ChatService) Snapshot(userID string) model.Snapshot {
	return s.registry.Get(userID).Snapshot()
}

// Send submits a user message.
func (s *ChatService) Send(userID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	ctrl := s.registry.Get(userID)

	msg, err := ctrl.SendUserMessage(req.Content)
	if err != nil {
		return nil, err
	}

	snap := ctrl.Snapshot()
	return &model.SendMessageResponse{
		Message:      *msg,
		MessageCount: snap.MessageCount,
		IsEnded:      snap.IsEnded,
	}, nil
}

// Surrender ends the active session and asks for the decision.
func (s *ChatService) Surrender(userID string) (model.Snapshot, error) {
	ctrl := s.registry.Get(userID)
	if err := ctrl.Surrender(); err != nil {
		return model.Snapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

// Leave is called when the player navigates away. An active session is
// surrendered; anything else is left as is.
func (s *ChatService) Leave(userID string) model.Snapshot {
	ctrl := s.registry.Get(userID)
	if err := ctrl.Surrender(); err == nil {
		s.logger.Info("player left active session", zap.String("user_id", userID))
	}
	return ctrl.Snapshot()
}

// RevealDecisionPrompt shows the decision prompt after a timed or capped end.
func (s *ChatService) RevealDecisionPrompt(userID string) (model.Snapshot, error) {
	ctrl := s.registry.Get(userID)
	if err := ctrl.RevealDecisionPrompt(); err != nil {
		return model.Snapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

// Decide records the player's guess.
func (s *ChatService) Decide(userID string, req *model.DecisionRequest) (*model.Decision, error) {
	return s.registry.Get(userID).RecordDecision(req.Guess)
}

// Reset returns the user's controller to idle.
func (s *ChatService) Reset(userID string) model.Snapshot {
	ctrl := s.registry.Get(userID)
	ctrl.Reset()
	return ctrl.Snapshot()
}

// Subscribe streams the user's snapshots. Call the returned function to stop.
func (s *ChatService) Subscribe(userID string) (<-chan model.Snapshot, func()) {
	return s.registry.Get(userID).Subscribe()
}

// Touch marks the user's client as present.
func (s *ChatService) Touch(userID string) {
	s.registry.Touch(userID)
}

// Profile returns the player's profile.
func (s *ChatService) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.CurrentProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// Transcript replays the archived messages of the user's current or most recent
// session.
func (s *ChatService) Transcript(ctx context.Context, userID string, afterSequence uint64, limit int) (*model.TranscriptResponse, error) {
	if s.transcripts == nil {
		return nil, ErrTranscriptUnavailable
	}

	snap := s.registry.Get(userID).Snapshot()
	if snap.SessionID == "" {
		return nil, ErrNoSession
	}

	page, err := s.transcripts.GetMessages(ctx, userID, snap.SessionID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	return &model.TranscriptResponse{
		Messages:     page.Messages,
		HasMore:      page.HasMore,
		LastSequence: page.LastSequence,
	}, nil
}
