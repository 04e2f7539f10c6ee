// Package session implements the chat session state machine:
// idle -> active -> ended -> decided, and back to idle on reset.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/rating"
	"github.com/realorai/session-service/internal/responder"
	"github.com/realorai/session-service/pkg/logger"
	"github.com/realorai/session-service/pkg/metrics"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current session state")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong is returned when input exceeds the configured rune limit.
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	// ErrResponderBusy is returned while a persona reply is pending.
	ErrResponderBusy = errors.New("persona is still typing")
	// ErrInvalidGuess is returned for a guess other than real or ai.
	ErrInvalidGuess = errors.New("guess must be real or ai")
)

// Responder produces persona messages.
type Responder interface {
	Respond(ctx context.Context, req responder.Request) responder.Reply
	Greet(ctx context.Context, persona model.Persona) responder.Reply
}

// RatingUpdater persists a decision and returns the new rating.
type RatingUpdater interface {
	ApplyDecision(ctx context.Context, o rating.Outcome) (int, error)
}

// Config holds session limits.
type Config struct {
	Duration         time.Duration
	MessageCap       int
	MaxMessageLength int
	ResponseTimeout  time.Duration
	PersistTimeout   time.Duration
	// TickInterval drives the countdown automatically. Zero leaves ticking to the caller.
	TickInterval time.Duration
	Deltas       rating.Deltas
}

// DefaultConfig is a 300 second, 20 message session.
func DefaultConfig() Config {
	return Config{
		Duration:         300 * time.Second,
		MessageCap:       20,
		MaxMessageLength: 500,
		ResponseTimeout:  20 * time.Second,
		PersistTimeout:   10 * time.Second,
		TickInterval:     time.Second,
		Deltas:           rating.DefaultDeltas,
	}
}

// Controller owns one user's chat session. It is the only writer of session state.
// Async work (greeting, replies, rating) captures the generation it started under
// and is discarded if the session was reset or restarted since.
type Controller struct {
	userID    string
	cfg       Config
	responder Responder
	rater     RatingUpdater
	sink      EventSink
	logger    *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu            sync.Mutex
	gen           uint64
	state         model.State
	sessionID     string
	persona       *model.Persona
	messages      []model.Message
	timeRemaining int
	messageCount  int
	hasGreeted    bool
	isTyping      bool
	endReason     model.EndReason
	showPrompt    bool
	decision      *model.Decision
	rating        *int
	startedAt     time.Time

	subs    map[int]chan model.Snapshot
	nextSub int
}

// Option configures a Controller.
type Option func(*Controller)

// WithSink sets where messages and lifecycle events are published.
func WithSink(s EventSink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithSleeper replaces the typing-delay wait.
func WithSleeper(f func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = f
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates an idle Controller for userID.
func New(userID string, cfg Config, resp Responder, rater RatingUpdater, log *logger.Logger, opts ...Option) *Controller {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 20 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		userID:    userID,
		cfg:       cfg,
		responder: resp,
		rater:     rater,
		sink:      NopSink{},
		logger:    log.Named("session").With(zap.String("user_id", userID)),
		sleep:     sleepCtx,
		now:       time.Now,
		baseCtx:   ctx,
		cancel:    cancel,
		state:     model.StateIdle,
		subs:      make(map[int]chan model.Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the owning user.
func (c *Controller) UserID() string {
	return c.userID
}

// StartSession moves idle -> active and schedules the persona's greeting.
// Repeating the call for the session that is already active is a no-op.
func (c *Controller) StartSession(sessionID string, persona model.Persona) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == model.StateActive && c.sessionID == sessionID {
		return nil
	}
	if c.state != model.StateIdle {
		return ErrInvalidState
	}

	c.gen++
	c.clearLocked()
	c.state = model.StateActive
	c.sessionID = sessionID
	p := persona
	c.persona = &p
	c.timeRemaining = int(c.cfg.Duration / time.Second)
	c.startedAt = c.now()

	metrics.SessionsStartedTotal.Inc()
	metrics.SessionsActive.Inc()
	c.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("persona_id", persona.ID),
		zap.Int("duration_seconds", c.timeRemaining),
	)

	if !c.hasGreeted {
		c.hasGreeted = true
		c.isTyping = true
		c.wg.Add(1)
		go c.greet(c.gen, persona)
	}

	if c.cfg.TickInterval > 0 {
		go c.runTimer(c.baseCtx, c.gen, c.cfg.TickInterval)
	}

	c.publishEventLocked(model.EventTypeStarted, "", nil)
	c.notifyLocked()
	return nil
}

// SendUserMessage appends a user message and requests the persona's reply.
func (c *Controller) SendUserMessage(text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > c.cfg.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != model.StateActive {
		return nil, ErrInvalidState
	}
	if c.isTyping {
		return nil, ErrResponderBusy
	}

	history := append([]model.Message(nil), c.messages...)
	msg := c.appendLocked(model.RoleUser, text)

	if c.messageCount >= c.cfg.MessageCap {
		c.endSessionLocked(model.EndReasonMessageCap)
	} else {
		c.isTyping = true
		c.wg.Add(1)
		go c.reply(c.gen, history, *c.persona, text)
	}

	c.notifyLocked()
	return &msg, nil
}

// Surrender ends an active session immediately and asks for the decision right away.
func (c *Controller) Surrender() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != model.StateActive {
		return ErrInvalidState
	}

	c.timeRemaining = 0
	c.endSessionLocked(model.EndReasonSurrender)
	c.notifyLocked()
	return nil
}

// RevealDecisionPrompt shows the decision prompt for an ended session.
func (c *Controller) RevealDecisionPrompt() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != model.StateEnded {
		return ErrInvalidState
	}

	c.showPrompt = true
	c.notifyLocked()
	return nil
}

// RecordDecision scores the guess and moves ended -> decided. The rating is
// persisted in the background and published in a later snapshot.
func (c *Controller) RecordDecision(guess model.Guess) (*model.Decision, error) {
	if !guess.Valid() {
		return nil, ErrInvalidGuess
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != model.StateEnded {
		return nil, ErrInvalidState
	}

	wasCorrect, delta := c.cfg.Deltas.Score(guess)
	d := &model.Decision{
		Guess:       guess,
		WasCorrect:  wasCorrect,
		RatingDelta: delta,
		DecidedAt:   c.now(),
	}

	c.decision = d
	c.state = model.StateDecided
	c.showPrompt = false

	metrics.DecisionsTotal.WithLabelValues(string(guess), boolLabel(wasCorrect)).Inc()
	c.logger.Info("decision recorded",
		zap.String("session_id", c.sessionID),
		zap.String("guess", string(guess)),
		zap.Bool("was_correct", wasCorrect),
	)

	if c.rater != nil {
		c.wg.Add(1)
		go c.applyRating(c.gen, rating.Outcome{
			UserID:       c.userID,
			SessionID:    c.sessionID,
			Guess:        guess,
			WasCorrect:   wasCorrect,
			Delta:        delta,
			MessageCount: c.messageCount,
			EndedAt:      d.DecidedAt,
		})
	}

	c.publishEventLocked(model.EventTypeDecided, "", d)
	c.notifyLocked()

	cp := *d
	return &cp, nil
}

// Reset returns to idle from any state. Pending async results become stale.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == model.StateActive {
		metrics.SessionsActive.Dec()
	}
	if c.sessionID != "" {
		c.publishEventLocked(model.EventTypeReset, "", nil)
	}

	c.gen++
	c.clearLocked()
	c.notifyLocked()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the lifecycle state.
func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel that always holds the latest snapshot, starting with
// the current one. Slow readers skip intermediate snapshots. Call the returned
// function to unsubscribe.
func (c *Controller) Subscribe() (<-chan model.Snapshot, func()) {
	ch := make(chan model.Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until pending greetings, replies and persistence have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close stops the timer and pending waits, then flushes persistence.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) greet(gen uint64, persona model.Persona) {
	defer c.wg.Done()

	reply := c.responder.Greet(c.baseCtx, persona)
	if err := c.sleep(c.baseCtx, reply.TypingDelay); err != nil {
		c.clearTyping(gen)
		return
	}
	c.appendAssistant(gen, reply.Message)
}

func (c *Controller) reply(gen uint64, history []model.Message, persona model.Persona, latest string) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.ResponseTimeout)
	reply := c.responder.Respond(ctx, responder.Request{
		History: history,
		Persona: persona,
		Latest:  latest,
	})
	cancel()

	if err := c.sleep(c.baseCtx, reply.TypingDelay); err != nil {
		c.clearTyping(gen)
		return
	}
	c.appendAssistant(gen, reply.Message)
}

func (c *Controller) applyRating(gen uint64, o rating.Outcome) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.baseCtx), c.cfg.PersistTimeout)
	defer cancel()

	newRating, err := c.rater.ApplyDecision(ctx, o)
	if err != nil {
		c.logger.Error("failed to apply decision", zap.String("session_id", o.SessionID), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.rating = &newRating
	c.notifyLocked()
}

// appendAssistant applies a persona message if its generation is still current and
// the session is still active.
func (c *Controller) appendAssistant(gen uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.logger.Debug("discarding stale persona message")
		return
	}
	c.isTyping = false

	if c.state != model.StateActive {
		c.logger.Debug("discarding persona message after session end", zap.String("session_id", c.sessionID))
		c.notifyLocked()
		return
	}

	c.appendLocked(model.RoleAssistant, text)
	if c.messageCount >= c.cfg.MessageCap {
		c.endSessionLocked(model.EndReasonMessageCap)
	}
	c.notifyLocked()
}

func (c *Controller) clearTyping(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || !c.isTyping {
		return
	}
	c.isTyping = false
	c.notifyLocked()
}

func (c *Controller) appendLocked(role model.Role, text string) model.Message {
	msg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: c.sessionID,
		Role:      role,
		Content:   text,
		CreatedAt: c.now().UTC(),
	}
	c.messages = append(c.messages, msg)
	c.messageCount++

	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()

	// The sink owns its copy; an archive sequence comes back through recordSequence.
	gen, userID, out := c.gen, c.userID, msg
	c.persist("message", func(ctx context.Context) error {
		if err := c.sink.PublishMessage(ctx, userID, &out); err != nil {
			return err
		}
		c.recordSequence(gen, out.ID, out.Sequence)
		return nil
	})
	return msg
}

// recordSequence stores the archive sequence of a published message.
func (c *Controller) recordSequence(gen uint64, id string, seq uint64) {
	if seq == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			c.messages[i].Sequence = seq
			c.notifyLocked()
			return
		}
	}
}

// endSessionLocked is the single way out of the active state. Timer, message cap and
// surrender all go through it; only the first call has any effect.
func (c *Controller) endSessionLocked(reason model.EndReason) bool {
	if c.state != model.StateActive {
		return false
	}

	c.state = model.StateEnded
	c.endReason = reason
	c.isTyping = false
	if reason == model.EndReasonSurrender {
		c.showPrompt = true
	}

	metrics.SessionsActive.Dec()
	metrics.SessionsEndedTotal.WithLabelValues(string(reason)).Inc()
	c.logger.Info("session ended",
		zap.String("session_id", c.sessionID),
		zap.String("reason", string(reason)),
		zap.Int("message_count", c.messageCount),
		zap.Int("time_remaining", c.timeRemaining),
	)

	c.publishEventLocked(model.EventTypeEnded, string(reason), nil)
	return true
}

func (c *Controller) clearLocked() {
	c.state = model.StateIdle
	c.sessionID = ""
	c.persona = nil
	c.messages = nil
	c.timeRemaining = 0
	c.messageCount = 0
	c.hasGreeted = false
	c.isTyping = false
	c.endReason = ""
	c.showPrompt = false
	c.decision = nil
	c.rating = nil
	c.startedAt = time.Time{}
}

func (c *Controller) snapshotLocked() model.Snapshot {
	s := model.Snapshot{
		SessionID:            c.sessionID,
		State:                c.state,
		Messages:             append([]model.Message{}, c.messages...),
		TimeRemainingSeconds: c.timeRemaining,
		MessageCount:         c.messageCount,
		IsEnded:              c.state == model.StateEnded || c.state == model.StateDecided,
		IsTyping:             c.isTyping,
		EndReason:            c.endReason,
		DecisionRequired:     c.state == model.StateEnded,
		ShowDecisionPrompt:   c.showPrompt,
		StartedAt:            c.startedAt,
	}
	if c.persona != nil {
		p := *c.persona
		s.Persona = &p
		s.PersonaID = p.ID
	}
	if c.decision != nil {
		d := *c.decision
		s.Decision = &d
	}
	if c.rating != nil {
		r := *c.rating
		s.Rating = &r
	}
	return s
}

func (c *Controller) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (c *Controller) publishEventLocked(t model.EventType, reason string, d *model.Decision) {
	event := &model.SessionEvent{
		ID:           uuid.Must(uuid.NewV7()).String(),
		SessionID:    c.sessionID,
		UserID:       c.userID,
		Type:         t,
		Reason:       reason,
		Decision:     d,
		MessageCount: c.messageCount,
		CreatedAt:    c.now().UTC(),
	}
	if c.persona != nil {
		event.Metadata = map[string]any{"persona_id": c.persona.ID}
	}
	c.persist("event", func(ctx context.Context) error {
		return c.sink.PublishEvent(ctx, event)
	})
}

// persist runs a best-effort write in the background. It outlives Close's cancel so
// the final events of a session are still flushed.
func (c *Controller) persist(target string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.baseCtx), c.cfg.PersistTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.PersistenceErrorsTotal.WithLabelValues(target).Inc()
			c.logger.Warn("failed to publish session data", zap.String("target", target), zap.Error(err))
		}
	}()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
