package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/session"
	"github.com/realorai/session-service/internal/store"
	"github.com/realorai/session-service/pkg/logger"
	"github.com/realorai/session-service/pkg/metrics"
)

// Matchmaking status lines shown to the player.
const (
	StatusQueue   = "Entering the queue..."
	StatusSearch  = "Searching for opponent..."
	StatusFound   = "Match found! Connecting..."
	StatusError   = "Error finding match. Try again."
	StatusNoMatch = ""
)

var (
	// ErrAlreadySearching is returned when a search is already running for the user.
	ErrAlreadySearching = errors.New("already searching for a match")
	// ErrNoPersonas is returned when the persona sample is empty.
	ErrNoPersonas = errors.New("no personas available")
)

// MatchConfig holds matchmaking timings.
type MatchConfig struct {
	QueuePause       time.Duration
	SearchPause      time.Duration
	Timeout          time.Duration
	SampleSize       int
	ErrorStatusClear time.Duration
}

type matchRun struct {
	id        uint64
	searching bool
	status    string
	clear     *time.Timer
}

// MatchService pairs a player with a persona and starts the session.
type MatchService struct {
	personas store.PersonaStore
	sessions store.SessionStore
	registry *session.Registry
	cfg      MatchConfig
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	pick     func(n int) int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	nextID uint64
	runs   map[string]*matchRun
}

// MatchOption configures a MatchService.
type MatchOption func(*MatchService)

// WithMatchSleeper replaces the pause between status lines.
func WithMatchSleeper(f func(ctx context.Context, d time.Duration) error) MatchOption {
	return func(s *MatchService) {
		s.sleep = f
	}
}

// WithPicker replaces the random persona pick.
func WithPicker(f func(n int) int) MatchOption {
	return func(s *MatchService) {
		s.pick = f
	}
}

// NewMatchService creates a new match service.
func NewMatchService(
	personas store.PersonaStore,
	sessions store.SessionStore,
	registry *session.Registry,
	cfg MatchConfig,
	log *logger.Logger,
	opts ...MatchOption,
) *MatchService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 25
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &MatchService{
		personas: personas,
		sessions: sessions,
		registry: registry,
		cfg:      cfg,
		logger:   log.Named("match"),
		sleep:    sleep,
		pick:     rand.IntN,
		baseCtx:  ctx,
		cancel:   cancel,
		runs:     make(map[string]*matchRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindMatch starts a background search for userID and returns the initial status.
// A finished session is reset first; an active one must be left before searching.
func (s *MatchService) FindMatch(ctx context.Context, userID string) (*model.MatchStatus, error) {
	ctrl := s.registry.Get(userID)
	switch ctrl.State() {
	case model.StateActive:
		return nil, session.ErrInvalidState
	case model.StateEnded, model.StateDecided:
		ctrl.Reset()
	}

	s.mu.Lock()
	run := s.runs[userID]
	if run != nil && run.searching {
		s.mu.Unlock()
		return nil, ErrAlreadySearching
	}
	if run == nil {
		run = &matchRun{}
		s.runs[userID] = run
	}
	if run.clear != nil {
		run.clear.Stop()
		run.clear = nil
	}
	s.nextID++
	run.id = s.nextID
	run.searching = true
	run.status = StatusQueue
	runID := run.id
	s.mu.Unlock()

	s.logger.Info("match search started", zap.String("user_id", userID))

	s.wg.Add(1)
	go s.search(userID, runID)

	return &model.MatchStatus{Searching: true, Status: StatusQueue}, nil
}

// CancelSearch abandons the user's running search. The search goroutine stops at
// its next step without touching any state.
func (s *MatchService) CancelSearch(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[userID]
	if !ok {
		return
	}
	if run.searching {
		metrics.MatchesTotal.WithLabelValues("cancelled").Inc()
	}
	s.nextID++
	run.id = s.nextID
	run.searching = false
	run.status = StatusNoMatch
	if run.clear != nil {
		run.clear.Stop()
		run.clear = nil
	}
}

// Status returns the matchmaking progress and, once matched, the session.
func (s *MatchService) Status(userID string) *model.MatchStatus {
	s.mu.Lock()
	st := &model.MatchStatus{}
	if run, ok := s.runs[userID]; ok {
		st.Searching = run.searching
		st.Status = run.status
	}
	s.mu.Unlock()

	if ctrl, ok := s.registry.Lookup(userID); ok {
		if snap := ctrl.Snapshot(); snap.State != model.StateIdle {
			st.Session = &snap
		}
	}
	return st
}

// Wait blocks until running searches have finished.
func (s *MatchService) Wait() {
	s.wg.Wait()
}

// Close cancels running searches and waits for them.
func (s *MatchService) Close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		if run.clear != nil {
			run.clear.Stop()
		}
	}
}

func (s *MatchService) search(userID string, runID uint64) {
	defer s.wg.Done()

	log := s.logger.With(zap.String("user_id", userID))

	if s.sleep(s.baseCtx, s.cfg.QueuePause) != nil || !s.setStatus(userID, runID, StatusSearch) {
		return
	}
	if s.sleep(s.baseCtx, s.cfg.SearchPause) != nil || !s.current(userID, runID) {
		return
	}

	persona, err := s.choosePersona()
	if err != nil {
		log.Error("failed to load personas", zap.Error(err))
		s.fail(userID, runID)
		return
	}
	if !s.current(userID, runID) {
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Timeout)
	rec, err := s.sessions.CreateSession(ctx, userID, persona.ID)
	cancel()
	if err != nil {
		log.Error("failed to create session", zap.String("persona_id", persona.ID), zap.Error(err))
		s.fail(userID, runID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.runs[userID]
	if run == nil || run.id != runID {
		return
	}

	ctrl := s.registry.Get(userID)
	if err := ctrl.StartSession(rec.ID, *persona); err != nil {
		log.Error("failed to start session", zap.String("session_id", rec.ID), zap.Error(err))
		s.failLocked(userID, run)
		return
	}

	run.searching = false
	run.status = StatusFound
	metrics.MatchesTotal.WithLabelValues("found").Inc()
	log.Info("match found",
		zap.String("session_id", rec.ID),
		zap.String("persona_id", persona.ID),
	)
}

func (s *MatchService) choosePersona() (*model.Persona, error) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Timeout)
	defer cancel()

	personas, err := s.personas.SamplePersonas(ctx, s.cfg.SampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to sample personas: %w", err)
	}
	if len(personas) == 0 {
		return nil, ErrNoPersonas
	}

	p := personas[s.pick(len(personas))]
	return &p, nil
}

func (s *MatchService) current(userID string, runID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[userID]
	return ok && run.id == runID
}

func (s *MatchService) setStatus(userID string, runID uint64, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[userID]
	if !ok || run.id != runID {
		return false
	}
	run.status = status
	return true
}

func (s *MatchService) fail(userID string, runID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[userID]
	if !ok || run.id != runID {
		return
	}
	s.failLocked(userID, run)
}

// failLocked shows the error line and clears it after ErrorStatusClear unless a
// newer run replaced it.
func (s *MatchService) failLocked(userID string, run *matchRun) {
	run.searching = false
	run.status = StatusError
	metrics.MatchesTotal.WithLabelValues("error").Inc()

	if s.cfg.ErrorStatusClear <= 0 {
		return
	}
	runID := run.id
	run.clear = time.AfterFunc(s.cfg.ErrorStatusClear, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if r, ok := s.runs[userID]; ok && r.id == runID && r.status == StatusError {
			r.status = StatusNoMatch
			r.clear = nil
		}
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
