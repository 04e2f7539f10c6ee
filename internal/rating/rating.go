// Package rating scores decisions and persists the player's rating.
package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/cache"
	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/store"
	"github.com/realorai/session-service/pkg/logger"
	"github.com/realorai/session-service/pkg/metrics"
)

// Truth is the identity of every match. Matches are always personas.
const Truth = model.GuessAI

// Deltas are the rating changes for a correct and an incorrect guess.
type Deltas struct {
	Win  int
	Loss int
}

// DefaultDeltas are +25 for a correct guess and -20 otherwise.
var DefaultDeltas = Deltas{Win: 25, Loss: -20}

// Score compares a guess with the truth.
func (d Deltas) Score(guess model.Guess) (wasCorrect bool, delta int) {
	if guess == Truth {
		return true, d.Win
	}
	return false, d.Loss
}

// Apply returns current+delta floored at zero.
func Apply(current, delta int) int {
	return max(0, current+delta)
}

// Outcome is a decided session to be persisted.
type Outcome struct {
	UserID       string
	SessionID    string
	Guess        model.Guess
	WasCorrect   bool
	Delta        int
	MessageCount int
	EndedAt      time.Time
}

// Updater persists decisions. It is the only writer of a profile's rating, and
// applies one decision per user at a time.
type Updater struct {
	profiles store.ProfileStore
	sessions store.SessionStore
	cache    cache.ProfileCache
	logger   *logger.Logger

	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewUpdater creates an Updater.
func NewUpdater(profiles store.ProfileStore, sessions store.SessionStore, c cache.ProfileCache, log *logger.Logger) *Updater {
	return &Updater{
		profiles: profiles,
		sessions: sessions,
		cache:    c,
		logger:   log.Named("rating"),
		users:    make(map[string]*userLock),
	}
}

// lockUser serializes rating updates for userID. The returned func releases it.
func (u *Updater) lockUser(userID string) func() {
	u.mu.Lock()
	l, ok := u.users[userID]
	if !ok {
		l = &userLock{}
		u.users[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.users, userID)
		}
		u.mu.Unlock()
	}
}

// CurrentProfile reads the profile from the cache, falling back to the store and
// repopulating the cache.
func (u *Updater) CurrentProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := u.cache.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		u.logger.Warn("profile cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	p, err = u.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if err := u.cache.SetProfile(ctx, p); err != nil {
		u.logger.Warn("profile cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return p, nil
}

// ApplyDecision computes and stores the new rating. Persistence failures are logged
// and do not fail the call; only an unknown current rating does.
func (u *Updater) ApplyDecision(ctx context.Context, o Outcome) (int, error) {
	unlock := u.lockUser(o.UserID)
	defer unlock()

	profile, err := u.CurrentProfile(ctx, o.UserID)
	if err != nil {
		return 0, err
	}

	newRating := Apply(profile.Rating, o.Delta)
	log := u.logger.WithSession(o.UserID, o.SessionID)

	err = u.sessions.UpdateSessionOutcome(ctx, o.SessionID, model.SessionOutcome{
		EndedAt:      o.EndedAt,
		Guess:        o.Guess,
		WasCorrect:   o.WasCorrect,
		RatingDelta:  o.Delta,
		MessageCount: o.MessageCount,
		PlayerRating: newRating,
	})
	if err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("session_outcome").Inc()
		log.Error("failed to persist session outcome", zap.Error(err))
	}

	if err := u.profiles.UpdateRating(ctx, o.UserID, newRating); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("rating").Inc()
		log.Error("failed to persist rating", zap.Int("rating", newRating), zap.Error(err))
	}

	profile.Rating = newRating
	if err := u.cache.SetProfile(ctx, profile); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("profile_cache").Inc()
		log.Warn("failed to refresh cached profile", zap.Error(err))
	}

	log.Info("decision applied",
		zap.String("guess", string(o.Guess)),
		zap.Bool("was_correct", o.WasCorrect),
		zap.Int("delta", o.Delta),
		zap.Int("rating", newRating),
	)

	return newRating, nil
}
