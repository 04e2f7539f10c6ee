package rating

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realorai/session-service/internal/cache"
	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/store"
	"github.com/realorai/session-service/pkg/logger"
)

func TestScore(t *testing.T) {
	correct, delta := DefaultDeltas.Score(model.GuessAI)
	assert.True(t, correct)
	assert.Equal(t, 25, delta)

	correct, delta = DefaultDeltas.Score(model.GuessReal)
	assert.False(t, correct)
	assert.Equal(t, -20, delta)
}

func TestApply(t *testing.T) {
	tests := []struct {
		current, delta, want int
	}{
		{1000, 25, 1025},
		{1000, -20, 980},
		{10, -20, 0},
		{0, -20, 0},
		{20, -20, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Apply(tt.current, tt.delta))
	}
}

type failingSessions struct{ store.SessionStore }

func (failingSessions) UpdateSessionOutcome(context.Context, string, model.SessionOutcome) error {
	return errors.New("connection refused")
}

func TestApplyDecisionPersistsAndRefreshesCache(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory(nil, 1000)
	c := cache.NewMemory(0)
	u := NewUpdater(db, db, c, logger.NewNop())

	rec, err := db.CreateSession(ctx, "user-1", "persona-1")
	require.NoError(t, err)

	got, err := u.ApplyDecision(ctx, Outcome{
		UserID:       "user-1",
		SessionID:    rec.ID,
		Guess:        model.GuessAI,
		WasCorrect:   true,
		Delta:        25,
		MessageCount: 9,
		EndedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1025, got)

	p, err := db.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1025, p.Rating)

	cached, err := c.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1025, cached.Rating)

	s, err := db.GetSession(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, *s.RatingChange)
	assert.Equal(t, 1025, *s.PlayerRating)
	assert.Equal(t, 9, *s.MessageCount)
}

func TestApplyDecisionFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory(nil, 1000)
	db.PutProfile(model.Profile{ID: "user-1", Rating: 10})
	u := NewUpdater(db, db, cache.NewMemory(0), logger.NewNop())

	got, err := u.ApplyDecision(ctx, Outcome{
		UserID:    "user-1",
		SessionID: "unknown-session",
		Guess:     model.GuessReal,
		Delta:     -20,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestApplyDecisionSessionWriteFailureDoesNotBlockRating(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory(nil, 1000)
	u := NewUpdater(db, failingSessions{}, cache.NewMemory(0), logger.NewNop())

	got, err := u.ApplyDecision(ctx, Outcome{UserID: "user-1", SessionID: "s", Delta: 25})
	require.NoError(t, err)
	assert.Equal(t, 1025, got)

	p, err := db.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1025, p.Rating)
}

func TestCurrentProfilePrefersCache(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory(nil, 1000)
	c := cache.NewMemory(0)
	require.NoError(t, c.SetProfile(ctx, &model.Profile{ID: "user-1", Rating: 1337}))
	u := NewUpdater(db, db, c, logger.NewNop())

	p, err := u.CurrentProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1337, p.Rating)
}

func TestApplyDecisionSerializesPerUser(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory(nil, 1000)
	u := NewUpdater(db, db, cache.NewMemory(0), logger.NewNop())

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		rec, err := db.CreateSession(ctx, "user-1", "persona-1")
		require.NoError(t, err)

		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			_, err := u.ApplyDecision(ctx, Outcome{
				UserID:     "user-1",
				SessionID:  sessionID,
				Guess:      model.GuessAI,
				WasCorrect: true,
				Delta:      25,
			})
			assert.NoError(t, err)
		}(rec.ID)
	}
	wg.Wait()

	p, err := db.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1000+n*25, p.Rating)

	u.mu.Lock()
	assert.Empty(t, u.users)
	u.mu.Unlock()
}
