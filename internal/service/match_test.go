package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/responder"
	"github.com/realorai/session-service/internal/session"
	"github.com/realorai/session-service/internal/store"
	"github.com/realorai/session-service/pkg/logger"
)

type stubResponder struct{}

func (stubResponder) Respond(context.Context, responder.Request) responder.Reply {
	return responder.Reply{Message: "lol same", Source: responder.SourceLive}
}

func (stubResponder) Greet(_ context.Context, p model.Persona) responder.Reply {
	return responder.Reply{Message: "hi, " + p.Name + " here", Source: responder.SourceGreeting}
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type failingPersonas struct{}

func (failingPersonas) SamplePersonas(context.Context, int) ([]model.Persona, error) {
	return nil, errors.New("connection refused")
}

func (failingPersonas) GetPersona(context.Context, string) (*model.Persona, error) {
	return nil, store.ErrNotFound
}

func newTestRegistry(t *testing.T, rater session.RatingUpdater) *session.Registry {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.TickInterval = 0
	r := session.NewRegistry(func(userID string) *session.Controller {
		return session.New(userID, cfg, stubResponder{}, rater, logger.NewNop(), session.WithSleeper(noSleep))
	})
	t.Cleanup(r.Close)
	return r
}

func testMatchConfig() MatchConfig {
	return MatchConfig{
		QueuePause:       900 * time.Millisecond,
		SearchPause:      1200 * time.Millisecond,
		Timeout:          time.Second,
		SampleSize:       25,
		ErrorStatusClear: 20 * time.Millisecond,
	}
}

func newTestMatchService(t *testing.T, personas store.PersonaStore, sessions store.SessionStore, reg *session.Registry, opts ...MatchOption) *MatchService {
	t.Helper()

	opts = append([]MatchOption{WithMatchSleeper(noSleep), WithPicker(func(int) int { return 0 })}, opts...)
	s := NewMatchService(personas, sessions, reg, testMatchConfig(), logger.NewNop(), opts...)
	t.Cleanup(s.Close)
	return s
}

func TestFindMatchStartsSession(t *testing.T) {
	mem := store.NewMemory(store.DefaultPersonas(), 1000)
	reg := newTestRegistry(t, nil)
	s := newTestMatchService(t, mem, mem, reg)

	st, err := s.FindMatch(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, st.Searching)
	assert.Equal(t, StatusQueue, st.Status)

	s.Wait()

	st = s.Status("user-1")
	assert.False(t, st.Searching)
	assert.Equal(t, StatusFound, st.Status)
	require.NotNil(t, st.Session)
	assert.Equal(t, model.StateActive, st.Session.State)
	assert.NotEmpty(t, st.Session.SessionID)

	rec, err := mem.GetSession(context.Background(), st.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, st.Session.PersonaID, rec.PersonaID)

	ctrl, ok := reg.Lookup("user-1")
	require.True(t, ok)
	ctrl.Wait()
	assert.Len(t, ctrl.Snapshot().Messages, 1)
}

func TestFindMatchWhileSearching(t *testing.T) {
	mem := store.NewMemory(store.DefaultPersonas(), 1000)
	reg := newTestRegistry(t, nil)

	gate := make(chan struct{})
	s := newTestMatchService(t, mem, mem, reg, WithMatchSleeper(func(ctx context.Context, _ time.Duration) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))

	_, err := s.FindMatch(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = s.FindMatch(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrAlreadySearching)

	st := s.Status("user-1")
	assert.True(t, st.Searching)
	assert.Equal(t, StatusQueue, st.Status)
	assert.Nil(t, st.Session)

	s.CancelSearch("user-1")
	close(gate)
	s.Wait()

	st = s.Status("user-1")
	assert.False(t, st.Searching)
	assert.Empty(t, st.Status)
	assert.Nil(t, st.Session)

	ctrl, ok := reg.Lookup("user-1")
	require.True(t, ok)
	assert.Equal(t, model.StateIdle, ctrl.State())
}

func TestFindMatchErrorStatusClears(t *testing.T) {
	mem := store.NewMemory(nil, 1000)
	reg := newTestRegistry(t, nil)
	s := newTestMatchService(t, failingPersonas{}, mem, reg)

	_, err := s.FindMatch(context.Background(), "user-1")
	require.NoError(t, err)
	s.Wait()

	st := s.Status("user-1")
	assert.False(t, st.Searching)
	assert.Equal(t, StatusError, st.Status)

	require.Eventually(t, func() bool {
		return s.Status("user-1").Status == StatusNoMatch
	}, time.Second, 5*time.Millisecond)
}

func TestFindMatchWithNoPersonas(t *testing.T) {
	mem := store.NewMemory(nil, 1000)
	reg := newTestRegistry(t, nil)
	s := newTestMatchService(t, mem, mem, reg)

	_, err := s.FindMatch(context.Background(), "user-1")
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, StatusError, s.Status("user-1").Status)
}

func TestFindMatchRequiresNoActiveSession(t *testing.T) {
	mem := store.NewMemory(store.DefaultPersonas(), 1000)
	reg := newTestRegistry(t, nil)
	s := newTestMatchService(t, mem, mem, reg)

	_, err := s.FindMatch(context.Background(), "user-1")
	require.NoError(t, err)
	s.Wait()

	_, err = s.FindMatch(context.Background(), "user-1")
	assert.ErrorIs(t, err, session.ErrInvalidState)
}

func TestFindMatchAfterFinishedSessionResets(t *testing.T) {
	mem := store.NewMemory(store.DefaultPersonas(), 1000)
	reg := newTestRegistry(t, nil)
	s := newTestMatchService(t, mem, mem, reg)

	_, err := s.FindMatch(context.Background(), "user-1")
	require.NoError(t, err)
	s.Wait()

	ctrl, _ := reg.Lookup("user-1")
	ctrl.Wait()
	first := ctrl.Snapshot().SessionID
	require.NoError(t, ctrl.Surrender())

	_, err = s.FindMatch(context.Background(), "user-1")
	require.NoError(t, err)
	s.Wait()
	ctrl.Wait()

	snap := ctrl.Snapshot()
	assert.Equal(t, model.StateActive, snap.State)
	assert.NotEqual(t, first, snap.SessionID)
	assert.Len(t, snap.Messages, 1)
}
