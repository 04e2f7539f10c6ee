package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/pkg/logger"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(func(userID string) *Controller {
		return New(userID, testConfig(), &fakeResponder{reply: "sure"}, nil, logger.NewNop(), WithSleeper(noSleep))
	})
	r.now = clock.Now
	t.Cleanup(r.Close)
	return r, clock
}

func TestRegistryGetCreatesOnce(t *testing.T) {
	r, _ := newTestRegistry(t)

	a := r.Get("alice")
	b := r.Get("alice")
	assert.Same(t, a, b)
	assert.Equal(t, "alice", a.UserID())
	assert.Equal(t, 1, r.Len())

	_, ok := r.Lookup("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReapSurrendersIdleActiveSessions(t *testing.T) {
	r, clock := newTestRegistry(t)

	gone := r.Get("gone")
	require.NoError(t, gone.StartSession("s-1", testPersona))
	present := r.Get("present")
	require.NoError(t, present.StartSession("s-2", testPersona))

	clock.Advance(time.Minute)
	r.Touch("present")

	res := r.Reap(45*time.Second, 30*time.Minute)
	assert.Equal(t, 1, res.Surrendered)
	assert.Equal(t, 0, res.Evicted)

	snap := gone.Snapshot()
	assert.Equal(t, model.StateEnded, snap.State)
	assert.Equal(t, model.EndReasonSurrender, snap.EndReason)
	assert.Equal(t, model.StateActive, present.State())
}

func TestRegistryReapEvictsFinishedControllers(t *testing.T) {
	r, clock := newTestRegistry(t)

	r.Get("idle-user")
	active := r.Get("active-user")
	require.NoError(t, active.StartSession("s-1", testPersona))

	clock.Advance(31 * time.Minute)
	r.Touch("active-user")

	res := r.Reap(45*time.Second, 30*time.Minute)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, 0, res.Surrendered)

	_, ok := r.Lookup("idle-user")
	assert.False(t, ok)
	_, ok = r.Lookup("active-user")
	assert.True(t, ok)
}

func TestReaperRun(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctrl := r.Get("user")
	require.NoError(t, ctrl.StartSession("s-1", testPersona))

	reaper := NewReaper(r, "@every 1h", time.Second, time.Hour, logger.NewNop())
	require.NoError(t, reaper.Start())
	defer reaper.Stop()

	clock.Advance(2 * time.Second)
	reaper.Run()

	assert.Equal(t, model.StateEnded, ctrl.State())
}

func TestReaperRejectsBadSchedule(t *testing.T) {
	r, _ := newTestRegistry(t)
	reaper := NewReaper(r, "not a schedule", time.Second, time.Hour, logger.NewNop())
	assert.Error(t, reaper.Start())
}

func TestRegistryReapKeepsSessionsAwaitingDecision(t *testing.T) {
	r, clock := newTestRegistry(t)

	pending := r.Get("pending")
	require.NoError(t, pending.StartSession("s-1", testPersona))
	require.NoError(t, pending.Surrender())

	decided := r.Get("decided")
	require.NoError(t, decided.StartSession("s-2", testPersona))
	require.NoError(t, decided.Surrender())
	_, err := decided.RecordDecision(model.GuessAI)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)

	res := r.Reap(45*time.Second, 30*time.Minute)
	assert.Equal(t, 1, res.Evicted)

	ctrl, ok := r.Lookup("pending")
	require.True(t, ok)
	assert.Equal(t, model.StateEnded, ctrl.State())
	_, ok = r.Lookup("decided")
	assert.False(t, ok)
}
