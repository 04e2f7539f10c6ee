package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realorai/session-service/internal/model"
)

func TestMemoryProfileCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)

	_, err := c.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.SetProfile(ctx, &model.Profile{ID: "user-1", Rating: 1025}))

	p, err := c.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1025, p.Rating)

	require.NoError(t, c.DeleteProfile(ctx, "user-1"))
	_, err = c.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProfileCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Millisecond)

	require.NoError(t, c.SetProfile(ctx, &model.Profile{ID: "user-1", Rating: 10}))
	time.Sleep(5 * time.Millisecond)

	_, err := c.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileKey(t *testing.T) {
	assert.Equal(t, "profile:abc", profileKey("abc"))
}
