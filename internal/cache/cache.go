// Package cache holds the profile cache read by the UI and refreshed after decisions.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/realorai/session-service/internal/model"
)

// ErrNotFound is returned on a cache miss.
var ErrNotFound = errors.New("key not found in cache")

// ProfileCache stores profiles by user id.
type ProfileCache interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	SetProfile(ctx context.Context, p *model.Profile) error
	DeleteProfile(ctx context.Context, userID string) error
}

type memoryEntry struct {
	profile   model.Profile
	expiresAt time.Time
}

// Memory is an in-process ProfileCache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
}

// NewMemory creates a Memory cache. A zero ttl never expires entries.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
	}
}

// GetProfile returns a cached profile.
func (m *Memory) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	m.mu.RLock()
	e, ok := m.items[userID]
	m.mu.RUnlock()

	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		return nil, ErrNotFound
	}
	p := e.profile
	return &p, nil
}

// SetProfile caches a profile.
func (m *Memory) SetProfile(_ context.Context, p *model.Profile) error {
	e := memoryEntry{profile: *p}
	if m.ttl > 0 {
		e.expiresAt = time.Now().Add(m.ttl)
	}

	m.mu.Lock()
	m.items[p.ID] = e
	m.mu.Unlock()
	return nil
}

// DeleteProfile drops a cached profile.
func (m *Memory) DeleteProfile(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.items, userID)
	m.mu.Unlock()
	return nil
}
