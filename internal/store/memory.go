package store

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/realorai/session-service/internal/model"
)

// Memory implements Store in process. Profiles are created on first read with the
// initial rating, standing in for the auth backend's signup trigger.
type Memory struct {
	mu            sync.RWMutex
	personas      []model.Persona
	sessions      map[string]*model.SessionRecord
	profiles      map[string]*model.Profile
	initialRating int
}

// NewMemory returns a Memory preloaded with the supplied personas.
func NewMemory(personas []model.Persona, initialRating int) *Memory {
	return &Memory{
		personas:      append([]model.Persona(nil), personas...),
		sessions:      make(map[string]*model.SessionRecord),
		profiles:      make(map[string]*model.Profile),
		initialRating: initialRating,
	}
}

// SamplePersonas returns up to limit personas in random order.
func (m *Memory) SamplePersonas(_ context.Context, limit int) ([]model.Persona, error) {
	m.mu.RLock()
	out := append([]model.Persona(nil), m.personas...)
	m.mu.RUnlock()

	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetPersona looks up a persona by id.
func (m *Memory) GetPersona(_ context.Context, id string) (*model.Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.personas {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// CreateSession inserts a session record.
func (m *Memory) CreateSession(_ context.Context, userID, personaID string) (*model.SessionRecord, error) {
	rec := &model.SessionRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		PersonaID: personaID,
		StartedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[rec.ID] = rec
	m.mu.Unlock()

	cp := *rec
	return &cp, nil
}

// UpdateSessionOutcome writes the decided fields.
func (m *Memory) UpdateSessionOutcome(_ context.Context, sessionID string, out model.SessionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	endedAt := out.EndedAt
	guess := out.Guess
	wasCorrect := out.WasCorrect
	delta := out.RatingDelta
	count := out.MessageCount
	rating := out.PlayerRating

	rec.EndedAt = &endedAt
	rec.UserGuess = &guess
	rec.WasCorrect = &wasCorrect
	rec.RatingChange = &delta
	rec.MessageCount = &count
	rec.PlayerRating = &rating
	return nil
}

// GetSession returns a copy of a session record.
func (m *Memory) GetSession(_ context.Context, sessionID string) (*model.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// GetProfile returns the user's profile, creating it on first access.
func (m *Memory) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		p = &model.Profile{
			ID:        userID,
			Rating:    m.initialRating,
			CreatedAt: time.Now().UTC(),
		}
		m.profiles[userID] = p
	}
	cp := *p
	return &cp, nil
}

// PutProfile inserts or replaces a profile.
func (m *Memory) PutProfile(p model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = &p
}

// UpdateRating sets the user's rating.
func (m *Memory) UpdateRating(_ context.Context, userID string, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.Rating = rating
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error {
	return nil
}
