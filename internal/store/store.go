// Package store persists personas, session records and profiles.
package store

import (
	"context"
	"errors"

	"github.com/realorai/session-service/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// PersonaStore reads AI personas.
type PersonaStore interface {
	// SamplePersonas returns up to limit personas in random order.
	SamplePersonas(ctx context.Context, limit int) ([]model.Persona, error)
	GetPersona(ctx context.Context, id string) (*model.Persona, error)
}

// SessionStore writes session records.
type SessionStore interface {
	CreateSession(ctx context.Context, userID, personaID string) (*model.SessionRecord, error)
	UpdateSessionOutcome(ctx context.Context, sessionID string, out model.SessionOutcome) error
	GetSession(ctx context.Context, sessionID string) (*model.SessionRecord, error)
}

// ProfileStore reads profiles and writes ratings.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateRating(ctx context.Context, userID string, rating int) error
}

// Store is the full persistence surface.
type Store interface {
	PersonaStore
	SessionStore
	ProfileStore
	Ping(ctx context.Context) error
}
