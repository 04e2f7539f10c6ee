package session

import (
	"sync"
	"time"

	"github.com/realorai/session-service/internal/model"
)

// Factory builds a controller for a user.
type Factory func(userID string) *Controller

type registryEntry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry holds one controller per user and tracks when each user's client was
// last seen.
type Registry struct {
	factory Factory
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the user's controller, creating it on first use, and marks the user
// as seen.
func (r *Registry) Get(userID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		e = &registryEntry{ctrl: r.factory(userID)}
		r.entries[userID] = e
	}
	e.lastSeen = r.now()
	return e.ctrl
}

// Lookup returns the user's controller without creating one.
func (r *Registry) Lookup(userID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Touch marks the user as seen.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.lastSeen = r.now()
	}
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ReapResult counts what a Reap pass did.
type ReapResult struct {
	Surrendered int
	Evicted     int
}

// Reap surrenders active sessions whose client has been gone longer than idle, and
// evicts idle or decided controllers that have been unseen longer than evictAfter.
func (r *Registry) Reap(idle, evictAfter time.Duration) ReapResult {
	now := r.now()

	var (
		res     ReapResult
		surr    []*Controller
		evicted []*Controller
	)

	r.mu.Lock()
	for userID, e := range r.entries {
		unseen := now.Sub(e.lastSeen)
		switch e.ctrl.State() {
		case model.StateActive:
			if idle > 0 && unseen > idle {
				surr = append(surr, e.ctrl)
			}
		case model.StateEnded:
			// Kept until the player makes their guess.
		default:
			if evictAfter > 0 && unseen > evictAfter {
				evicted = append(evicted, e.ctrl)
				delete(r.entries, userID)
			}
		}
	}
	r.mu.Unlock()

	for _, c := range surr {
		if c.Surrender() == nil {
			res.Surrendered++
		}
	}
	for _, c := range evicted {
		c.Close()
		res.Evicted++
	}
	return res
}

// Close shuts down every controller.
func (r *Registry) Close() {
	r.mu.Lock()
	ctrls := make([]*Controller, 0, len(r.entries))
	for _, e := range r.entries {
		ctrls = append(ctrls, e.ctrl)
	}
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, c := range ctrls {
		c.Close()
	}
}
