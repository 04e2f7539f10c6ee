package session

import (
	"context"
	"time"

	"github.com/realorai/session-service/internal/model"
)

// Tick decrements the countdown of an active session by one second and ends the
// session when it reaches zero. It reports whether the session is still active.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	return c.tick(gen)
}

func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != model.StateActive {
		return false
	}

	c.timeRemaining--
	if c.timeRemaining <= 0 {
		c.timeRemaining = 0
		c.endSessionLocked(model.EndReasonTimer)
	}
	c.notifyLocked()

	return c.state == model.StateActive
}

// runTimer ticks every interval until session gen is no longer active or ctx is done.
func (c *Controller) runTimer(ctx context.Context, gen uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick(gen) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
