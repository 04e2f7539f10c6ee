package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/realorai/session-service/pkg/logger"
)

// Reaper periodically surrenders sessions whose client went away and evicts
// finished controllers.
type Reaper struct {
	cron       *cron.Cron
	registry   *Registry
	schedule   string
	idle       time.Duration
	evictAfter time.Duration
	logger     *logger.Logger
}

// NewReaper creates a Reaper running on a cron schedule such as "@every 30s".
func NewReaper(registry *Registry, schedule string, idle, evictAfter time.Duration, log *logger.Logger) *Reaper {
	return &Reaper{
		cron:       cron.New(),
		registry:   registry,
		schedule:   schedule,
		idle:       idle,
		evictAfter: evictAfter,
		logger:     log.Named("reaper"),
	}
}

// Start registers the job and starts the scheduler.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.Run); err != nil {
		return fmt.Errorf("failed to schedule session reaper: %w", err)
	}
	r.cron.Start()
	r.logger.Info("session reaper started", zap.String("schedule", r.schedule))
	return nil
}

// Run performs one pass.
func (r *Reaper) Run() {
	res := r.registry.Reap(r.idle, r.evictAfter)
	if res.Surrendered > 0 || res.Evicted > 0 {
		r.logger.Info("reaped sessions",
			zap.Int("surrendered", res.Surrendered),
			zap.Int("evicted", res.Evicted),
			zap.Int("remaining", r.registry.Len()),
		)
	}
}

// Stop stops the scheduler and waits for a running pass to finish.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
