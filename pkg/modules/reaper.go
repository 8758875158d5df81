package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Reaper defaults
const (
	DefaultReaperSchedule = "@every 1m"
	DefaultSessionIdleTTL = 30 * time.Minute
)

// ReaperConfig configures a Reaper
type ReaperConfig struct {
	Schedule string
	IdleTTL  time.Duration
	Logger   *logrus.Logger
}

// Reaper unregisters modules that have not been used for IdleTTL, on a
// cron schedule
type Reaper struct {
	factory *Factory
	ttl     time.Duration
	cron    *cron.Cron
	log     *logrus.Logger
	now     func() time.Time
}

// NewReaper creates a stopped reaper for f
func NewReaper(f *Factory, cfg ReaperConfig) (*Reaper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultReaperSchedule
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultSessionIdleTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	r := &Reaper{
		factory: f,
		ttl:     cfg.IdleTTL,
		cron:    cron.New(),
		log:     cfg.Logger,
		now:     time.Now,
	}
	if _, err := r.cron.AddFunc(cfg.Schedule, func() { r.Reap() }); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background
func (r *Reaper) Start() {
	r.cron.Start()
	r.log.WithField("idle_ttl", r.ttl).Info("session reaper started")
}

// Stop halts the schedule and waits for a running sweep, or for ctx
func (r *Reaper) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reap runs one sweep and returns the user ids whose modules were removed
func (r *Reaper) Reap() []string {
	removed := r.factory.UnregisterIdle(r.now().Add(-r.ttl))
	if len(removed) > 0 {
		r.log.WithField("users", removed).Infof("reaped %d idle sessions", len(removed))
	}
	return removed
}
