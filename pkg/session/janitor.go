package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepSchedule = "@every 1m"
	DefaultIdleTTL       = 30 * time.Minute
	DefaultStaleWindow   = 10 * time.Second
)

// Janitor periodically sweeps the registry: it expires stale open changes and
// closes idle sessions.
type Janitor struct {
	registry    *Registry
	cron        *cron.Cron
	logger      *slog.Logger
	idleTTL     time.Duration
	staleWindow time.Duration
}

func NewJanitor(registry *Registry, idleTTL, staleWindow time.Duration, logger *slog.Logger) *Janitor {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}

	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}

	return &Janitor{
		registry:    registry,
		cron:        cron.New(),
		logger:      logger.With("module", "session_janitor"),
		idleTTL:     idleTTL,
		staleWindow: staleWindow,
	}
}

// Start schedules the sweep and returns immediately.
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	_, err := j.cron.AddFunc(schedule, func() {
		j.registry.Sweep(ctx, j.idleTTL, j.staleWindow)
	})
	if err != nil {
		return err
	}

	j.cron.Start()

	j.logger.InfoContext(ctx, "Session janitor started", "schedule", schedule)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
