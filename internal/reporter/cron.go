package reporter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Maintainer is the subset of *fleetdb.Actor the housekeeping cron needs.
type Maintainer interface {
	RefreshMaterializedViews(ctx context.Context) error
	PruneLogs(ctx context.Context, retention time.Duration) error
}

// Cron wraps go-co-op/gocron/v2 to run the two periodic housekeeping jobs:
// refreshing the graph materialized views and pruning old log rows. Built
// on one gocron.Scheduler with singleton-mode jobs so a slow run never
// overlaps itself.
type Cron struct {
	sched        gocron.Scheduler
	db           Maintainer
	logRetention time.Duration
	logger       *zap.Logger
}

// NewCron creates the housekeeping scheduler. Call Start to begin running
// jobs; Stop waits for any in-flight run to finish.
func NewCron(db Maintainer, logRetention time.Duration, logger *zap.Logger) (*Cron, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("reporter: create gocron scheduler: %w", err)
	}
	return &Cron{sched: s, db: db, logRetention: logRetention, logger: logger.Named("cron")}, nil
}

// Start registers both jobs and starts the underlying gocron scheduler.
func (c *Cron) Start(ctx context.Context) error {
	_, err := c.sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if err := c.db.RefreshMaterializedViews(ctx); err != nil {
				c.logger.Error("refresh materialized views failed", zap.Error(err))
			}
		}),
		gocron.WithName("refresh-graph-views"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("reporter: schedule view refresh: %w", err)
	}

	_, err = c.sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			if err := c.db.PruneLogs(ctx, c.logRetention); err != nil {
				c.logger.Error("prune logs failed", zap.Error(err))
			}
		}),
		gocron.WithName("prune-logs"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("reporter: schedule log pruning: %w", err)
	}

	c.sched.Start()
	c.logger.Info("housekeeping cron started",
		zap.Duration("log_retention", c.logRetention))
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for any running job.
func (c *Cron) Stop() error {
	if err := c.sched.Shutdown(); err != nil {
		return fmt.Errorf("reporter: cron shutdown: %w", err)
	}
	return nil
}
