// Package scheduler runs the periodic report retention jobs
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/heartsound/report-backend-go/internal/service"
)

const sweepTimeout = 5 * time.Minute

// Sweeper is the part of the report service the scheduler drives
type Sweeper interface {
	CleanupExpired(ctx context.Context) (*service.CleanupResult, error)
	FailStaleTasks(ctx context.Context) (int, error)
}

// CleanupScheduler periodically removes expired report tasks and fails
// tasks stuck in processing
type CleanupScheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger
}

// NewCleanupScheduler registers the sweep under the given cron spec.
// Descriptors such as "@every 1h" and "@daily" are accepted.
func NewCleanupScheduler(schedule string, sweeper Sweeper, logger *slog.Logger) (*CleanupScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cleanup_scheduler")

	cronLog := cronLogger{logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	s := &CleanupScheduler{
		cron:    c,
		sweeper: sweeper,
		logger:  logger,
	}

	if _, err := c.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start starts the cron scheduler
func (s *CleanupScheduler) Start() {
	s.cron.Start()
	s.logger.Info("cleanup scheduler started")
}

// Stop stops the scheduler and waits for a running sweep
func (s *CleanupScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}

// RunOnce performs one sweep
func (s *CleanupScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if n, err := s.sweeper.FailStaleTasks(ctx); err != nil {
		s.logger.Error("failed to fail stale report tasks", "error", err)
	} else if n > 0 {
		s.logger.Warn("failed stale report tasks", "count", n)
	}

	result, err := s.sweeper.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("report cleanup failed", "error", err)
		return
	}
	s.logger.Info("report cleanup finished", "deleted", result.Deleted)
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
