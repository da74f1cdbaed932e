package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/heartsound/report-backend-go/internal/service"
)

type fakeSweeper struct {
	cleanups   int
	staleScans int
	cleanupErr error
}

func (f *fakeSweeper) CleanupExpired(ctx context.Context) (*service.CleanupResult, error) {
	f.cleanups++
	if f.cleanupErr != nil {
		return nil, f.cleanupErr
	}
	return &service.CleanupResult{Deleted: 2}, nil
}

func (f *fakeSweeper) FailStaleTasks(ctx context.Context) (int, error) {
	f.staleScans++
	return 0, errors.New("db down")
}

func TestCleanupSchedulerRunOnce(t *testing.T) {
	sweeper := &fakeSweeper{}
	s, err := NewCleanupScheduler("@every 1h", sweeper, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewCleanupScheduler: %v", err)
	}

	s.RunOnce()
	if sweeper.staleScans != 1 || sweeper.cleanups != 1 {
		t.Errorf("stale scans=%d cleanups=%d, want 1/1", sweeper.staleScans, sweeper.cleanups)
	}

	sweeper.cleanupErr = errors.New("storage down")
	s.RunOnce()
	if sweeper.cleanups != 2 {
		t.Errorf("cleanups = %d, want 2", sweeper.cleanups)
	}

	s.Start()
	s.Stop()
}

func TestCleanupSchedulerInvalidSchedule(t *testing.T) {
	if _, err := NewCleanupScheduler("every hour", &fakeSweeper{}, nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
