package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/heartsound/report-backend-go/internal/models"
)

type recordingRunner struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRunner) RunGeneration(ctx context.Context, taskID string) (*models.ReportTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, taskID)
	if taskID == "bad" {
		return nil, errors.New("boom")
	}
	return &models.ReportTask{ID: taskID}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerPoolRunsQueuedTasks(t *testing.T) {
	pool := NewWorkerPool(3, 16, quietLogger())
	runner := &recordingRunner{}
	pool.Start(context.Background(), runner)

	want := []string{"a", "b", "bad", "c", "d"}
	for _, id := range want {
		if err := pool.Dispatch(context.Background(), id); err != nil {
			t.Fatalf("Dispatch(%s): %v", id, err)
		}
	}
	pool.Stop()

	got := append([]string(nil), runner.ids...)
	sort.Strings(got)
	if len(got) != len(want) {
		t.Fatalf("ran %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ran %v, want %v", got, want)
			break
		}
	}
}

func TestWorkerPoolQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, quietLogger())

	if err := pool.Dispatch(context.Background(), "a"); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := pool.Dispatch(context.Background(), "b"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestWorkerPoolClosed(t *testing.T) {
	pool := NewWorkerPool(1, 4, quietLogger())
	pool.Start(context.Background(), &recordingRunner{})
	pool.Stop()
	pool.Stop()

	if err := pool.Dispatch(context.Background(), "a"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
