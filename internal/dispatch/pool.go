// Package dispatch hands report task IDs to the code that generates them,
// either through an in-process worker pool or through RabbitMQ.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/heartsound/report-backend-go/internal/models"
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	ErrClosed    = errors.New("dispatcher is closed")
)

// Runner executes generation for one task
type Runner interface {
	RunGeneration(ctx context.Context, taskID string) (*models.ReportTask, error)
}

// WorkerPool runs queued task IDs on a fixed number of goroutines
type WorkerPool struct {
	taskQueue   chan string
	workerCount int
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool. Workers start with Start.
func NewWorkerPool(workerCount, queueSize int, logger *slog.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WorkerPool{
		taskQueue:   make(chan string, queueSize),
		workerCount: workerCount,
		logger:      logger.With("component", "worker_pool"),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called.
func (wp *WorkerPool) Start(ctx context.Context, runner Runner) {
	ctx, cancel := context.WithCancel(ctx)
	wp.mu.Lock()
	wp.cancel = cancel
	wp.mu.Unlock()

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, runner)
	}
	wp.logger.Info("worker pool started", "workers", wp.workerCount, "queue_size", cap(wp.taskQueue))
}

// Dispatch queues a task without blocking
func (wp *WorkerPool) Dispatch(ctx context.Context, taskID string) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrClosed
	}

	select {
	case wp.taskQueue <- taskID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for the workers to drain it
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.taskQueue)
	wp.mu.Unlock()

	wp.wg.Wait()

	wp.mu.Lock()
	if wp.cancel != nil {
		wp.cancel()
	}
	wp.mu.Unlock()
	wp.logger.Info("worker pool stopped")
}

func (wp *WorkerPool) worker(ctx context.Context, runner Runner) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case taskID, ok := <-wp.taskQueue:
			if !ok {
				return
			}
			// Outcomes are recorded on the task itself
			if _, err := runner.RunGeneration(ctx, taskID); err != nil {
				wp.logger.Debug("report task finished with error", "task_id", taskID, "error", err)
			}
		}
	}
}
