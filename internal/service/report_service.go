package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartsound/report-backend-go/internal/models"
	"github.com/heartsound/report-backend-go/internal/report"
	"github.com/heartsound/report-backend-go/internal/storage"
)

const (
	defaultGenerationTimeout = 5 * time.Minute
	finalizeTimeout          = 10 * time.Second
	staleScanLimit           = 500

	// Progress checkpoints reported while a task is processing.
	progressStarted   = 10
	progressGenerated = 50
	progressEncoded   = 80

	actionGenerateReport = "generate_report"
)

// TaskStore persists report tasks. Transitions are guarded by the store:
// terminal tasks never change again.
type TaskStore interface {
	Create(ctx context.Context, task *models.ReportTask) error
	GetByID(ctx context.Context, id string) (*models.ReportTask, error)
	List(ctx context.Context, q models.TaskQuery) ([]*models.ReportTask, int, error)
	MarkAsProcessing(ctx context.Context, id string, progress int, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	MarkAsCompleted(ctx context.Context, id string, file models.ReportFile, completedAt time.Time) error
	MarkAsFailed(ctx context.Context, id string) error
	ListExpired(ctx context.Context, before time.Time) ([]models.ExpiredTask, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// AuditLogger records admin actions
type AuditLogger interface {
	LogAction(ctx context.Context, action models.AdminAction) error
}

// Dispatcher hands a task ID to whatever runs generation
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string) error
}

// TableGenerator produces the rows of a report
type TableGenerator interface {
	Generate(ctx context.Context, t models.ReportType, r models.DateRange) (report.Table, error)
}

// Options tunes the report service
type Options struct {
	GenerationTimeout time.Duration
	Now               func() time.Time
	Logger            *slog.Logger
}

// ReportService orchestrates the report task lifecycle
type ReportService struct {
	tasks      TaskStore
	generator  TableGenerator
	blobs      storage.BlobStore
	audit      AuditLogger
	dispatcher Dispatcher
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewReportService creates a new report service
func NewReportService(tasks TaskStore, generator TableGenerator, blobs storage.BlobStore, audit AuditLogger, dispatcher Dispatcher, opts Options) *ReportService {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = defaultGenerationTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &ReportService{
		tasks:      tasks,
		generator:  generator,
		blobs:      blobs,
		audit:      audit,
		dispatcher: dispatcher,
		timeout:    opts.GenerationTimeout,
		now:        opts.Now,
		logger:     opts.Logger.With("component", "report_service"),
	}
}

// SubmitRequest is the body of a report request
type SubmitRequest struct {
	ReportType string `json:"reportType"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Format     string `json:"format"`
}

// SubmitResult is returned once the task is recorded
type SubmitResult struct {
	TaskID           string            `json:"taskId"`
	Status           models.TaskStatus `json:"status"`
	EstimatedSeconds int               `json:"estimatedSeconds"`
}

// Submit validates the request, records a pending task and dispatches it.
// It returns without waiting for generation.
func (s *ReportService) Submit(ctx context.Context, requesterID string, req SubmitRequest) (*SubmitResult, error) {
	// Validate input before anything is persisted
	reportType, err := models.ParseReportType(req.ReportType)
	if err != nil {
		return nil, err
	}
	format, err := models.ParseExportFormat(req.Format)
	if err != nil {
		return nil, err
	}
	dateRange, err := models.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task := &models.ReportTask{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		ReportType:  reportType,
		Params: models.ReportParams{
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Format:    format,
		},
		Status:    models.TaskStatusPending,
		Progress:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(models.TaskRetention),
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger := s.logger.With("task_id", task.ID)
	logger.Info("report task created",
		"report_type", reportType,
		"format", format,
		"start_date", req.StartDate,
		"end_date", req.EndDate,
	)

	// Audit failures never block the request
	if s.audit != nil {
		err := s.audit.LogAction(ctx, models.AdminAction{
			AdminID:    requesterID,
			Action:     actionGenerateReport,
			TargetType: "report_task",
			TargetID:   task.ID,
			Details: map[string]interface{}{
				"report_type": string(reportType),
				"params":      task.Params,
			},
			CreatedAt: now,
		})
		if err != nil {
			logger.Warn("failed to write audit log", "error", err)
		}
	}

	// A task that cannot be dispatched would stay pending forever
	if err := s.dispatcher.Dispatch(ctx, task.ID); err != nil {
		logger.Error("failed to dispatch report generation", "error", err)
		s.markFailed(task.ID, logger)
	}

	return &SubmitResult{
		TaskID:           task.ID,
		Status:           models.TaskStatusPending,
		EstimatedSeconds: models.EstimateSeconds(dateRange),
	}, nil
}

// RunGeneration drives one pending task to completed or failed. Whatever
// happens, the task is left in a terminal state before this returns. The
// returned error only describes the outcome. A run that loses the claim on
// the task returns ErrInvalidTransition without touching it.
func (s *ReportService) RunGeneration(ctx context.Context, taskID string) (result *models.ReportTask, err error) {
	logger := s.logger.With("task_id", taskID)

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		logger.Warn("report task not found, skipping generation", "error", err)
		return nil, err
	}
	if !task.Status.CanTransitionTo(models.TaskStatusProcessing) {
		logger.Warn("report task is not pending, skipping generation", "status", task.Status)
		return task, fmt.Errorf("%w: task %s is %s", models.ErrInvalidTransition, taskID, task.Status)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var uploaded string
	defer func() {
		if r := recover(); r != nil {
			err = &models.GenerationError{Err: fmt.Errorf("panic: %v", r)}
			logger.Error("report generation panicked", "panic", r)
			s.markFailed(taskID, logger)
			if uploaded != "" {
				s.releaseBlob(taskID, uploaded, logger)
			}
			result = nil
		}
	}()

	started := s.now()
	if err := s.tasks.MarkAsProcessing(ctx, taskID, progressStarted, started); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrTaskNotFound) {
			logger.Warn("report task claimed by another run", "error", err)
			return nil, err
		}
		logger.Error("failed to mark task as processing", "error", err)
		s.markFailed(taskID, logger)
		return nil, err
	}
	task.Status = models.TaskStatusProcessing
	task.StartedAt = &started

	encoded, err := s.render(ctx, task)
	if err != nil {
		logger.Error("report generation failed", "error", err)
		s.markFailed(taskID, logger)
		return nil, err
	}

	path := storagePath(task.RequesterID, task.ID, encoded.FileName)
	uploaded = path
	if err := s.blobs.Upload(ctx, path, encoded.Content, encoded.ContentType); err != nil {
		err = &models.UploadError{Err: err}
		logger.Error("report generation failed", "error", err)
		s.discardBlob(path, logger)
		s.markFailed(taskID, logger)
		return nil, err
	}
	file := &models.ReportFile{
		Name: encoded.FileName,
		Path: path,
		Size: int64(len(encoded.Content)),
	}

	completedAt := s.now()
	if err := s.tasks.MarkAsCompleted(ctx, taskID, *file, completedAt); err != nil {
		logger.Error("failed to record completed report", "error", err)
		s.markFailed(taskID, logger)
		s.releaseBlob(taskID, path, logger)
		return nil, err
	}

	task.Status = models.TaskStatusCompleted
	task.Progress = 100
	task.File = file
	task.CompletedAt = &completedAt

	logger.Info("report generated",
		"file_name", file.Name,
		"file_size", file.Size,
		"duration", completedAt.Sub(started),
	)
	return task, nil
}

// render runs generate and encode, reporting progress after each
func (s *ReportService) render(ctx context.Context, task *models.ReportTask) (report.EncodedFile, error) {
	dateRange, err := task.Params.DateRange()
	if err != nil {
		return report.EncodedFile{}, &models.GenerationError{Err: err}
	}

	table, err := s.generator.Generate(ctx, task.ReportType, dateRange)
	if err != nil {
		return report.EncodedFile{}, err
	}
	if err := s.tasks.UpdateProgress(ctx, task.ID, progressGenerated); err != nil {
		return report.EncodedFile{}, fmt.Errorf("failed to update progress: %w", err)
	}

	encoded, err := report.Encode(task.ReportType, dateRange, task.Params.Format, table)
	if err != nil {
		return report.EncodedFile{}, err
	}
	if err := s.tasks.UpdateProgress(ctx, task.ID, progressEncoded); err != nil {
		return report.EncodedFile{}, fmt.Errorf("failed to update progress: %w", err)
	}

	return encoded, nil
}

// markFailed records the failure on a fresh context so an expired
// generation deadline cannot prevent it.
func (s *ReportService) markFailed(taskID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := s.tasks.MarkAsFailed(ctx, taskID); err != nil {
		logger.Error("failed to mark task as failed", "error", err)
	}
}

// releaseBlob deletes an uploaded file unless the task record ended up
// completed and pointing at it.
func (s *ReportService) releaseBlob(taskID, path string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil && !errors.Is(err, models.ErrTaskNotFound) {
		logger.Warn("failed to check report file owner, keeping file", "path", path, "error", err)
		return
	}
	if task != nil && task.Status == models.TaskStatusCompleted && task.File != nil && task.File.Path == path {
		return
	}
	s.discardBlob(path, logger)
}

func (s *ReportService) discardBlob(path string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := s.blobs.DeleteMany(ctx, []string{path}); err != nil {
		logger.Warn("failed to remove orphaned report file", "path", path, "error", err)
	}
}

// FailStaleTasks fails tasks that started processing well over the
// generation timeout ago, e.g. under a worker that died mid-run. Time spent
// queued does not count.
func (s *ReportService) FailStaleTasks(ctx context.Context) (int, error) {
	tasks, _, err := s.tasks.List(ctx, models.TaskQuery{
		Status: models.TaskStatusProcessing,
		Limit:  staleScanLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list processing tasks: %w", err)
	}

	cutoff := s.now().Add(-2 * s.timeout)
	failed := 0
	for _, task := range tasks {
		started := task.CreatedAt
		if task.StartedAt != nil {
			started = *task.StartedAt
		}
		if !started.Before(cutoff) {
			continue
		}
		if err := s.tasks.MarkAsFailed(ctx, task.ID); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrTaskNotFound) {
				continue
			}
			return failed, fmt.Errorf("failed to fail stale task %s: %w", task.ID, err)
		}
		s.logger.Warn("failed stale report task", "task_id", task.ID, "started_at", started)
		failed++
	}

	return failed, nil
}

// RequeuePending dispatches tasks still pending, typically ones queued in
// memory when the process last stopped.
func (s *ReportService) RequeuePending(ctx context.Context) (int, error) {
	tasks, _, err := s.tasks.List(ctx, models.TaskQuery{
		Status: models.TaskStatusPending,
		Limit:  staleScanLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending tasks: %w", err)
	}

	requeued := 0
	for _, task := range tasks {
		if err := s.dispatcher.Dispatch(ctx, task.ID); err != nil {
			s.logger.Error("failed to requeue report task", "task_id", task.ID, "error", err)
			s.markFailed(task.ID, s.logger.With("task_id", task.ID))
			continue
		}
		requeued++
	}

	return requeued, nil
}

func storagePath(requesterID, taskID, fileName string) string {
	return fmt.Sprintf("reports/%s/%s/%s", requesterID, taskID, fileName)
}
