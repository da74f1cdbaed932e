package service

import (
	"context"
	"fmt"
	"time"

	"github.com/heartsound/report-backend-go/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TaskStatusView is the polling response for a single task. File fields and
// the download link are only present once the task completed.
type TaskStatusView struct {
	TaskID      string              `json:"taskId"`
	RequesterID string              `json:"requesterId"`
	ReportType  models.ReportType   `json:"reportType"`
	Status      models.TaskStatus   `json:"status"`
	Progress    int                 `json:"progress"`
	Params      models.ReportParams `json:"params"`
	CreatedAt   time.Time           `json:"createdAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
	FileName    string              `json:"fileName,omitempty"`
	FileSize    int64               `json:"fileSize,omitempty"`
	DownloadURL *string             `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
}

// HistoryScope selects whose tasks a history query returns
type HistoryScope struct {
	RequesterID string
	All         bool
}

// HistoryItem is one row of the task history
type HistoryItem struct {
	ID           string              `json:"id"`
	ReportType   models.ReportType   `json:"reportType"`
	ReportLabel  string              `json:"reportLabel"`
	Status       models.TaskStatus   `json:"status"`
	Progress     int                 `json:"progress"`
	Params       models.ReportParams `json:"params"`
	FileName     string              `json:"fileName,omitempty"`
	FileSize     int64               `json:"fileSize,omitempty"`
	FileSizeText string              `json:"fileSizeText,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
	ExpiresAt    time.Time           `json:"expiresAt"`
	IsExpired    bool                `json:"isExpired"`
	DownloadURL  *string             `json:"downloadUrl,omitempty"`
}

// HistoryPage is a page of history items
type HistoryPage struct {
	Items    []HistoryItem `json:"list"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	HasMore  bool          `json:"hasMore"`
}

// CleanupResult reports what a retention sweep removed
type CleanupResult struct {
	Deleted int      `json:"deleted"`
	TaskIDs []string `json:"-"`
}

// GetStatus returns the current state of a task. A completed task carries a
// freshly signed download link; failing to sign it is not an error.
func (s *ReportService) GetStatus(ctx context.Context, taskID string) (*TaskStatusView, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	view := &TaskStatusView{
		TaskID:      task.ID,
		RequesterID: task.RequesterID,
		ReportType:  task.ReportType,
		Status:      task.Status,
		Progress:    task.Progress,
		Params:      task.Params,
		CreatedAt:   task.CreatedAt,
	}

	if task.Status == models.TaskStatusCompleted && task.File != nil {
		expiresAt := task.ExpiresAt
		view.CompletedAt = task.CompletedAt
		view.FileName = task.File.Name
		view.FileSize = task.File.Size
		view.ExpiresAt = &expiresAt
		view.DownloadURL = s.signURL(ctx, task)
	}

	return view, nil
}

// ListHistory returns tasks newest-first. Elevated scope sees every
// requester's tasks.
func (s *ReportService) ListHistory(ctx context.Context, scope HistoryScope, filter models.HistoryFilter) (*HistoryPage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	q := models.TaskQuery{
		Offset: (filter.Page - 1) * filter.PageSize,
		Limit:  filter.PageSize,
	}
	if !scope.All {
		q.RequesterID = scope.RequesterID
	}
	if filter.Status != "" && filter.Status != "all" {
		status := models.TaskStatus(filter.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, filter.Status)
		}
		q.Status = status
	}

	tasks, total, err := s.tasks.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list report tasks: %w", err)
	}

	now := s.now()
	items := make([]HistoryItem, 0, len(tasks))
	for _, task := range tasks {
		item := HistoryItem{
			ID:          task.ID,
			ReportType:  task.ReportType,
			ReportLabel: task.ReportType.Label(),
			Status:      task.Status,
			Progress:    task.Progress,
			Params:      task.Params,
			CreatedAt:   task.CreatedAt,
			CompletedAt: task.CompletedAt,
			ExpiresAt:   task.ExpiresAt,
			IsExpired:   task.IsExpired(now),
		}
		if task.File != nil {
			item.FileName = task.File.Name
			item.FileSize = task.File.Size
			item.FileSizeText = formatFileSize(task.File.Size)
			if !item.IsExpired {
				item.DownloadURL = s.signURL(ctx, task)
			}
		}
		items = append(items, item)
	}

	return &HistoryPage{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		HasMore:  q.Offset+len(items) < total,
	}, nil
}

// CleanupExpired deletes the blobs of expired tasks and then their rows.
// Blob deletion tolerates missing objects, so a rerun after a partial sweep
// succeeds.
func (s *ReportService) CleanupExpired(ctx context.Context) (*CleanupResult, error) {
	now := s.now()

	expired, err := s.tasks.ListExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tasks: %w", err)
	}
	if len(expired) == 0 {
		return &CleanupResult{Deleted: 0}, nil
	}

	ids := make([]string, 0, len(expired))
	var paths []string
	for _, task := range expired {
		ids = append(ids, task.ID)
		if task.FilePath != "" {
			paths = append(paths, task.FilePath)
		}
	}

	if len(paths) > 0 {
		if err := s.blobs.DeleteMany(ctx, paths); err != nil {
			return nil, fmt.Errorf("failed to delete expired files: %w", err)
		}
	}

	deleted, err := s.tasks.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired tasks: %w", err)
	}

	s.logger.Info("expired report tasks cleaned up", "tasks", deleted, "files", len(paths))
	return &CleanupResult{Deleted: int(deleted), TaskIDs: ids}, nil
}

// ReportTypes lists the report catalog
func (s *ReportService) ReportTypes() []models.ReportTypeInfo {
	return models.ReportTypeCatalog()
}

// ExportFormats lists the formats a report type can be exported to
func (s *ReportService) ExportFormats(reportType string) ([]models.ExportFormatInfo, error) {
	t, err := models.ParseReportType(reportType)
	if err != nil {
		return nil, err
	}
	return models.ExportFormatsFor(t), nil
}

func (s *ReportService) signURL(ctx context.Context, task *models.ReportTask) *string {
	url, err := s.blobs.SignURL(ctx, task.File.Path, models.SignedURLTTL)
	if err != nil {
		err = &models.SignedURLError{Err: err}
		s.logger.Warn("failed to sign download url", "task_id", task.ID, "error", err)
		return nil
	}
	return &url
}

func formatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}
