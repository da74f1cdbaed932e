package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/heartsound/report-backend-go/internal/models"
)

const taskColumns = `
	id, admin_id, report_type, status, progress, params,
	file_name, file_path, file_size, created_at, started_at, completed_at, expires_at
`

// ReportTaskRepository handles database operations for report tasks
type ReportTaskRepository struct {
	db *sql.DB
}

// NewReportTaskRepository creates a new report task repository
func NewReportTaskRepository(db *sql.DB) *ReportTaskRepository {
	return &ReportTaskRepository{db: db}
}

// Create inserts a new report task. The caller assigns the ID.
func (r *ReportTaskRepository) Create(ctx context.Context, task *models.ReportTask) error {
	params, err := json.Marshal(task.Params)
	if err != nil {
		return fmt.Errorf("failed to serialize params: %w", err)
	}

	query := `
		INSERT INTO report_tasks (
			id, admin_id, report_type, status, progress, params, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID,
		task.RequesterID,
		string(task.ReportType),
		string(task.Status),
		task.Progress,
		string(params),
		toMillis(task.CreatedAt),
		toMillis(task.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create report task: %w", err)
	}

	return nil
}

// GetByID retrieves a report task by ID
func (r *ReportTaskRepository) GetByID(ctx context.Context, id string) (*models.ReportTask, error) {
	query := `SELECT ` + taskColumns + ` FROM report_tasks WHERE id = ?`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report task: %w", err)
	}

	return task, nil
}

// List retrieves report tasks newest-first along with the unpaged total
func (r *ReportTaskRepository) List(ctx context.Context, q models.TaskQuery) ([]*models.ReportTask, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if q.RequesterID != "" {
		where += " AND admin_id = ?"
		args = append(args, q.RequesterID)
	}
	if q.Status != "" {
		where += " AND status = ?"
		args = append(args, string(q.Status))
	}
	if q.ExpiresBefore != nil {
		where += " AND expires_at < ?"
		args = append(args, toMillis(*q.ExpiresBefore))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM report_tasks"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count report tasks: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + taskColumns + " FROM report_tasks" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list report tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.ReportTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan report task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate report tasks: %w", err)
	}

	return tasks, total, nil
}

// MarkAsProcessing claims a pending task. Only one caller can win the claim;
// the others get ErrInvalidTransition.
func (r *ReportTaskRepository) MarkAsProcessing(ctx context.Context, id string, progress int, startedAt time.Time) error {
	query := `
		UPDATE report_tasks
		SET status = ?, progress = ?, started_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := r.db.ExecContext(ctx, query,
		string(models.TaskStatusProcessing), progress, toMillis(startedAt), id,
		string(models.TaskStatusPending))
	if err != nil {
		return fmt.Errorf("failed to mark task as processing: %w", err)
	}

	return r.checkAffected(ctx, res, id)
}

// UpdateProgress raises the progress of a processing task. Progress never
// moves backwards.
func (r *ReportTaskRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	query := `
		UPDATE report_tasks
		SET progress = ?
		WHERE id = ? AND status = ? AND progress <= ?
	`

	res, err := r.db.ExecContext(ctx, query, progress, id, string(models.TaskStatusProcessing), progress)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}

	return r.checkAffected(ctx, res, id)
}

// MarkAsCompleted finalizes a processing task with its file metadata
func (r *ReportTaskRepository) MarkAsCompleted(ctx context.Context, id string, file models.ReportFile, completedAt time.Time) error {
	query := `
		UPDATE report_tasks
		SET status = ?, progress = 100, file_name = ?, file_path = ?,
			file_size = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := r.db.ExecContext(ctx, query,
		string(models.TaskStatusCompleted), file.Name, file.Path, file.Size, toMillis(completedAt),
		id, string(models.TaskStatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}

	return r.checkAffected(ctx, res, id)
}

// MarkAsFailed moves a non-terminal task to failed and clears any file reference
func (r *ReportTaskRepository) MarkAsFailed(ctx context.Context, id string) error {
	query := `
		UPDATE report_tasks
		SET status = ?, progress = 0, file_name = NULL, file_path = NULL,
			file_size = NULL, completed_at = NULL
		WHERE id = ? AND status IN (?, ?)
	`

	res, err := r.db.ExecContext(ctx, query,
		string(models.TaskStatusFailed), id,
		string(models.TaskStatusPending), string(models.TaskStatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to mark task as failed: %w", err)
	}

	return r.checkAffected(ctx, res, id)
}

// ListExpired returns the tasks whose retention ended before the cutoff
func (r *ReportTaskRepository) ListExpired(ctx context.Context, before time.Time) ([]models.ExpiredTask, error) {
	query := `
		SELECT id, file_path FROM report_tasks
		WHERE expires_at < ?
		ORDER BY expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, toMillis(before))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired report tasks: %w", err)
	}
	defer rows.Close()

	var expired []models.ExpiredTask
	for rows.Next() {
		var (
			task models.ExpiredTask
			path sql.NullString
		)
		if err := rows.Scan(&task.ID, &path); err != nil {
			return nil, fmt.Errorf("failed to scan expired task: %w", err)
		}
		task.FilePath = path.String
		expired = append(expired, task)
	}

	return expired, rows.Err()
}

// DeleteByIDs removes the given tasks
func (r *ReportTaskRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM report_tasks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete report tasks: %w", err)
	}

	return res.RowsAffected()
}

// checkAffected turns a no-op guarded update into a typed error
func (r *ReportTaskRepository) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, "SELECT status FROM report_tasks WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get task status: %w", err)
	}

	return fmt.Errorf("%w: task %s is %s", models.ErrInvalidTransition, id, status)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(s rowScanner) (*models.ReportTask, error) {
	var (
		task        models.ReportTask
		reportType  string
		status      string
		params      string
		fileName    sql.NullString
		filePath    sql.NullString
		fileSize    sql.NullInt64
		createdAt   int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
		expiresAt   int64
	)

	err := s.Scan(
		&task.ID,
		&task.RequesterID,
		&reportType,
		&status,
		&task.Progress,
		&params,
		&fileName,
		&filePath,
		&fileSize,
		&createdAt,
		&startedAt,
		&completedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	task.ReportType = models.ReportType(reportType)
	task.Status = models.TaskStatus(status)
	if err := json.Unmarshal([]byte(params), &task.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of task %s: %w", task.ID, err)
	}
	task.CreatedAt = fromMillis(createdAt)
	task.ExpiresAt = fromMillis(expiresAt)
	if startedAt.Valid {
		t := fromMillis(startedAt.Int64)
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		task.CompletedAt = &t
	}
	if task.Status == models.TaskStatusCompleted && filePath.Valid {
		task.File = &models.ReportFile{
			Name: fileName.String,
			Path: filePath.String,
			Size: fileSize.Int64,
		}
	}

	return &task, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
