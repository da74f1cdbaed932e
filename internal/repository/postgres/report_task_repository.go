// Package postgres implements the report stores against the hosted
// Postgres (Supabase) schema using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartsound/report-backend-go/internal/models"
)

const taskColumns = `
	id::text, admin_id::text, report_type, status, progress, params,
	file_name, file_path, file_size, created_at, started_at, completed_at, expires_at
`

// invalidTextRepresentation is raised when an id is not a valid uuid
const invalidTextRepresentation = "22P02"


// ReportTaskRepository stores report tasks in the report_tasks table
type ReportTaskRepository struct {
	pool *pgxpool.Pool
}

// NewReportTaskRepository creates a new repository over the pool
func NewReportTaskRepository(pool *pgxpool.Pool) (*ReportTaskRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &ReportTaskRepository{pool: pool}, nil
}

// Create inserts a new report task
func (r *ReportTaskRepository) Create(ctx context.Context, task *models.ReportTask) error {
	params, err := json.Marshal(task.Params)
	if err != nil {
		return fmt.Errorf("failed to serialize params: %w", err)
	}

	query := `
		INSERT INTO report_tasks (id, admin_id, report_type, status, progress, params, created_at, expires_at)
		VALUES ($1::text::uuid, $2::text::uuid, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.RequesterID,
		string(task.ReportType),
		string(task.Status),
		task.Progress,
		params,
		task.CreatedAt,
		task.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report task: %w", err)
	}
	return nil
}

// GetByID retrieves a report task by ID
func (r *ReportTaskRepository) GetByID(ctx context.Context, id string) (*models.ReportTask, error) {
	query := `SELECT ` + taskColumns + ` FROM report_tasks WHERE id = $1::text::uuid`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
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
	args := []any{}
	if q.RequesterID != "" {
		args = append(args, q.RequesterID)
		where += fmt.Sprintf(" AND admin_id = $%d::text::uuid", len(args))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if q.ExpiresBefore != nil {
		args = append(args, *q.ExpiresBefore)
		where += fmt.Sprintf(" AND expires_at < $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM report_tasks"+where, args...).Scan(&total); err != nil {
		if isMalformedID(err) {
			// a requester id that is not a uuid owns no tasks
			return []*models.ReportTask{}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to count report tasks: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, q.Offset)
	query := fmt.Sprintf("SELECT %s FROM report_tasks%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		taskColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
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

// MarkAsProcessing claims a pending task. Only one caller can win the claim.
func (r *ReportTaskRepository) MarkAsProcessing(ctx context.Context, id string, progress int, startedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_tasks SET status = 'processing', progress = $2, started_at = $3
		WHERE id = $1::text::uuid AND status = 'pending'
	`, id, progress, startedAt)
	if err != nil {
		if isMalformedID(err) {
			return fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return fmt.Errorf("failed to mark task as processing: %w", err)
	}
	return r.checkAffected(ctx, tag, id)
}

// UpdateProgress raises the progress of a processing task
func (r *ReportTaskRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_tasks SET progress = $2
		WHERE id = $1::text::uuid AND status = 'processing' AND progress <= $2
	`, id, progress)
	if err != nil {
		if isMalformedID(err) {
			return fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return r.checkAffected(ctx, tag, id)
}

// MarkAsCompleted finalizes a processing task with its file metadata
func (r *ReportTaskRepository) MarkAsCompleted(ctx context.Context, id string, file models.ReportFile, completedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_tasks
		SET status = 'completed', progress = 100, file_name = $2, file_path = $3,
			file_size = $4, completed_at = $5
		WHERE id = $1::text::uuid AND status = 'processing'
	`, id, file.Name, file.Path, file.Size, completedAt)
	if err != nil {
		if isMalformedID(err) {
			return fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}
	return r.checkAffected(ctx, tag, id)
}

// MarkAsFailed moves a non-terminal task to failed and clears any file reference
func (r *ReportTaskRepository) MarkAsFailed(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_tasks
		SET status = 'failed', progress = 0, file_name = NULL, file_path = NULL,
			file_size = NULL, completed_at = NULL
		WHERE id = $1::text::uuid AND status IN ('pending', 'processing')
	`, id)
	if err != nil {
		if isMalformedID(err) {
			return fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return fmt.Errorf("failed to mark task as failed: %w", err)
	}
	return r.checkAffected(ctx, tag, id)
}

// ListExpired returns the tasks whose retention ended before the cutoff
func (r *ReportTaskRepository) ListExpired(ctx context.Context, before time.Time) ([]models.ExpiredTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, COALESCE(file_path, '') FROM report_tasks
		WHERE expires_at < $1
		ORDER BY expires_at
	`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired report tasks: %w", err)
	}
	expired, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ExpiredTask, error) {
		var task models.ExpiredTask
		err := row.Scan(&task.ID, &task.FilePath)
		return task, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired tasks: %w", err)
	}
	return expired, nil
}

// DeleteByIDs removes the given tasks
func (r *ReportTaskRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM report_tasks WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete report tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ReportTaskRepository) checkAffected(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM report_tasks WHERE id = $1::text::uuid`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get task status: %w", err)
	}
	return fmt.Errorf("%w: task %s is %s", models.ErrInvalidTransition, id, status)
}

func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

func scanTask(row pgx.Row) (*models.ReportTask, error) {
	var (
		task       models.ReportTask
		reportType string
		status     string
		params     []byte
		fileName   *string
		filePath   *string
		fileSize   *int64
	)

	err := row.Scan(
		&task.ID,
		&task.RequesterID,
		&reportType,
		&status,
		&task.Progress,
		&params,
		&fileName,
		&filePath,
		&fileSize,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
		&task.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	task.ReportType = models.ReportType(reportType)
	task.Status = models.TaskStatus(status)
	if err := json.Unmarshal(params, &task.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of task %s: %w", task.ID, err)
	}
	if task.Status == models.TaskStatusCompleted && filePath != nil {
		file := &models.ReportFile{Path: *filePath}
		if fileName != nil {
			file.Name = *fileName
		}
		if fileSize != nil {
			file.Size = *fileSize
		}
		task.File = file
	}

	return &task, nil
}
