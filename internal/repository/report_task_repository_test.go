package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/heartsound/report-backend-go/internal/database"
	"github.com/heartsound/report-backend-go/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTask(id, requester string, createdAt time.Time) *models.ReportTask {
	return &models.ReportTask{
		ID:          id,
		RequesterID: requester,
		ReportType:  models.ReportTypeDetectionData,
		Params: models.ReportParams{
			StartDate: "2024-01-01",
			EndDate:   "2024-01-07",
			Format:    models.FormatCSV,
		},
		Status:    models.TaskStatusPending,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(models.TaskRetention),
	}
}

func TestReportTaskCreateAndGet(t *testing.T) {
	repo := NewReportTaskRepository(openTestDB(t))
	ctx := context.Background()
	created := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)

	if err := repo.Create(ctx, newTask("t1", "admin-1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.RequesterID != "admin-1" || got.Status != models.TaskStatusPending || got.Progress != 0 {
		t.Errorf("unexpected task: %+v", got)
	}
	if got.Params.StartDate != "2024-01-01" || got.Params.Format != models.FormatCSV {
		t.Errorf("params not round-tripped: %+v", got.Params)
	}
	if !got.CreatedAt.Equal(created) || !got.ExpiresAt.Equal(created.Add(models.TaskRetention)) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.ExpiresAt)
	}
	if got.File != nil || got.CompletedAt != nil {
		t.Error("pending task must not carry file metadata")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestReportTaskLifecycle(t *testing.T) {
	repo := NewReportTaskRepository(openTestDB(t))
	ctx := context.Background()
	created := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)

	if err := repo.Create(ctx, newTask("t1", "admin-1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.UpdateProgress(ctx, "t1", 50); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("progress on pending task: got %v", err)
	}
	if err := repo.MarkAsProcessing(ctx, "t1", 10, created); err != nil {
		t.Fatalf("MarkAsProcessing: %v", err)
	}
	if err := repo.UpdateProgress(ctx, "t1", 80); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := repo.UpdateProgress(ctx, "t1", 50); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("progress moved backwards: got %v", err)
	}

	file := models.ReportFile{Name: "a.csv", Path: "reports/admin-1/t1/a.csv", Size: 42}
	done := created.Add(3 * time.Second)
	if err := repo.MarkAsCompleted(ctx, "t1", file, done); err != nil {
		t.Fatalf("MarkAsCompleted: %v", err)
	}

	got, err := repo.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Errorf("completed task breaks invariants: %v", err)
	}
	if got.File == nil || *got.File != file {
		t.Errorf("file = %+v, want %+v", got.File, file)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("completed_at = %v", got.CompletedAt)
	}

	// terminal states never move
	if err := repo.MarkAsFailed(ctx, "t1"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("MarkAsFailed after completion: got %v", err)
	}
	if err := repo.MarkAsProcessing(ctx, "t1", 10, created); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("MarkAsProcessing after completion: got %v", err)
	}
	after, _ := repo.GetByID(ctx, "t1")
	if after.Status != models.TaskStatusCompleted || after.Progress != 100 || after.File == nil {
		t.Errorf("completed task changed: %+v", after)
	}

	if err := repo.MarkAsFailed(ctx, "missing"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestReportTaskClaimedOnce(t *testing.T) {
	repo := NewReportTaskRepository(openTestDB(t))
	ctx := context.Background()
	created := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)
	started := created.Add(20 * time.Minute)

	repo.Create(ctx, newTask("t1", "admin-1", created))
	if err := repo.MarkAsProcessing(ctx, "t1", 10, started); err != nil {
		t.Fatalf("MarkAsProcessing: %v", err)
	}
	if err := repo.UpdateProgress(ctx, "t1", 80); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	if err := repo.MarkAsProcessing(ctx, "t1", 10, started.Add(time.Minute)); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("second claim: got %v, want ErrInvalidTransition", err)
	}

	got, _ := repo.GetByID(ctx, "t1")
	if got.Progress != 80 {
		t.Errorf("progress = %d after a lost claim, want 80", got.Progress)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
}

func TestReportTaskMarkAsFailed(t *testing.T) {
	repo := NewReportTaskRepository(openTestDB(t))
	ctx := context.Background()
	created := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	repo.Create(ctx, newTask("pending", "admin-1", created))
	repo.Create(ctx, newTask("running", "admin-1", created))
	repo.MarkAsProcessing(ctx, "running", 10, created)
	repo.UpdateProgress(ctx, "running", 80)

	for _, id := range []string{"pending", "running"} {
		if err := repo.MarkAsFailed(ctx, id); err != nil {
			t.Fatalf("MarkAsFailed(%s): %v", id, err)
		}
		got, _ := repo.GetByID(ctx, id)
		if got.Status != models.TaskStatusFailed || got.Progress != 0 || got.File != nil {
			t.Errorf("%s: unexpected failed task %+v", id, got)
		}
		if err := repo.MarkAsCompleted(ctx, id, models.ReportFile{Name: "x", Path: "x", Size: 1}, created); !errors.Is(err, models.ErrInvalidTransition) {
			t.Errorf("%s: completion after failure: got %v", id, err)
		}
	}
}

func TestReportTaskList(t *testing.T) {
	repo := NewReportTaskRepository(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		repo.Create(ctx, newTask(fmt.Sprintf("a%d", i), "admin-a", base.Add(time.Duration(i)*time.Hour)))
	}
	repo.Create(ctx, newTask("b0", "admin-b", base.Add(10*time.Hour)))
	repo.MarkAsFailed(ctx, "a1")

	tasks, total, err := repo.List(ctx, models.TaskQuery{RequesterID: "admin-a", Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(tasks) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(tasks))
	}
	if tasks[0].ID != "a4" || tasks[1].ID != "a3" {
		t.Errorf("order = %s,%s, want newest first", tasks[0].ID, tasks[1].ID)
	}

	tasks, _, _ = repo.List(ctx, models.TaskQuery{RequesterID: "admin-a", Limit: 2, Offset: 4})
	if len(tasks) != 1 || tasks[0].ID != "a0" {
		t.Errorf("last page = %v", tasks)
	}

	tasks, total, _ = repo.List(ctx, models.TaskQuery{Status: models.TaskStatusFailed})
	if total != 1 || len(tasks) != 1 || tasks[0].ID != "a1" {
		t.Errorf("failed filter: total=%d tasks=%v", total, tasks)
	}

	_, total, _ = repo.List(ctx, models.TaskQuery{})
	if total != 6 {
		t.Errorf("unscoped total = %d, want 6", total)
	}
}

func TestReportTaskExpiry(t *testing.T) {
	repo := NewReportTaskRepository(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.Create(ctx, newTask("old-done", "admin-1", base))
	repo.MarkAsProcessing(ctx, "old-done", 10, base)
	repo.MarkAsCompleted(ctx, "old-done", models.ReportFile{Name: "a.csv", Path: "reports/admin-1/old-done/a.csv", Size: 3}, base)
	repo.Create(ctx, newTask("old-failed", "admin-1", base.Add(time.Hour)))
	repo.MarkAsFailed(ctx, "old-failed")
	repo.Create(ctx, newTask("fresh", "admin-1", base.Add(5*24*time.Hour)))

	now := base.Add(8 * 24 * time.Hour)
	expired, err := repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expired = %v, want 2 tasks", expired)
	}
	if expired[0].ID != "old-done" || expired[0].FilePath != "reports/admin-1/old-done/a.csv" {
		t.Errorf("first expired = %+v", expired[0])
	}
	if expired[1].ID != "old-failed" || expired[1].FilePath != "" {
		t.Errorf("second expired = %+v", expired[1])
	}

	n, err := repo.DeleteByIDs(ctx, []string{"old-done", "old-failed"})
	if err != nil || n != 2 {
		t.Fatalf("DeleteByIDs = %d, %v", n, err)
	}
	n, _ = repo.DeleteByIDs(ctx, []string{"old-done"})
	if n != 0 {
		t.Errorf("second delete removed %d rows", n)
	}
	if n, _ := repo.DeleteByIDs(ctx, nil); n != 0 {
		t.Errorf("empty delete removed %d rows", n)
	}

	if _, err := repo.GetByID(ctx, "fresh"); err != nil {
		t.Errorf("fresh task removed: %v", err)
	}
}

func TestAdminLogRepository(t *testing.T) {
	repo := NewAdminLogRepository(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := repo.LogAction(ctx, models.AdminAction{
			AdminID:    "admin-1",
			Action:     "generate_report",
			TargetType: "report_task",
			TargetID:   fmt.Sprintf("t%d", i),
			Details:    map[string]interface{}{"report_type": "detection_data"},
			CreatedAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("LogAction: %v", err)
		}
	}

	if n, err := repo.CountByAction(ctx, "admin-1", "generate_report"); err != nil || n != 2 {
		t.Errorf("CountByAction = %d, %v", n, err)
	}
	if n, _ := repo.CountByAction(ctx, "admin-2", "generate_report"); n != 0 {
		t.Errorf("other admin count = %d", n)
	}
}
