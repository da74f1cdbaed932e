package models

import (
	"fmt"
	"time"
)

// Retention and download link lifetimes.
const (
	TaskRetention = 7 * 24 * time.Hour
	SignedURLTTL  = time.Hour
)

// TaskStatus is the lifecycle state of a report task
type TaskStatus string

// TaskStatus constants
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether s is one of the known statuses
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next.
// pending -> processing -> {completed | failed}; pending may also fail
// directly when the dispatch itself cannot be scheduled. A task is claimed
// for processing exactly once.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	}
	return false
}

// ReportParams are the user supplied generation parameters
type ReportParams struct {
	StartDate string       `json:"start_date"` // YYYY-MM-DD
	EndDate   string       `json:"end_date"`   // YYYY-MM-DD, inclusive
	Format    ExportFormat `json:"format"`
}

// DateRange parses the params into a calendar date range
func (p ReportParams) DateRange() (DateRange, error) {
	return ParseDateRange(p.StartDate, p.EndDate)
}

// ReportFile describes the uploaded artifact of a completed task
type ReportFile struct {
	Name string `json:"file_name"`
	Path string `json:"file_path"`
	Size int64  `json:"file_size"`
}

// ReportTask represents one report generation request and its lifecycle.
// File is set if and only if Status is completed.
type ReportTask struct {
	ID          string       `json:"id"`
	RequesterID string       `json:"requester_id"`
	ReportType  ReportType   `json:"report_type"`
	Params      ReportParams `json:"params"`
	Status      TaskStatus   `json:"status"`
	Progress    int          `json:"progress"`
	File        *ReportFile  `json:"file,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// IsExpired reports whether the retention window has passed at now
func (t *ReportTask) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// CheckInvariants verifies the field/state coupling of the record
func (t *ReportTask) CheckInvariants() error {
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("task %s: progress %d out of range", t.ID, t.Progress)
	}
	completed := t.Status == TaskStatusCompleted
	if completed != (t.File != nil) {
		return fmt.Errorf("task %s: file metadata present=%t with status %s", t.ID, t.File != nil, t.Status)
	}
	if completed != (t.Progress == 100) {
		return fmt.Errorf("task %s: progress %d with status %s", t.ID, t.Progress, t.Status)
	}
	if (t.Status == TaskStatusPending || t.Status == TaskStatusFailed) && t.Progress != 0 {
		return fmt.Errorf("task %s: progress %d with status %s", t.ID, t.Progress, t.Status)
	}
	return nil
}

// EstimateSeconds is the coarse, non-binding generation time estimate
// shown to the submitter: two seconds per day, clamped to [5, 60].
func EstimateSeconds(r DateRange) int {
	est := r.Days() * 2
	if est < 5 {
		return 5
	}
	if est > 60 {
		return 60
	}
	return est
}
