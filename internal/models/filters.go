package models

import "time"

// TaskQuery represents filter parameters for querying report tasks
type TaskQuery struct {
	RequesterID   string     // empty means all requesters
	Status        TaskStatus // empty means any status
	ExpiresBefore *time.Time
	Offset        int
	Limit         int
}

// HistoryFilter represents the history page request
type HistoryFilter struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Status   string `form:"status"` // all, pending, processing, completed, failed
}

// AdminAction is one audit log entry
type AdminAction struct {
	AdminID    string
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]interface{}
	CreatedAt  time.Time
}

// ExpiredTask identifies a task due for removal. FilePath is empty when the
// task never produced a file.
type ExpiredTask struct {
	ID       string
	FilePath string
}
