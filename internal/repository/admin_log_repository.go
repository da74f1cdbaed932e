package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heartsound/report-backend-go/internal/models"
)

// AdminLogRepository records admin actions for audit
type AdminLogRepository struct {
	db *sql.DB
}

// NewAdminLogRepository creates a new admin log repository
func NewAdminLogRepository(db *sql.DB) *AdminLogRepository {
	return &AdminLogRepository{db: db}
}

// LogAction appends one audit entry
func (r *AdminLogRepository) LogAction(ctx context.Context, action models.AdminAction) error {
	details, err := json.Marshal(action.Details)
	if err != nil {
		return fmt.Errorf("failed to serialize action details: %w", err)
	}

	query := `
		INSERT INTO admin_logs (admin_id, action, target_type, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		action.AdminID,
		action.Action,
		action.TargetType,
		action.TargetID,
		string(details),
		toMillis(action.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to log admin action: %w", err)
	}

	return nil
}

// CountByAction returns the number of entries recorded for an action
func (r *AdminLogRepository) CountByAction(ctx context.Context, adminID, action string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM admin_logs WHERE admin_id = ? AND action = ?",
		adminID, action).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin actions: %w", err)
	}
	return count, nil
}
