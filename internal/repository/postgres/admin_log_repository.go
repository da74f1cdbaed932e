package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartsound/report-backend-go/internal/models"
)

// AdminLogRepository records admin actions in admin_logs
type AdminLogRepository struct {
	pool *pgxpool.Pool
}

// NewAdminLogRepository creates a new admin log repository
func NewAdminLogRepository(pool *pgxpool.Pool) (*AdminLogRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &AdminLogRepository{pool: pool}, nil
}

// LogAction appends one audit entry
func (r *AdminLogRepository) LogAction(ctx context.Context, action models.AdminAction) error {
	details, err := json.Marshal(action.Details)
	if err != nil {
		return fmt.Errorf("failed to serialize action details: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO admin_logs (admin_id, action, target_type, target_id, details, created_at)
		VALUES ($1::text::uuid, $2, $3, $4, $5, $6)
	`, action.AdminID, action.Action, action.TargetType, action.TargetID, details, action.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log admin action: %w", err)
	}
	return nil
}
