package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartsound/report-backend-go/internal/models"
)

// DetectionRepository reads detection_records, users, devices and
// user_devices from the Supabase schema
type DetectionRepository struct {
	pool *pgxpool.Pool
}

// NewDetectionRepository creates a new detection repository
func NewDetectionRepository(pool *pgxpool.Pool) (*DetectionRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &DetectionRepository{pool: pool}, nil
}

// ListDetections returns detections in [from, to), newest first
func (r *DetectionRepository) ListDetections(ctx context.Context, from, to time.Time) ([]models.DetectionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id::text, COALESCE(u.nickname, ''), COALESCE(dev.device_id, ''),
			   d.result_label, d.confidence::float8, d.risk_level, d.created_at
		FROM detection_records d
		LEFT JOIN users u ON u.id = d.user_id
		LEFT JOIN devices dev ON dev.id = d.device_id
		WHERE d.created_at >= $1 AND d.created_at < $2
		ORDER BY d.created_at DESC, d.id DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DetectionRecord, error) {
		var rec models.DetectionRecord
		var risk string
		err := row.Scan(&rec.ID, &rec.UserNickname, &rec.DeviceCode,
			&rec.ResultLabel, &rec.Confidence, &risk, &rec.CreatedAt)
		rec.RiskLevel = models.RiskLevel(risk)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan detections: %w", err)
	}
	return records, nil
}

// ListUsersCreatedBetween returns users registered in [from, to), newest first
func (r *DetectionRepository) ListUsersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.UserProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, COALESCE(nickname, ''), COALESCE(phone, ''), created_at
		FROM users
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.UserProfile, error) {
		var u models.UserProfile
		err := row.Scan(&u.ID, &u.Nickname, &u.Phone, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, nil
}

// UserDetectionSummary counts a user's detections over all time
func (r *DetectionRepository) UserDetectionSummary(ctx context.Context, userID string) (models.UserDetectionSummary, error) {
	var summary models.UserDetectionSummary
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), MAX(created_at)
		FROM detection_records
		WHERE user_id = $1::text::uuid
	`, userID).Scan(&summary.Count, &summary.LastDetection)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize detections for user %s: %w", userID, err)
	}
	return summary, nil
}

// ListDevices returns every device, newest first
func (r *DetectionRepository) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, device_id, COALESCE(firmware_version, ''), last_seen_at, created_at
		FROM devices
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}

	devices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Device, error) {
		var d models.Device
		err := row.Scan(&d.ID, &d.DeviceCode, &d.FirmwareVersion, &d.LastSeenAt, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}
	return devices, nil
}

// DeviceUsageSummary counts a device's detections in [from, to) and
// resolves its bound user
func (r *DetectionRepository) DeviceUsageSummary(ctx context.Context, deviceID string, from, to time.Time) (models.DeviceUsageSummary, error) {
	var summary models.DeviceUsageSummary

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM detection_records
		WHERE device_id = $1::text::uuid AND created_at >= $2 AND created_at < $3
	`, deviceID, from, to).Scan(&summary.DetectionCount)
	if err != nil {
		return summary, fmt.Errorf("failed to count detections for device %s: %w", deviceID, err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(u.nickname, '')
		FROM user_devices ud
		JOIN users u ON u.id = ud.user_id
		WHERE ud.device_id = $1::text::uuid
		ORDER BY ud.bound_at DESC
		LIMIT 1
	`, deviceID).Scan(&summary.AssignedUser)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return summary, fmt.Errorf("failed to get assigned user for device %s: %w", deviceID, err)
	}

	return summary, nil
}

// ListRiskSamples returns the risk level of each detection in [from, to)
func (r *DetectionRepository) ListRiskSamples(ctx context.Context, from, to time.Time) ([]models.RiskSample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT risk_level, created_at
		FROM detection_records
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk samples: %w", err)
	}

	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RiskSample, error) {
		var s models.RiskSample
		var risk string
		err := row.Scan(&risk, &s.CreatedAt)
		s.RiskLevel = models.RiskLevel(risk)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan risk samples: %w", err)
	}
	return samples, nil
}
