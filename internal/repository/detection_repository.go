package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/heartsound/report-backend-go/internal/models"
)

// DetectionRepository reads the detection, user and device tables that
// back the reports
type DetectionRepository struct {
	db *sql.DB
}

// NewDetectionRepository creates a new detection repository
func NewDetectionRepository(db *sql.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// ListDetections returns detections in [from, to), newest first
func (r *DetectionRepository) ListDetections(ctx context.Context, from, to time.Time) ([]models.DetectionRecord, error) {
	query := `
		SELECT d.id, COALESCE(u.nickname, ''), COALESCE(dev.device_id, ''),
			   d.result_label, d.confidence, d.risk_level, d.created_at
		FROM detection_records d
		LEFT JOIN users u ON u.id = d.user_id
		LEFT JOIN devices dev ON dev.id = d.device_id
		WHERE d.created_at >= ? AND d.created_at < ?
		ORDER BY d.created_at DESC, d.id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var records []models.DetectionRecord
	for rows.Next() {
		var rec models.DetectionRecord
		var risk string
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.UserNickname, &rec.DeviceCode,
			&rec.ResultLabel, &rec.Confidence, &risk, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		rec.RiskLevel = models.RiskLevel(risk)
		rec.CreatedAt = fromMillis(createdAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ListUsersCreatedBetween returns users registered in [from, to), newest first
func (r *DetectionRepository) ListUsersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.UserProfile, error) {
	query := `
		SELECT id, COALESCE(nickname, ''), COALESCE(phone, ''), created_at
		FROM users
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.UserProfile
	for rows.Next() {
		var u models.UserProfile
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Nickname, &u.Phone, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = fromMillis(createdAt)
		users = append(users, u)
	}

	return users, rows.Err()
}

// UserDetectionSummary counts a user's detections over all time
func (r *DetectionRepository) UserDetectionSummary(ctx context.Context, userID string) (models.UserDetectionSummary, error) {
	query := `
		SELECT COUNT(*), MAX(created_at)
		FROM detection_records
		WHERE user_id = ?
	`

	var summary models.UserDetectionSummary
	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&summary.Count, &last); err != nil {
		return summary, fmt.Errorf("failed to summarize detections for user %s: %w", userID, err)
	}
	if last.Valid {
		t := fromMillis(last.Int64)
		summary.LastDetection = &t
	}

	return summary, nil
}

// ListDevices returns every device, newest first
func (r *DetectionRepository) ListDevices(ctx context.Context) ([]models.Device, error) {
	query := `
		SELECT id, device_id, COALESCE(firmware_version, ''), last_seen_at, created_at
		FROM devices
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		var lastSeen sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.DeviceCode, &d.FirmwareVersion, &lastSeen, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if lastSeen.Valid {
			t := fromMillis(lastSeen.Int64)
			d.LastSeenAt = &t
		}
		d.CreatedAt = fromMillis(createdAt)
		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// DeviceUsageSummary counts a device's detections in [from, to) and
// resolves its currently bound user
func (r *DetectionRepository) DeviceUsageSummary(ctx context.Context, deviceID string, from, to time.Time) (models.DeviceUsageSummary, error) {
	var summary models.DeviceUsageSummary

	countQuery := `
		SELECT COUNT(*) FROM detection_records
		WHERE device_id = ? AND created_at >= ? AND created_at < ?
	`
	if err := r.db.QueryRowContext(ctx, countQuery, deviceID, toMillis(from), toMillis(to)).Scan(&summary.DetectionCount); err != nil {
		return summary, fmt.Errorf("failed to count detections for device %s: %w", deviceID, err)
	}

	userQuery := `
		SELECT COALESCE(u.nickname, '')
		FROM user_devices ud
		JOIN users u ON u.id = ud.user_id
		WHERE ud.device_id = ?
		ORDER BY ud.bound_at DESC
		LIMIT 1
	`
	err := r.db.QueryRowContext(ctx, userQuery, deviceID).Scan(&summary.AssignedUser)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return summary, fmt.Errorf("failed to get assigned user for device %s: %w", deviceID, err)
	}

	return summary, nil
}

// ListRiskSamples returns the risk level of each detection in [from, to)
func (r *DetectionRepository) ListRiskSamples(ctx context.Context, from, to time.Time) ([]models.RiskSample, error) {
	query := `
		SELECT risk_level, created_at
		FROM detection_records
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query risk samples: %w", err)
	}
	defer rows.Close()

	var samples []models.RiskSample
	for rows.Next() {
		var risk string
		var createdAt int64
		if err := rows.Scan(&risk, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk sample: %w", err)
		}
		samples = append(samples, models.RiskSample{
			RiskLevel: models.RiskLevel(risk),
			CreatedAt: fromMillis(createdAt),
		})
	}

	return samples, rows.Err()
}
