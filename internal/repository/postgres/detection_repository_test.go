package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartsound/report-backend-go/internal/models"
)

func seedDetections(t *testing.T, pool *pgxpool.Pool, base time.Time) {
	t.Helper()
	at := func(d time.Duration) time.Time { return base.Add(d) }
	u1, u2, d1, d2 := uid(1), uid(2), uid(11), uid(12)

	stmts := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO users (id, nickname, phone, created_at) VALUES ($1::text::uuid, $2, $3, $4)", []any{u1, "张三", "13800000000", at(0)}},
		{"INSERT INTO users (id, nickname, phone, created_at) VALUES ($1::text::uuid, $2, $3, $4)", []any{u2, "李四", nil, at(time.Hour)}},
		{"INSERT INTO devices (id, device_id, firmware_version, created_at) VALUES ($1::text::uuid, $2, $3, $4)", []any{d1, "HS-001", "1.2.0", at(0)}},
		{"INSERT INTO devices (id, device_id, firmware_version, created_at) VALUES ($1::text::uuid, $2, $3, $4)", []any{d2, "HS-002", nil, at(time.Hour)}},
		// u1 registered before u2 but holds the newer binding
		{"INSERT INTO user_devices (user_id, device_id, bound_at) VALUES ($1::text::uuid, $2::text::uuid, $3)", []any{u2, d1, at(3 * time.Hour)}},
		{"INSERT INTO user_devices (user_id, device_id, bound_at) VALUES ($1::text::uuid, $2::text::uuid, $3)", []any{u1, d1, at(4 * time.Hour)}},
		{"INSERT INTO detection_records (id, user_id, device_id, result_label, confidence, risk_level, created_at) VALUES ($1::text::uuid, $2::text::uuid, $3::text::uuid, $4, $5, $6, $7)", []any{uid(21), u1, d1, "正常", 0.9, "safe", at(time.Hour)}},
		{"INSERT INTO detection_records (id, user_id, device_id, result_label, confidence, risk_level, created_at) VALUES ($1::text::uuid, $2::text::uuid, $3::text::uuid, $4, $5, $6, $7)", []any{uid(22), u1, d1, "杂音", 0.7, "warning", at(2 * time.Hour)}},
		{"INSERT INTO detection_records (id, user_id, device_id, result_label, confidence, risk_level, created_at) VALUES ($1::text::uuid, $2::text::uuid, $3::text::uuid, $4, $5, $6, $7)", []any{uid(23), nil, nil, "杂音", 0.8, "danger", at(26 * time.Hour)}},
	}
	for _, s := range stmts {
		if _, err := pool.Exec(context.Background(), s.query, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.query, err)
		}
	}
}

func TestDetectionRepository(t *testing.T) {
	pool := openTestPool(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDetections(t, pool, base)

	repo, err := NewDetectionRepository(pool)
	if err != nil {
		t.Fatalf("NewDetectionRepository: %v", err)
	}
	ctx := context.Background()
	dayOne := base.Add(24 * time.Hour)

	records, err := repo.ListDetections(ctx, base, dayOne)
	if err != nil {
		t.Fatalf("ListDetections: %v", err)
	}
	if len(records) != 2 || records[0].ID != uid(22) || records[1].ID != uid(21) {
		t.Fatalf("records = %+v, want newest first", records)
	}
	if records[0].UserNickname != "张三" || records[0].DeviceCode != "HS-001" || records[0].RiskLevel != models.RiskWarning {
		t.Errorf("joined record = %+v", records[0])
	}

	all, _ := repo.ListDetections(ctx, base, base.Add(48*time.Hour))
	if len(all) != 3 || all[0].UserNickname != "" || all[0].DeviceCode != "" {
		t.Errorf("orphan record = %+v", all[0])
	}

	users, err := repo.ListUsersCreatedBetween(ctx, base, dayOne)
	if err != nil {
		t.Fatalf("ListUsersCreatedBetween: %v", err)
	}
	if len(users) != 2 || users[0].ID != uid(2) || users[0].Phone != "" {
		t.Errorf("users = %+v, want newest first", users)
	}

	summary, err := repo.UserDetectionSummary(ctx, uid(1))
	if err != nil {
		t.Fatalf("UserDetectionSummary: %v", err)
	}
	if summary.Count != 2 || summary.LastDetection == nil || !summary.LastDetection.Equal(base.Add(2*time.Hour)) {
		t.Errorf("summary = %+v", summary)
	}

	devices, err := repo.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 || devices[0].DeviceCode != "HS-002" || devices[0].LastSeenAt != nil {
		t.Errorf("devices = %+v", devices)
	}

	usage, err := repo.DeviceUsageSummary(ctx, uid(11), base, dayOne)
	if err != nil {
		t.Fatalf("DeviceUsageSummary: %v", err)
	}
	if usage.DetectionCount != 2 || usage.AssignedUser != "张三" {
		t.Errorf("usage = %+v, want latest binding", usage)
	}
	if idle, _ := repo.DeviceUsageSummary(ctx, uid(12), base, dayOne); idle.DetectionCount != 0 || idle.AssignedUser != "" {
		t.Errorf("idle usage = %+v", idle)
	}

	samples, err := repo.ListRiskSamples(ctx, base, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListRiskSamples: %v", err)
	}
	if len(samples) != 3 || samples[2].RiskLevel != models.RiskDanger {
		t.Errorf("samples = %+v", samples)
	}
}
