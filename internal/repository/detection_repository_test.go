package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/heartsound/report-backend-go/internal/models"
)

func seedDetections(t *testing.T, db *sql.DB, base time.Time) {
	t.Helper()
	ms := func(d time.Duration) int64 { return base.Add(d).UnixMilli() }

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{"INSERT INTO users (id, nickname, phone, created_at) VALUES (?, ?, ?, ?)", []interface{}{"u1", "张三", "13800000000", ms(0)}},
		{"INSERT INTO users (id, nickname, phone, created_at) VALUES (?, ?, ?, ?)", []interface{}{"u2", "李四", "", ms(time.Hour)}},
		{"INSERT INTO devices (id, device_id, firmware_version, created_at) VALUES (?, ?, ?, ?)", []interface{}{"d1", "HS-001", "1.2.0", ms(0)}},
		{"INSERT INTO devices (id, device_id, firmware_version, created_at) VALUES (?, ?, ?, ?)", []interface{}{"d2", "HS-002", "", ms(time.Hour)}},
		{"INSERT INTO user_devices (user_id, device_id, bound_at) VALUES (?, ?, ?)", []interface{}{"u1", "d1", ms(0)}},
		{"INSERT INTO user_devices (user_id, device_id, bound_at) VALUES (?, ?, ?)", []interface{}{"u2", "d1", ms(2 * time.Hour)}},
		{"INSERT INTO detection_records (id, user_id, device_id, result_label, confidence, risk_level, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)", []interface{}{"r1", "u1", "d1", "正常", 0.9, "safe", ms(time.Hour)}},
		{"INSERT INTO detection_records (id, user_id, device_id, result_label, confidence, risk_level, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)", []interface{}{"r2", "u1", "d1", "杂音", 0.7, "warning", ms(2 * time.Hour)}},
		{"INSERT INTO detection_records (id, user_id, device_id, result_label, confidence, risk_level, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)", []interface{}{"r3", nil, nil, "杂音", 0.8, "danger", ms(26 * time.Hour)}},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.query, err)
		}
	}
}

func TestDetectionRepository(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDetections(t, db, base)

	repo := NewDetectionRepository(db)
	ctx := context.Background()
	dayOne := base.Add(24 * time.Hour)

	records, err := repo.ListDetections(ctx, base, dayOne)
	if err != nil {
		t.Fatalf("ListDetections: %v", err)
	}
	if len(records) != 2 || records[0].ID != "r2" || records[1].ID != "r1" {
		t.Fatalf("records = %+v, want r2, r1", records)
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
	if len(users) != 2 || users[0].ID != "u2" {
		t.Errorf("users = %+v, want newest first", users)
	}

	summary, err := repo.UserDetectionSummary(ctx, "u1")
	if err != nil {
		t.Fatalf("UserDetectionSummary: %v", err)
	}
	if summary.Count != 2 || summary.LastDetection == nil || !summary.LastDetection.Equal(base.Add(2*time.Hour)) {
		t.Errorf("summary = %+v", summary)
	}
	if empty, _ := repo.UserDetectionSummary(ctx, "u2"); empty.Count != 0 || empty.LastDetection != nil {
		t.Errorf("empty summary = %+v", empty)
	}

	devices, err := repo.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 || devices[0].DeviceCode != "HS-002" {
		t.Errorf("devices = %+v", devices)
	}

	usage, err := repo.DeviceUsageSummary(ctx, "d1", base, dayOne)
	if err != nil {
		t.Fatalf("DeviceUsageSummary: %v", err)
	}
	if usage.DetectionCount != 2 || usage.AssignedUser != "李四" {
		t.Errorf("usage = %+v, want latest binding", usage)
	}
	if idle, _ := repo.DeviceUsageSummary(ctx, "d2", base, dayOne); idle.DetectionCount != 0 || idle.AssignedUser != "" {
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
