package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseReportType(t *testing.T) {
	for _, rt := range AllReportTypes {
		got, err := ParseReportType(string(rt))
		if err != nil || got != rt {
			t.Errorf("ParseReportType(%q) = %q, %v", rt, got, err)
		}
	}

	if _, err := ParseReportType("sales"); !errors.Is(err, ErrInvalidReportType) {
		t.Errorf("expected ErrInvalidReportType, got %v", err)
	}
	if !IsValidationError(ErrInvalidReportType) {
		t.Error("invalid report type should be a validation error")
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ExportFormat
		wantErr bool
	}{
		{"", FormatXLSX, false},
		{"xlsx", FormatXLSX, false},
		{"csv", FormatCSV, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		got, err := ParseExportFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseExportFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseExportFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2024-01-01", "2024-01-07")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Days() != 7 {
		t.Errorf("Days() = %d, want 7", r.Days())
	}

	single, err := ParseDateRange("2024-02-29", "2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if single.Days() != 1 {
		t.Errorf("single day range has %d days", single.Days())
	}

	if _, err := ParseDateRange("2024-01-08", "2024-01-01"); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange, got %v", err)
	}
	if _, err := ParseDateRange("2024/01/01", "2024-01-02"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateRangeBounds(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	r, _ := ParseDateRange("2024-01-01", "2024-01-01")

	from, to := r.Bounds(loc)
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, loc); !from.Equal(want) {
		t.Errorf("from = %v, want %v", from, want)
	}
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, loc); !to.Equal(want) {
		t.Errorf("to = %v, want %v", to, want)
	}
}

func TestEstimateSeconds(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"2024-01-01", "2024-01-01", 5},
		{"2024-01-01", "2024-01-03", 6},
		{"2024-01-01", "2024-01-07", 14},
		{"2024-01-01", "2024-01-30", 60},
		{"2024-01-01", "2024-12-31", 60},
	}

	for _, tt := range tests {
		r, err := ParseDateRange(tt.start, tt.end)
		if err != nil {
			t.Fatalf("ParseDateRange: %v", err)
		}
		if got := EstimateSeconds(r); got != tt.want {
			t.Errorf("EstimateSeconds(%s..%s) = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[TaskStatus][]TaskStatus{
		TaskStatusPending:    {TaskStatusProcessing, TaskStatusFailed},
		TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed},
	}
	all := []TaskStatus{TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}

	if !TaskStatusCompleted.IsTerminal() || !TaskStatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
	if TaskStatusPending.IsTerminal() || TaskStatusProcessing.IsTerminal() {
		t.Error("pending and processing must not be terminal")
	}
}

func TestCheckInvariants(t *testing.T) {
	file := &ReportFile{Name: "a.csv", Path: "reports/u/t/a.csv", Size: 10}

	tests := []struct {
		name    string
		task    ReportTask
		wantErr bool
	}{
		{"pending", ReportTask{Status: TaskStatusPending}, false},
		{"processing", ReportTask{Status: TaskStatusProcessing, Progress: 50}, false},
		{"completed", ReportTask{Status: TaskStatusCompleted, Progress: 100, File: file}, false},
		{"failed", ReportTask{Status: TaskStatusFailed}, false},
		{"completed without file", ReportTask{Status: TaskStatusCompleted, Progress: 100}, true},
		{"failed with file", ReportTask{Status: TaskStatusFailed, File: file}, true},
		{"pending with progress", ReportTask{Status: TaskStatusPending, Progress: 10}, true},
		{"processing at 100", ReportTask{Status: TaskStatusProcessing, Progress: 100}, true},
		{"unknown status", ReportTask{Status: "cancelled"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.CheckInvariants()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckInvariants() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	task := ReportTask{CreatedAt: created, ExpiresAt: created.Add(TaskRetention)}

	if task.IsExpired(created.Add(6 * 24 * time.Hour)) {
		t.Error("task should not be expired after 6 days")
	}
	if !task.IsExpired(created.Add(8 * 24 * time.Hour)) {
		t.Error("task should be expired after 8 days")
	}
}

func TestExportFormatsFor(t *testing.T) {
	if got := ExportFormatsFor(ReportTypeDetectionData); len(got) != 2 {
		t.Errorf("detection_data formats = %v", got)
	}
	if got := ExportFormatsFor(ReportTypeRiskAnalysis); len(got) != 1 || got[0].Format != FormatXLSX {
		t.Errorf("risk_analysis formats = %v", got)
	}
	if got := ExportFormatsFor("sales"); len(got) != 0 {
		t.Errorf("unknown type formats = %v", got)
	}
}
