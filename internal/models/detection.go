package models

import "time"

// RiskLevel is the risk classification produced by a detection
type RiskLevel string

// RiskLevel constants
const (
	RiskSafe    RiskLevel = "safe"
	RiskWarning RiskLevel = "warning"
	RiskDanger  RiskLevel = "danger"
)

// DisplayName translates the risk level for report output
func (r RiskLevel) DisplayName() string {
	switch r {
	case RiskSafe:
		return "安全"
	case RiskWarning:
		return "中等风险"
	case RiskDanger:
		return "高风险"
	}
	return string(r)
}

// DetectionRecord is a detection joined with its user and device labels
type DetectionRecord struct {
	ID           string
	UserNickname string // empty when the user is unknown
	DeviceCode   string // empty when the device is unknown
	ResultLabel  string
	Confidence   float64
	RiskLevel    RiskLevel
	CreatedAt    time.Time
}

// UserProfile is a registered patient account
type UserProfile struct {
	ID        string
	Nickname  string
	Phone     string
	CreatedAt time.Time
}

// UserDetectionSummary aggregates a user's all-time detections
type UserDetectionSummary struct {
	Count         int
	LastDetection *time.Time
}

// Device is a registered detection device
type Device struct {
	ID              string
	DeviceCode      string
	FirmwareVersion string
	LastSeenAt      *time.Time
	CreatedAt       time.Time
}

// DeviceUsageSummary aggregates a device's usage in a range
type DeviceUsageSummary struct {
	DetectionCount int
	AssignedUser   string // nickname, empty when unassigned
}

// RiskSample is the projection used for daily risk buckets
type RiskSample struct {
	RiskLevel RiskLevel
	CreatedAt time.Time
}
