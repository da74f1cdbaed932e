package models

import "fmt"

// ReportType is the closed set of supported tabular projections
type ReportType string

// ReportType constants
const (
	ReportTypeDetectionData ReportType = "detection_data"
	ReportTypeUserStats     ReportType = "user_stats"
	ReportTypeDeviceUsage   ReportType = "device_usage"
	ReportTypeRiskAnalysis  ReportType = "risk_analysis"
)

// AllReportTypes lists the report types in catalog order
var AllReportTypes = []ReportType{
	ReportTypeDetectionData,
	ReportTypeUserStats,
	ReportTypeDeviceUsage,
	ReportTypeRiskAnalysis,
}

// ReportTypeInfo is the catalog entry for a report type
type ReportTypeInfo struct {
	Type        ReportType     `json:"type"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Formats     []ExportFormat `json:"formats"`
}

var reportTypeCatalog = map[ReportType]ReportTypeInfo{
	ReportTypeDetectionData: {
		Type:        ReportTypeDetectionData,
		Label:       "检测数据报表",
		Description: "指定时间段内的所有检测记录",
		Formats:     []ExportFormat{FormatXLSX, FormatCSV},
	},
	ReportTypeUserStats: {
		Type:        ReportTypeUserStats,
		Label:       "用户统计报表",
		Description: "用户注册、活跃度统计",
		Formats:     []ExportFormat{FormatXLSX},
	},
	ReportTypeDeviceUsage: {
		Type:        ReportTypeDeviceUsage,
		Label:       "设备使用报表",
		Description: "设备使用频率、在线状态统计",
		Formats:     []ExportFormat{FormatXLSX},
	},
	ReportTypeRiskAnalysis: {
		Type:        ReportTypeRiskAnalysis,
		Label:       "风险分析报表",
		Description: "各风险等级分布、趋势分析",
		Formats:     []ExportFormat{FormatXLSX},
	},
}

// ParseReportType validates s against the closed enumeration
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidReportType, s)
	}
	return t, nil
}

// Valid reports whether t is a known report type
func (t ReportType) Valid() bool {
	_, ok := reportTypeCatalog[t]
	return ok
}

// Label returns the display name, or the raw value for unknown types
func (t ReportType) Label() string {
	if info, ok := reportTypeCatalog[t]; ok {
		return info.Label
	}
	return string(t)
}

// Info returns the catalog entry for t
func (t ReportType) Info() (ReportTypeInfo, bool) {
	info, ok := reportTypeCatalog[t]
	return info, ok
}

// ReportTypeCatalog returns all catalog entries in display order
func ReportTypeCatalog() []ReportTypeInfo {
	out := make([]ReportTypeInfo, 0, len(AllReportTypes))
	for _, t := range AllReportTypes {
		out = append(out, reportTypeCatalog[t])
	}
	return out
}

// ExportFormat is the requested output format
type ExportFormat string

// ExportFormat constants
const (
	FormatXLSX ExportFormat = "xlsx"
	FormatCSV  ExportFormat = "csv"
)

// ExportFormatInfo describes a downloadable format
type ExportFormatInfo struct {
	Format    ExportFormat `json:"format"`
	Label     string       `json:"label"`
	Extension string       `json:"extension"`
	MimeType  string       `json:"mimeType"`
}

var exportFormats = map[ExportFormat]ExportFormatInfo{
	FormatXLSX: {Format: FormatXLSX, Label: "Excel", Extension: ".xlsx", MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	FormatCSV:  {Format: FormatCSV, Label: "CSV", Extension: ".csv", MimeType: "text/csv"},
}

// ParseExportFormat validates s; an empty value selects xlsx
func ParseExportFormat(s string) (ExportFormat, error) {
	if s == "" {
		return FormatXLSX, nil
	}
	f := ExportFormat(s)
	if _, ok := exportFormats[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return f, nil
}

// Info returns the format metadata
func (f ExportFormat) Info() ExportFormatInfo {
	return exportFormats[f]
}

// ExportFormatsFor lists the formats offered for a report type
func ExportFormatsFor(t ReportType) []ExportFormatInfo {
	info, ok := reportTypeCatalog[t]
	if !ok {
		return []ExportFormatInfo{}
	}
	out := make([]ExportFormatInfo, 0, len(info.Formats))
	for _, f := range info.Formats {
		out = append(out, exportFormats[f])
	}
	return out
}
