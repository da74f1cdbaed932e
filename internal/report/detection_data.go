package report

import (
	"context"
	"strconv"

	"github.com/heartsound/report-backend-go/internal/models"
)

func init() {
	RegisterGenerator(models.ReportTypeDetectionData, NewDetectionDataGenerator)
}

// DetectionDataGenerator lists every detection in the range, newest first
type DetectionDataGenerator struct {
	src  DataSource
	opts Options
}

// NewDetectionDataGenerator creates a detection data generator
func NewDetectionDataGenerator(src DataSource, opts Options) Generator {
	return &DetectionDataGenerator{src: src, opts: opts}
}

// Headers returns the column headers
func (g *DetectionDataGenerator) Headers() []string {
	return []string{"检测ID", "用户昵称", "设备ID", "结果", "置信度", "风险等级", "检测时间"}
}

// Generate projects one row per detection
func (g *DetectionDataGenerator) Generate(ctx context.Context, r models.DateRange) ([]Row, error) {
	from, to := r.Bounds(g.opts.Location)
	records, err := g.src.ListDetections(ctx, from, to)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{
			shortID(rec.ID),
			orPlaceholder(rec.UserNickname),
			orPlaceholder(rec.DeviceCode),
			rec.ResultLabel,
			strconv.FormatFloat(rec.Confidence, 'f', -1, 64) + "%",
			rec.RiskLevel.DisplayName(),
			formatDateTime(rec.CreatedAt, g.opts.Location),
		})
	}

	return rows, nil
}
