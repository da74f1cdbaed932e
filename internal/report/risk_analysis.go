package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/heartsound/report-backend-go/internal/models"
)

func init() {
	RegisterGenerator(models.ReportTypeRiskAnalysis, NewRiskAnalysisGenerator)
}

// RiskAnalysisGenerator aggregates detections into daily risk buckets
type RiskAnalysisGenerator struct {
	src  DataSource
	opts Options
}

// NewRiskAnalysisGenerator creates a risk analysis generator
func NewRiskAnalysisGenerator(src DataSource, opts Options) Generator {
	return &RiskAnalysisGenerator{src: src, opts: opts}
}

// Headers returns the column headers
func (g *RiskAnalysisGenerator) Headers() []string {
	return []string{"日期", "总检测数", "安全", "中等风险", "高风险", "安全占比"}
}

type riskBucket struct {
	total, safe, warning, danger int
}

// Generate emits one row per day that has detections, by date ascending
func (g *RiskAnalysisGenerator) Generate(ctx context.Context, r models.DateRange) ([]Row, error) {
	from, to := r.Bounds(g.opts.Location)
	samples, err := g.src.ListRiskSamples(ctx, from, to)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]*riskBucket)
	for _, s := range samples {
		day := s.CreatedAt.In(g.opts.Location).Format(models.DateLayout)
		b, ok := buckets[day]
		if !ok {
			b = &riskBucket{}
			buckets[day] = b
		}
		b.total++
		switch s.RiskLevel {
		case models.RiskSafe:
			b.safe++
		case models.RiskWarning:
			b.warning++
		case models.RiskDanger:
			b.danger++
		}
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	rows := make([]Row, 0, len(days))
	for _, day := range days {
		b := buckets[day]
		rows = append(rows, Row{day, b.total, b.safe, b.warning, b.danger, safeRatio(b)})
	}

	return rows, nil
}

func safeRatio(b *riskBucket) string {
	if b.total == 0 {
		return placeholder
	}
	return fmt.Sprintf("%.1f%%", float64(b.safe)/float64(b.total)*100)
}
