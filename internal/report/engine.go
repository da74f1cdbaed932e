// Package report turns a report type and date range into a table of rows
// and serializes that table into a downloadable file.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/heartsound/report-backend-go/internal/models"
)

// Row is one output line; cells are strings or integers
type Row []interface{}

// Table is the generator output handed to the encoder
type Table struct {
	Headers []string
	Rows    []Row
}

// DataSource is the read side of the detection store
type DataSource interface {
	ListDetections(ctx context.Context, from, to time.Time) ([]models.DetectionRecord, error)
	ListUsersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.UserProfile, error)
	UserDetectionSummary(ctx context.Context, userID string) (models.UserDetectionSummary, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	DeviceUsageSummary(ctx context.Context, deviceID string, from, to time.Time) (models.DeviceUsageSummary, error)
	ListRiskSamples(ctx context.Context, from, to time.Time) ([]models.RiskSample, error)
}

// Options tune generation
type Options struct {
	Location    *time.Location // date bucketing and display timezone
	Concurrency int            // max in-flight per-row aggregate queries
}

// Generator produces the rows of one report type in its fixed column order
type Generator interface {
	Headers() []string
	Generate(ctx context.Context, r models.DateRange) ([]Row, error)
}

// GeneratorFactory creates a generator bound to a data source
type GeneratorFactory func(src DataSource, opts Options) Generator

// generatorRegistry maps report types to generator factories
var generatorRegistry = make(map[models.ReportType]GeneratorFactory)

// RegisterGenerator registers a generator factory for a report type
func RegisterGenerator(t models.ReportType, factory GeneratorFactory) {
	generatorRegistry[t] = factory
}

// Engine dispatches generation to the registered generator of a type
type Engine struct {
	src  DataSource
	opts Options
}

// NewEngine creates an engine over src
func NewEngine(src DataSource, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Engine{src: src, opts: opts}
}

// Headers returns the column headers of a report type
func (e *Engine) Headers(t models.ReportType) ([]string, error) {
	g, err := e.generator(t)
	if err != nil {
		return nil, err
	}
	return g.Headers(), nil
}

// Generate builds the table for t over r. Unknown types fail before any
// store access.
func (e *Engine) Generate(ctx context.Context, t models.ReportType, r models.DateRange) (Table, error) {
	g, err := e.generator(t)
	if err != nil {
		return Table{}, err
	}

	rows, err := g.Generate(ctx, r)
	if err != nil {
		return Table{}, &models.GenerationError{Err: err}
	}
	if rows == nil {
		rows = []Row{}
	}

	return Table{Headers: g.Headers(), Rows: rows}, nil
}

func (e *Engine) generator(t models.ReportType) (Generator, error) {
	factory, ok := generatorRegistry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownReportType, t)
	}
	return factory(e.src, e.opts), nil
}

const placeholder = "-"

func formatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04")
}

func formatOptionalDateTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return placeholder
	}
	return formatDateTime(*t, loc)
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
