package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/heartsound/report-backend-go/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodedFile is a serialized report ready for upload
type EncodedFile struct {
	Content     []byte
	ContentType string
	FileName    string
}

// Encode serializes the table. Every cell is quoted with inner quotes
// doubled and rows are joined by "\n". The xlsx format is the same CSV body
// prefixed with a UTF-8 BOM so spreadsheet tools detect the encoding; the
// .xlsx extension is kept for compatibility with existing clients.
func Encode(t models.ReportType, r models.DateRange, format models.ExportFormat, table Table) (EncodedFile, error) {
	info := format.Info()
	if info.Format == "" {
		return EncodedFile{}, &models.EncodingError{Err: fmt.Errorf("%w: %q", models.ErrInvalidFormat, format)}
	}

	var buf bytes.Buffer
	if format == models.FormatXLSX {
		buf.Write(utf8BOM)
	}

	writeRecord(&buf, table.Headers)
	for i, row := range table.Rows {
		if len(row) != len(table.Headers) {
			return EncodedFile{}, &models.EncodingError{
				Err: fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(table.Headers)),
			}
		}
		buf.WriteByte('\n')
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = cellString(cell)
		}
		writeRecord(&buf, cells)
	}

	return EncodedFile{
		Content:     buf.Bytes(),
		ContentType: info.MimeType,
		FileName:    FileName(t, r, format),
	}, nil
}

// FileName builds "{label}_{YYYYMMDD}_{YYYYMMDD}.{ext}"
func FileName(t models.ReportType, r models.DateRange, format models.ExportFormat) string {
	return fmt.Sprintf("%s_%s_%s%s",
		t.Label(),
		r.Start.Format("20060102"),
		r.End.Format("20060102"),
		format.Info().Extension,
	)
}

func writeRecord(buf *bytes.Buffer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		buf.WriteByte('"')
	}
}

func cellString(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case fmt.Stringer:
		return c.String()
	default:
		return fmt.Sprint(c)
	}
}
