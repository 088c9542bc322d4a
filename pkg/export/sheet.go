package export

import (
	"fmt"
	"strconv"
)

// Format identifies a class sheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Valid reports whether the format has an exporter.
func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatXLSX || f == FormatPDF
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Sheet is ordered tabular content. Cells keep their Go type so spreadsheet
// encoders can store numbers as numbers; text encoders use FormatCell.
type Sheet struct {
	Title   string
	Headers []string
	Rows    [][]interface{}
}

// Exporter encodes a sheet into a file body.
type Exporter interface {
	Render(sheet Sheet) ([]byte, error)
}

// FormatCell renders a cell value as text. Floats use two decimals, nil is blank.
func FormatCell(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', 2, 64)
	case *float64:
		if value == nil {
			return ""
		}
		return strconv.FormatFloat(*value, 'f', 2, 64)
	case int:
		return strconv.Itoa(value)
	case *int:
		if value == nil {
			return ""
		}
		return strconv.Itoa(*value)
	default:
		return fmt.Sprint(value)
	}
}

func validateSheet(sheet Sheet, format Format) error {
	if len(sheet.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	for i, row := range sheet.Rows {
		if len(row) > len(sheet.Headers) {
			return fmt.Errorf("%s row %d has %d cells for %d headers", format, i+1, len(row), len(sheet.Headers))
		}
	}
	return nil
}
