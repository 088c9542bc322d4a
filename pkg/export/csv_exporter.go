package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// utf8BOM lets spreadsheet applications detect accented subject names.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVExporter renders sheets into CSV bytes.
type CSVExporter struct {
	Comma rune
	BOM   bool
}

// NewCSVExporter builds a CSV exporter using the given separator (',' when zero).
func NewCSVExporter(comma rune) *CSVExporter {
	if comma == 0 {
		comma = ','
	}
	return &CSVExporter{Comma: comma, BOM: true}
}

// Render produces CSV encoded bytes for the sheet. The title is not written.
func (e *CSVExporter) Render(sheet Sheet) ([]byte, error) {
	if err := validateSheet(sheet, FormatCSV); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	if e.BOM {
		buf.Write(utf8BOM)
	}
	writer := csv.NewWriter(buf)
	if e.Comma != 0 {
		writer.Comma = e.Comma
	}
	if err := writer.Write(sheet.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range sheet.Rows {
		record := make([]string, len(sheet.Headers))
		for i, cell := range row {
			record[i] = FormatCell(cell)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
