package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheetName = "Resultats"

// XLSXExporter renders sheets into an Excel workbook with a bold, frozen header row.
type XLSXExporter struct {
	SheetName string
}

// NewXLSXExporter builds an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{SheetName: defaultSheetName}
}

// Render writes the sheet to an in-memory workbook and returns its bytes.
func (e *XLSXExporter) Render(sheet Sheet) ([]byte, error) {
	if err := validateSheet(sheet, FormatXLSX); err != nil {
		return nil, err
	}
	name := e.SheetName
	if name == "" {
		name = defaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	firstRow := 1
	if sheet.Title != "" {
		if err := f.SetCellValue(name, "A1", sheet.Title); err != nil {
			return nil, fmt.Errorf("write title: %w", err)
		}
		firstRow = 3
	}

	for i, header := range sheet.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, firstRow)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(name, cell, header); err != nil {
			return nil, fmt.Errorf("write header %q: %w", header, err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(sheet.Headers), firstRow)
	firstHeader, _ := excelize.CoordinatesToCellName(1, firstRow)
	if err := f.SetCellStyle(name, firstHeader, lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for r, row := range sheet.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, firstRow+r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(name, cell, cellValue(value)); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      firstRow,
		TopLeftCell: fmt.Sprintf("A%d", firstRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue dereferences optional numbers so excelize stores them as numbers or blanks.
func cellValue(v interface{}) interface{} {
	switch value := v.(type) {
	case *float64:
		if value == nil {
			return nil
		}
		return *value
	case *int:
		if value == nil {
			return nil
		}
		return *value
	default:
		return v
	}
}
