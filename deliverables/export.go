package deliverables

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoRows is returned by the exporters when there is nothing to export.
var ErrNoRows = errors.New("no deliverable rows")

const (
	CSVFilename  = "deliverables.csv"
	XLSXFilename = "deliverables.xlsx"
	sheetName    = "Deliverables"
)

// SerializeCSV renders the header and one line per row. Every cell is
// quoted, inner quotes are doubled and newlines become the two characters
// `\n`, so each row stays on one line. No rows renders nothing.
func SerializeCSV(rows []Row) []byte {
	if len(rows) == 0 {
		return nil
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(Fields, ","))
	for _, r := range rows {
		values := r.Values()
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = escapeCell(v)
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	return []byte(strings.Join(lines, "\n"))
}

func escapeCell(v string) string {
	v = strings.ReplaceAll(v, `"`, `""`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return `"` + v + `"`
}

// WriteCSV writes SerializeCSV(rows) to w. It returns ErrNoRows without
// writing anything when rows is empty, so callers can skip the download.
func WriteCSV(w io.Writer, rows []Row) error {
	data := SerializeCSV(rows)
	if data == nil {
		return ErrNoRows
	}
	_, err := w.Write(data)
	return err
}

// BuildWorkbook renders the rows as a single-sheet XLSX workbook.
func BuildWorkbook(rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range Fields {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheetName, "A1", "H1", style)
	}

	for r, row := range rows {
		for c, v := range row.Values() {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 22) // platform, asset type
	_ = f.SetColWidth(sheetName, "C", "C", 40) // link
	_ = f.SetColWidth(sheetName, "D", "E", 60) // caption, cta
	_ = f.SetColWidth(sheetName, "F", "H", 14)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
