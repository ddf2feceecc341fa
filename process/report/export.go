package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"formscan/models"
	"formscan/pkg/form"
)

const sheetName = "Forms"

// Format selects the table encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx"; empty means the format is taken from
// the output file extension.
func ParseFormat(s, path string) (Format, error) {
	if s == "" {
		if strings.EqualFold(filepath.Ext(path), ".xlsx") {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	}
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want csv or xlsx)", s)
}

// Table is a header plus rows of cell text.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ResultsTable lays out extraction results. With withSource the first column
// holds the image path.
func ResultsTable(results []*form.Result, withSource bool) Table {
	var t Table
	if len(results) == 0 {
		return t
	}
	t.Columns = append(t.Columns, results[0].Columns...)
	if withSource {
		t.Columns = append([]string{"File"}, t.Columns...)
	}
	for _, r := range results {
		row := r.Row()
		if withSource {
			row = append([]string{r.Source}, row...)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ExtractionsTable lays out stored extractions with file name and scan time.
func ExtractionsTable(exs []models.Extraction) Table {
	t := Table{Columns: []string{"File", "Scanned"}}
	if len(exs) > 0 {
		t.Columns = append(t.Columns, exs[0].Columns()...)
	}
	for _, e := range exs {
		row := []string{e.FileName, e.CreatedAt.UTC().Format("2006-01-02 15:04:05")}
		t.Rows = append(t.Rows, append(row, e.Row()...))
	}
	return t
}

// WriteCSV writes t with a header row. Cells are quoted as needed, so `3/4"`
// comes out as "3/4""".
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	return nil
}

// XLSX returns t as a single-sheet workbook.
func XLSX(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, err
	}

	for i, h := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellStr(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}
	if n := len(t.Columns); n > 0 {
		last, _ := excelize.ColumnNumberToName(n)
		_ = f.SetColWidth(sheetName, "A", last, 22)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes t as a workbook to w.
func WriteXLSX(w io.Writer, t Table) error {
	data, err := XLSX(t)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

// Save writes t to path in format f, replacing any existing file.
func Save(path string, f Format, t Table) error {
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatXLSX:
		err = WriteXLSX(&buf, t)
	default:
		err = WriteCSV(&buf, t)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
