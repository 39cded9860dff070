package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Dataset is an in-memory tabular dataset. Cells are kept as strings;
// numeric coercion happens on demand so the statistical engine can decide
// what counts as numeric.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Summary is the derived metadata the gating heuristics and prompts use.
type Summary struct {
	Name           string   `json:"name"`
	RowCount       int      `json:"row_count"`
	ColumnCount    int      `json:"column_count"`
	NumericColumns []string `json:"numeric_columns"`
	MissingRatio   float64  `json:"missing_ratio"`
}

// Load reads a tabular file, dispatching on extension. Only csv and xlsx
// produce datasets; other validated formats have no tabular content.
func Load(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("no tabular reader for %s", filepath.Ext(path))
	}
}

// Tabular reports whether Load can handle the extension.
func Tabular(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

func loadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s is empty", filepath.Base(path))
	}
	return &Dataset{
		Name:    filepath.Base(path),
		Columns: records[0],
		Rows:    records[1:],
	}, nil
}

func loadXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("xlsx %s is empty", filepath.Base(path))
	}
	return &Dataset{
		Name:    filepath.Base(path),
		Columns: rows[0],
		Rows:    rows[1:],
	}, nil
}

// Column returns the raw values of a column by name.
func (d *Dataset) Column(name string) ([]string, bool) {
	for i, c := range d.Columns {
		if c != name {
			continue
		}
		out := make([]string, 0, len(d.Rows))
		for _, row := range d.Rows {
			if i < len(row) {
				out = append(out, row[i])
			} else {
				out = append(out, "")
			}
		}
		return out, true
	}
	return nil, false
}

// ParseCell coerces one cell to float64. Thousands separators are
// stripped; an empty or non-numeric cell reports false.
func ParseCell(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NumericColumn coerces a column to float64, skipping empty cells. The
// second return value is false when any non-empty cell is not numeric.
func (d *Dataset) NumericColumn(name string) ([]float64, bool) {
	raw, ok := d.Column(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(raw))
	for _, cell := range raw {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		v, ok := ParseCell(cell)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// NumericColumns returns the names of all fully numeric columns, in
// dataset order.
func (d *Dataset) NumericColumns() []string {
	var out []string
	for _, c := range d.Columns {
		if vals, ok := d.NumericColumn(c); ok && len(vals) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Summarize computes the derived metadata for gating and prompting.
func (d *Dataset) Summarize() Summary {
	total := 0
	missing := 0
	for _, row := range d.Rows {
		for i := range d.Columns {
			total++
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				missing++
			}
		}
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(missing) / float64(total)
	}
	return Summary{
		Name:           d.Name,
		RowCount:       len(d.Rows),
		ColumnCount:    len(d.Columns),
		NumericColumns: d.NumericColumns(),
		MissingRatio:   ratio,
	}
}
