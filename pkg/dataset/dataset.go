// Package dataset holds tabular data as ordered, typed columns.
//
// A Table is column oriented: each column is wholly numeric or wholly
// textual. Missing values are NaN in numeric columns and "" in string
// columns.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/fogbank-io/runtrack/pkg/utils/slices"
)

type ColumnKind string

const (
	KindNumeric ColumnKind = "numeric"
	KindString  ColumnKind = "string"
)

type column struct {
	name    string
	kind    ColumnKind
	numbers []float64
	strings []string
}

func (c *column) rows() int {
	if c.kind == KindNumeric {
		return len(c.numbers)
	}
	return len(c.strings)
}

type Table struct {
	columns []*column
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) NumRows() int {
	if len(t.columns) == 0 {
		return 0
	}
	return t.columns[0].rows()
}

func (t *Table) NumCols() int {
	return len(t.columns)
}

func (t *Table) ColumnNames() []string {
	return slices.Map(t.columns, func(c *column) string { return c.name })
}

func (t *Table) find(name string) *column {
	for _, c := range t.columns {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (t *Table) HasColumn(name string) bool {
	return t.find(name) != nil
}

func (t *Table) Kind(name string) (ColumnKind, bool) {
	c := t.find(name)
	if c == nil {
		return "", false
	}
	return c.kind, true
}

// NumericColumn returns the values of a numeric column. Do not mutate.
func (t *Table) NumericColumn(name string) ([]float64, bool) {
	c := t.find(name)
	if c == nil || c.kind != KindNumeric {
		return nil, false
	}
	return c.numbers, true
}

// StringColumn returns the values of a string column. Do not mutate.
func (t *Table) StringColumn(name string) ([]string, bool) {
	c := t.find(name)
	if c == nil || c.kind != KindString {
		return nil, false
	}
	return c.strings, true
}

func (t *Table) checkAdd(name string, rows int) error {
	if t.find(name) != nil {
		return fmt.Errorf("column '%s' already exists", name)
	}
	if 0 < len(t.columns) && rows != t.NumRows() {
		return fmt.Errorf(
			"column '%s' has %d rows, table has %d", name, rows, t.NumRows(),
		)
	}
	return nil
}

func (t *Table) AddNumericColumn(name string, values []float64) error {
	if err := t.checkAdd(name, len(values)); err != nil {
		return err
	}
	t.columns = append(t.columns, &column{name: name, kind: KindNumeric, numbers: values})
	return nil
}

func (t *Table) AddStringColumn(name string, values []string) error {
	if err := t.checkAdd(name, len(values)); err != nil {
		return err
	}
	t.columns = append(t.columns, &column{name: name, kind: KindString, strings: values})
	return nil
}

// Clone deep-copies the table. Feature engineering mutates tables in
// place; clone first when the original must stay intact.
func (t *Table) Clone() *Table {
	clone := NewTable()
	for _, c := range t.columns {
		copied := &column{name: c.name, kind: c.kind}
		if c.kind == KindNumeric {
			copied.numbers = append([]float64{}, c.numbers...)
		} else {
			copied.strings = append([]string{}, c.strings...)
		}
		clone.columns = append(clone.columns, copied)
	}
	return clone
}

// DropColumn removes the named column. Returns false when absent.
func (t *Table) DropColumn(name string) bool {
	for i, c := range t.columns {
		if c.name == name {
			t.columns = append(t.columns[:i], t.columns[i+1:]...)
			return true
		}
	}
	return false
}

// FromCSV reads a table from CSV with a header row.
//
// A column whose every non-empty cell parses as a number is numeric;
// any other column is textual. Empty cells are missing values.
func FromCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}

	header := records[0]
	body := records[1:]

	table := NewTable()
	for colIndex, name := range header {
		cells := slices.Map(body, func(record []string) string { return record[colIndex] })

		numeric := true
		for _, cell := range cells {
			if cell == "" {
				continue
			}
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric = false
				break
			}
		}

		if numeric {
			values := slices.Map(cells, func(cell string) float64 {
				if cell == "" {
					return math.NaN()
				}
				v, _ := strconv.ParseFloat(cell, 64)
				return v
			})
			if err := table.AddNumericColumn(name, values); err != nil {
				return nil, err
			}
		} else {
			if err := table.AddStringColumn(name, cells); err != nil {
				return nil, err
			}
		}
	}
	return table, nil
}

// WriteCSV writes the table as CSV with a header row.
// Missing values are written as empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.ColumnNames()); err != nil {
		return err
	}

	rows := t.NumRows()
	for rowIndex := 0; rowIndex < rows; rowIndex++ {
		record := make([]string, 0, len(t.columns))
		for _, c := range t.columns {
			switch c.kind {
			case KindNumeric:
				v := c.numbers[rowIndex]
				if math.IsNaN(v) {
					record = append(record, "")
				} else {
					record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
				}
			case KindString:
				record = append(record, c.strings[rowIndex])
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// layouts tried when parsing date cells, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 03:04:05 PM",
	"01/02/2006",
}

func parseDate(cell string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ExpandDateFeatures replaces the named string column with numeric
// "year", "month" and "day" columns appended at the end of the table.
//
// Cells which parse as none of the known date layouts become missing
// values in all three columns. Returns false when the column does not
// exist (the table is then untouched).
func (t *Table) ExpandDateFeatures(name string) bool {
	cells, ok := t.StringColumn(name)
	if !ok {
		return false
	}

	rows := len(cells)
	years := make([]float64, rows)
	months := make([]float64, rows)
	days := make([]float64, rows)
	for i, cell := range cells {
		parsed, ok := parseDate(cell)
		if !ok {
			years[i] = math.NaN()
			months[i] = math.NaN()
			days[i] = math.NaN()
			continue
		}
		years[i] = float64(parsed.Year())
		months[i] = float64(parsed.Month())
		days[i] = float64(parsed.Day())
	}

	t.DropColumn(name)
	for _, derived := range []string{"year", "month", "day"} {
		t.DropColumn(derived) // overwrite when expanding twice
	}
	t.AddNumericColumn("year", years)
	t.AddNumericColumn("month", months)
	t.AddNumericColumn("day", days)
	return true
}

// HasYearMonth tells whether numeric "year" and "month" columns exist.
// Temporal summaries are only possible when they do.
func (t *Table) HasYearMonth() bool {
	_, hasYear := t.NumericColumn("year")
	_, hasMonth := t.NumericColumn("month")
	return hasYear && hasMonth
}
