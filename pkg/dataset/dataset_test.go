package dataset_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/fogbank-io/runtrack/pkg/dataset"
	"github.com/fogbank-io/runtrack/pkg/utils/cmp"
	"github.com/fogbank-io/runtrack/pkg/utils/try"
)

func floatEq(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func TestFromCSV(t *testing.T) {
	t.Run("columns are typed by their content and keep file order", func(t *testing.T) {
		csv := strings.Join([]string{
			"crash_date,borough,injuries,latitude",
			"2024-01-15,BROOKLYN,2,40.678",
			"2024-02-03,QUEENS,0,40.728",
			"2024-02-28,,1,",
		}, "\n")

		table := try.To(dataset.FromCSV(strings.NewReader(csv))).OrFatal(t)

		if table.NumRows() != 3 {
			t.Fatalf("unexpected row count: %d", table.NumRows())
		}
		if !cmp.SliceEq(table.ColumnNames(), []string{"crash_date", "borough", "injuries", "latitude"}) {
			t.Errorf("unexpected columns: %v", table.ColumnNames())
		}

		if kind, _ := table.Kind("borough"); kind != dataset.KindString {
			t.Errorf("borough should be textual: %s", kind)
		}
		if kind, _ := table.Kind("injuries"); kind != dataset.KindNumeric {
			t.Errorf("injuries should be numeric: %s", kind)
		}

		injuries, ok := table.NumericColumn("injuries")
		if !ok || !cmp.SliceEqWith(injuries, []float64{2, 0, 1}, floatEq) {
			t.Errorf("injuries values are broken: %v", injuries)
		}

		// empty cells: missing.
		latitude, _ := table.NumericColumn("latitude")
		if !cmp.SliceEqWith(latitude, []float64{40.678, 40.728, math.NaN()}, floatEq) {
			t.Errorf("latitude values are broken: %v", latitude)
		}
		borough, _ := table.StringColumn("borough")
		if !cmp.SliceEq(borough, []string{"BROOKLYN", "QUEENS", ""}) {
			t.Errorf("borough values are broken: %v", borough)
		}
	})

	t.Run("a csv without a header row is rejected", func(t *testing.T) {
		if _, err := dataset.FromCSV(strings.NewReader("")); err == nil {
			t.Error("empty input should be rejected")
		}
	})
}

func TestWriteCSV(t *testing.T) {
	t.Run("a written table reads back identically", func(t *testing.T) {
		table := dataset.NewTable()
		if err := table.AddStringColumn("borough", []string{"BROOKLYN", ""}); err != nil {
			t.Fatal(err)
		}
		if err := table.AddNumericColumn("score", []float64{-0.125, math.NaN()}); err != nil {
			t.Fatal(err)
		}

		buf := new(bytes.Buffer)
		if err := table.WriteCSV(buf); err != nil {
			t.Fatal(err)
		}

		reread := try.To(dataset.FromCSV(buf)).OrFatal(t)
		if !cmp.SliceEq(reread.ColumnNames(), []string{"borough", "score"}) {
			t.Errorf("unexpected columns: %v", reread.ColumnNames())
		}
		score, _ := reread.NumericColumn("score")
		if !cmp.SliceEqWith(score, []float64{-0.125, math.NaN()}, floatEq) {
			t.Errorf("score values are broken: %v", score)
		}
	})
}

func TestAddColumn(t *testing.T) {
	t.Run("a column with mismatched length is rejected", func(t *testing.T) {
		table := dataset.NewTable()
		if err := table.AddNumericColumn("a", []float64{1, 2, 3}); err != nil {
			t.Fatal(err)
		}
		if err := table.AddNumericColumn("b", []float64{1}); err == nil {
			t.Error("mismatched length should be rejected")
		}
	})

	t.Run("a duplicated column name is rejected", func(t *testing.T) {
		table := dataset.NewTable()
		if err := table.AddNumericColumn("a", []float64{1}); err != nil {
			t.Fatal(err)
		}
		if err := table.AddStringColumn("a", []string{"x"}); err == nil {
			t.Error("duplicated name should be rejected")
		}
	})
}

func TestExpandDateFeatures(t *testing.T) {
	t.Run("the date column becomes numeric year, month and day", func(t *testing.T) {
		table := dataset.NewTable()
		if err := table.AddStringColumn("crash_date", []string{
			"2024-01-15", "2023-11-02 08:30:00", "not a date",
		}); err != nil {
			t.Fatal(err)
		}
		if err := table.AddNumericColumn("injuries", []float64{2, 0, 1}); err != nil {
			t.Fatal(err)
		}

		if !table.ExpandDateFeatures("crash_date") {
			t.Fatal("the column exists; expansion should happen")
		}

		if table.HasColumn("crash_date") {
			t.Error("the raw date column should be dropped")
		}
		if !cmp.SliceEq(table.ColumnNames(), []string{"injuries", "year", "month", "day"}) {
			t.Errorf("unexpected columns: %v", table.ColumnNames())
		}

		year, _ := table.NumericColumn("year")
		if !cmp.SliceEqWith(year, []float64{2024, 2023, math.NaN()}, floatEq) {
			t.Errorf("year values are broken: %v", year)
		}
		month, _ := table.NumericColumn("month")
		if !cmp.SliceEqWith(month, []float64{1, 11, math.NaN()}, floatEq) {
			t.Errorf("month values are broken: %v", month)
		}
		day, _ := table.NumericColumn("day")
		if !cmp.SliceEqWith(day, []float64{15, 2, math.NaN()}, floatEq) {
			t.Errorf("day values are broken: %v", day)
		}

		if !table.HasYearMonth() {
			t.Error("year and month should be available for temporal summaries")
		}
	})

	t.Run("expanding an absent column is a no-op", func(t *testing.T) {
		table := dataset.NewTable()
		if err := table.AddNumericColumn("injuries", []float64{1}); err != nil {
			t.Fatal(err)
		}

		if table.ExpandDateFeatures("crash_date") {
			t.Error("expansion should report the column as absent")
		}
		if !cmp.SliceEq(table.ColumnNames(), []string{"injuries"}) {
			t.Errorf("the table should be untouched: %v", table.ColumnNames())
		}
	})
}
