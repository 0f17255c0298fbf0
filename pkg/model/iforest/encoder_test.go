package iforest_test

import (
	"math"
	"testing"

	"github.com/fogbank-io/runtrack/pkg/dataset"
	"github.com/fogbank-io/runtrack/pkg/model/iforest"
	"github.com/fogbank-io/runtrack/pkg/utils/try"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEncoder(t *testing.T) {
	t.Run("numeric columns are median-imputed and standardized", func(t *testing.T) {
		table := dataset.NewTable()
		if err := table.AddNumericColumn("injuries", []float64{1, 3, math.NaN(), 5}); err != nil {
			t.Fatal(err)
		}

		testee := iforest.NewEncoder(table)
		matrix := try.To(testee.Transform(table)).OrFatal(t)

		// median of {1,3,5} = 3; imputed column {1,3,3,5}: mean 3, std 2/sqrt(2).
		std := math.Sqrt((4.0 + 0 + 0 + 4.0) / 4.0)
		for i, expected := range []float64{(1.0 - 3) / std, 0, 0, (5.0 - 3) / std} {
			if !almost(matrix[i][0], expected) {
				t.Errorf("row %d: expected %f, got %f", i, expected, matrix[i][0])
			}
		}
	})

	t.Run("string columns are one-hot encoded, unseen categories to zeros", func(t *testing.T) {
		fitted := dataset.NewTable()
		if err := fitted.AddStringColumn("borough", []string{"BROOKLYN", "QUEENS", "BROOKLYN"}); err != nil {
			t.Fatal(err)
		}
		testee := iforest.NewEncoder(fitted)

		if testee.Width() != 2 {
			t.Fatalf("expected 2 one-hot features, got %d", testee.Width())
		}

		scored := dataset.NewTable()
		if err := scored.AddStringColumn("borough", []string{"QUEENS", "BRONX", ""}); err != nil {
			t.Fatal(err)
		}
		matrix := try.To(testee.Transform(scored)).OrFatal(t)

		// categories are sorted: [BROOKLYN, QUEENS].
		expected := [][]float64{{0, 1}, {0, 0}, {0, 0}}
		for i, row := range expected {
			for j, v := range row {
				if matrix[i][j] != v {
					t.Errorf("row %d: expected %v, got %v", i, row, matrix[i])
					break
				}
			}
		}
	})

	t.Run("a constant numeric column encodes to zeros instead of dividing by zero", func(t *testing.T) {
		table := dataset.NewTable()
		if err := table.AddNumericColumn("flat", []float64{7, 7, 7}); err != nil {
			t.Fatal(err)
		}

		testee := iforest.NewEncoder(table)
		matrix := try.To(testee.Transform(table)).OrFatal(t)
		for i, row := range matrix {
			if row[0] != 0 {
				t.Errorf("row %d: expected 0, got %f", i, row[0])
			}
		}
	})

	t.Run("transforming a table missing a fitted column fails", func(t *testing.T) {
		fitted := dataset.NewTable()
		if err := fitted.AddNumericColumn("injuries", []float64{1, 2}); err != nil {
			t.Fatal(err)
		}
		testee := iforest.NewEncoder(fitted)

		other := dataset.NewTable()
		if err := other.AddNumericColumn("deaths", []float64{0, 0}); err != nil {
			t.Fatal(err)
		}
		if _, err := testee.Transform(other); err == nil {
			t.Error("missing column should be an error")
		}
	})
}
