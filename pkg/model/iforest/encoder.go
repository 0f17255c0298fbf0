package iforest

import (
	"fmt"
	"math"
	"sort"

	"github.com/fogbank-io/runtrack/pkg/dataset"
	"github.com/fogbank-io/runtrack/pkg/utils/slices"
)

// NumericFeature standardizes one numeric column.
// Missing values are imputed with the median seen at fit time.
type NumericFeature struct {
	Name   string  `json:"name"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// CategoricalFeature one-hot encodes one string column over the
// categories seen at fit time. Unseen categories encode to all zeros.
type CategoricalFeature struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// Encoder maps a dataset.Table to the numeric feature matrix the
// forest is built over. The encoding is fixed at fit time so that
// scoring encodes exactly like training did.
type Encoder struct {
	Numeric     []NumericFeature     `json:"numeric"`
	Categorical []CategoricalFeature `json:"categorical"`
}

func median(values []float64) float64 {
	observed := slices.Filter(values, func(v float64) bool { return !math.IsNaN(v) })
	if len(observed) == 0 {
		return 0
	}
	sort.Float64s(observed)
	mid := len(observed) / 2
	if len(observed)%2 == 1 {
		return observed[mid]
	}
	return (observed[mid-1] + observed[mid]) / 2
}

func meanAndStd(values []float64, impute float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}

	sum := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			v = impute
		}
		sum += v
	}
	mean := sum / float64(len(values))

	sqsum := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			v = impute
		}
		sqsum += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sqsum / float64(len(values)))
	if std == 0 {
		std = 1 // constant column; avoid dividing by zero
	}
	return mean, std
}

// NewEncoder learns the encoding from a table: medians and moments of
// numeric columns, observed categories of string columns.
func NewEncoder(table *dataset.Table) *Encoder {
	encoder := &Encoder{
		Numeric:     []NumericFeature{},
		Categorical: []CategoricalFeature{},
	}

	for _, name := range table.ColumnNames() {
		kind, _ := table.Kind(name)
		switch kind {
		case dataset.KindNumeric:
			values, _ := table.NumericColumn(name)
			med := median(values)
			mean, std := meanAndStd(values, med)
			encoder.Numeric = append(encoder.Numeric, NumericFeature{
				Name: name, Median: med, Mean: mean, Std: std,
			})
		case dataset.KindString:
			cells, _ := table.StringColumn(name)
			seen := map[string]bool{}
			categories := []string{}
			for _, cell := range cells {
				if cell == "" || seen[cell] {
					continue
				}
				seen[cell] = true
				categories = append(categories, cell)
			}
			sort.Strings(categories)
			encoder.Categorical = append(encoder.Categorical, CategoricalFeature{
				Name: name, Categories: categories,
			})
		}
	}

	return encoder
}

// Width is the number of encoded features per row.
func (e *Encoder) Width() int {
	width := len(e.Numeric)
	for _, cat := range e.Categorical {
		width += len(cat.Categories)
	}
	return width
}

// Transform encodes a table into a row-major feature matrix.
//
// The table must carry every column the encoder was fit on, with the
// same kind. Extra columns are ignored.
func (e *Encoder) Transform(table *dataset.Table) ([][]float64, error) {
	rows := table.NumRows()
	matrix := make([][]float64, rows)
	for i := range matrix {
		matrix[i] = make([]float64, 0, e.Width())
	}

	for _, feature := range e.Numeric {
		values, ok := table.NumericColumn(feature.Name)
		if !ok {
			return nil, fmt.Errorf("numeric column '%s' is not in the dataset", feature.Name)
		}
		for i, v := range values {
			if math.IsNaN(v) {
				v = feature.Median
			}
			matrix[i] = append(matrix[i], (v-feature.Mean)/feature.Std)
		}
	}

	for _, feature := range e.Categorical {
		cells, ok := table.StringColumn(feature.Name)
		if !ok {
			return nil, fmt.Errorf("string column '%s' is not in the dataset", feature.Name)
		}
		index := map[string]int{}
		for i, category := range feature.Categories {
			index[category] = i
		}
		for i, cell := range cells {
			onehot := make([]float64, len(feature.Categories))
			if at, ok := index[cell]; ok {
				onehot[at] = 1
			}
			matrix[i] = append(matrix[i], onehot...)
		}
	}

	return matrix, nil
}
