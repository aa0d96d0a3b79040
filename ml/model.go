package ml

import "context"

// RegressionModel is a trained model that maps one feature vector to one value.
type RegressionModel interface {
	FeatureNames() []string
	FeatureCount() int
	Predict(features []float64) (float64, error)
}

// Predictor is what the HTTP layer and the CLI depend on.
type Predictor interface {
	Predict(ctx context.Context, fields map[string]string) (float64, error)
}

// Column names the encoder writes by position. Anything after them must be
// a region one-hot column.
const (
	ColumnAge      = "age"
	ColumnGender   = "gender"
	ColumnBMI      = "bmi"
	ColumnChildren = "children"
	ColumnSmoker   = "smoker"

	RegionColumnPrefix = "region_"
)

var fixedColumns = []string{ColumnAge, ColumnGender, ColumnBMI, ColumnChildren, ColumnSmoker}
