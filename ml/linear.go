package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// LinearModel is a fitted linear regression exported as JSON.
type LinearModel struct {
	names        []string
	coefficients []float64
	intercept    float64
}

type linearArtifact struct {
	ModelType    string    `json:"model_type"`
	FeatureNames []string  `json:"feature_names"`
	NFeatures    int       `json:"n_features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// NewLinearModel builds a model from its parts and checks the feature layout.
func NewLinearModel(names []string, coefficients []float64, intercept float64) (*LinearModel, error) {
	if len(names) != len(coefficients) {
		return nil, fmt.Errorf("feature names (%d) and coefficients (%d) differ in length", len(names), len(coefficients))
	}
	if err := checkLayout(names); err != nil {
		return nil, err
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d (%s) is not finite", i, names[i])
		}
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, errors.New("intercept is not finite")
	}
	return &LinearModel{
		names:        append([]string(nil), names...),
		coefficients: append([]float64(nil), coefficients...),
		intercept:    intercept,
	}, nil
}

// FeatureNames returns a copy so callers cannot reorder the model's columns.
func (m *LinearModel) FeatureNames() []string {
	return append([]string(nil), m.names...)
}

func (m *LinearModel) FeatureCount() int {
	return len(m.names)
}

func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.coefficients) {
		return 0, fmt.Errorf("feature count mismatch: got %d, model expects %d", len(features), len(m.coefficients))
	}
	sum := m.intercept
	for i, x := range features {
		sum += m.coefficients[i] * x
	}
	return sum, nil
}

func (m *LinearModel) Save(path string) error {
	payload, err := json.MarshalIndent(linearArtifact{
		ModelType:    LinearRegressionType,
		FeatureNames: m.names,
		NFeatures:    len(m.names),
		Coefficients: m.coefficients,
		Intercept:    m.intercept,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func loadLinearModel(path string) (*LinearModel, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact linearArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if artifact.ModelType != "" && artifact.ModelType != LinearRegressionType {
		return nil, fmt.Errorf("artifact holds %q, not %s", artifact.ModelType, LinearRegressionType)
	}
	if artifact.NFeatures != len(artifact.FeatureNames) {
		return nil, fmt.Errorf("n_features is %d but %d feature names are listed", artifact.NFeatures, len(artifact.FeatureNames))
	}
	return NewLinearModel(artifact.FeatureNames, artifact.Coefficients, artifact.Intercept)
}

// checkLayout enforces the column order the encoder writes into:
// age, gender, bmi, children, smoker, then one or more region_* columns.
func checkLayout(names []string) error {
	if len(names) <= len(fixedColumns) {
		return fmt.Errorf("model has %d features, expected %d fixed columns plus region columns", len(names), len(fixedColumns))
	}
	for i, want := range fixedColumns {
		if names[i] != want {
			return fmt.Errorf("feature %d is %q, expected %q", i, names[i], want)
		}
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names[len(fixedColumns):] {
		if !strings.HasPrefix(name, RegionColumnPrefix) || len(name) == len(RegionColumnPrefix) {
			return fmt.Errorf("feature %q is not a region column", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = true
	}
	return nil
}
