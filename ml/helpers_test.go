package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var testFeatureNames = []string{
	"age", "gender", "bmi", "children", "smoker",
	"region_northeast", "region_northwest", "region_southeast", "region_southwest",
}

func unitModel(t *testing.T) *LinearModel {
	t.Helper()
	coef := make([]float64, len(testFeatureNames))
	for i := range coef {
		coef[i] = 1
	}
	model, err := NewLinearModel(testFeatureNames, coef, 0)
	require.NoError(t, err)
	return model
}

func testEncoding(t *testing.T) *CategoryEncoding {
	t.Helper()
	enc, err := NewCategoryEncoding(
		map[string]float64{"male": 1, "female": 0},
		map[string]float64{"yes": 1, "no": 0},
	)
	require.NoError(t, err)
	return enc
}

func testAssets(t *testing.T) *Assets {
	t.Helper()
	assets, err := NewAssets(unitModel(t), testEncoding(t))
	require.NoError(t, err)
	return assets
}

func validFields() map[string]string {
	return map[string]string{
		"age":      "35",
		"gender":   "female",
		"bmi":      "27.3",
		"children": "2",
		"smoker":   "no",
		"region":   "northeast",
	}
}

// writeAssetFiles writes a model and encoding pair into dir.
func writeAssetFiles(t *testing.T, dir string, model *LinearModel) (string, string) {
	t.Helper()
	modelPath := filepath.Join(dir, "model.json")
	encodingPath := filepath.Join(dir, "label_encode.json")
	require.NoError(t, model.Save(modelPath))
	require.NoError(t, os.WriteFile(encodingPath,
		[]byte(`{"gender":{"Male":1,"female":0},"smoker":{"yes":1,"no":0}}`), 0o600))
	return modelPath, encodingPath
}
