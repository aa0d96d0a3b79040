package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

// CategoryEncoding maps categorical values to the numeric codes the model
// was trained with.
type CategoryEncoding struct {
	Gender map[string]float64 `json:"gender"`
	Smoker map[string]float64 `json:"smoker"`
}

var (
	genderValues = []string{"male", "female"}
	smokerValues = []string{"yes", "no"}
)

func LoadCategoryEncoding(path string) (*CategoryEncoding, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw CategoryEncoding
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode category encoding: %w", err)
	}
	return NewCategoryEncoding(raw.Gender, raw.Smoker)
}

// NewCategoryEncoding folds the keys to lower case and requires a code for
// every accepted gender and smoker value.
func NewCategoryEncoding(gender, smoker map[string]float64) (*CategoryEncoding, error) {
	enc := &CategoryEncoding{
		Gender: foldKeys(gender),
		Smoker: foldKeys(smoker),
	}
	for _, v := range genderValues {
		if _, ok := enc.Gender[v]; !ok {
			return nil, fmt.Errorf("category encoding has no gender code for %q", v)
		}
	}
	for _, v := range smokerValues {
		if _, ok := enc.Smoker[v]; !ok {
			return nil, fmt.Errorf("category encoding has no smoker code for %q", v)
		}
	}
	return enc, nil
}

func foldKeys(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[foldCase(k)] = v
	}
	return out
}
