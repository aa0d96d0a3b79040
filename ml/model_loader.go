package ml

import (
	"fmt"
)

const LinearRegressionType = "linear_regression"

func LoadModel(modelType, path string) (RegressionModel, error) {
	switch modelType {
	case LinearRegressionType, "":
		model, err := loadLinearModel(path)
		if err != nil {
			return nil, err
		}
		return model, nil
	case RegressionTreeType:
		model, err := loadRegressionTree(path)
		if err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
