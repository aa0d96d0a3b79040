package ml

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PredictionRequest holds the six attributes of an insured person.
type PredictionRequest struct {
	Age      int     `json:"age"`
	Gender   string  `json:"gender"`
	BMI      float64 `json:"bmi"`
	Children int     `json:"children"`
	Smoker   string  `json:"smoker"`
	Region   string  `json:"region"`
}

// FeatureVector is laid out in the model's declared feature order.
type FeatureVector []float64

// Bounds are the accepted numeric ranges, all inclusive.
type Bounds struct {
	MinAge      int     `yaml:"min_age"`
	MaxAge      int     `yaml:"max_age"`
	MinBMI      float64 `yaml:"min_bmi"`
	MaxBMI      float64 `yaml:"max_bmi"`
	MaxChildren int     `yaml:"max_children"`
}

func DefaultBounds() Bounds {
	return Bounds{
		MinAge:      18,
		MaxAge:      100,
		MinBMI:      10,
		MaxBMI:      50,
		MaxChildren: 5,
	}
}

func (b Bounds) Validate() error {
	if b.MinAge > b.MaxAge {
		return fmt.Errorf("min_age %d exceeds max_age %d", b.MinAge, b.MaxAge)
	}
	if !(b.MinBMI <= b.MaxBMI) {
		return fmt.Errorf("min_bmi %g exceeds max_bmi %g", b.MinBMI, b.MaxBMI)
	}
	if b.MaxChildren < 0 {
		return fmt.Errorf("max_children %d is negative", b.MaxChildren)
	}
	return nil
}

// Normalized returns the request with its categorical fields lower cased.
// Only the region is trimmed; padded gender or smoker values stay invalid.
func (r PredictionRequest) Normalized() PredictionRequest {
	r.Gender = foldCase(r.Gender)
	r.Smoker = foldCase(r.Smoker)
	r.Region = normalize(r.Region)
	return r
}

// RegionColumn is the one-hot column name the request's region maps to.
func (r PredictionRequest) RegionColumn() string {
	return RegionColumnPrefix + normalize(r.Region)
}

// Encoder turns validated requests into feature vectors for one set of assets.
type Encoder struct {
	bounds Bounds
	assets *Assets
}

func NewEncoder(bounds Bounds, assets *Assets) *Encoder {
	return &Encoder{bounds: bounds, assets: assets}
}

func (e *Encoder) Validate(req PredictionRequest) error {
	req = req.Normalized()
	b := e.bounds

	if req.Age < b.MinAge || req.Age > b.MaxAge {
		return &ValidationError{Field: "age", Value: req.Age,
			Reason: fmt.Sprintf("Age must be between %d and %d", b.MinAge, b.MaxAge)}
	}
	if req.Gender != "male" && req.Gender != "female" {
		return &ValidationError{Field: "gender", Value: req.Gender,
			Reason: "Gender must be either 'male' or 'female'"}
	}
	// written so NaN fails the check
	if !(req.BMI >= b.MinBMI && req.BMI <= b.MaxBMI) {
		return &ValidationError{Field: "bmi", Value: req.BMI,
			Reason: fmt.Sprintf("BMI must be between %g and %g", b.MinBMI, b.MaxBMI)}
	}
	if req.Children < 0 || req.Children > b.MaxChildren {
		return &ValidationError{Field: "children", Value: req.Children,
			Reason: fmt.Sprintf("Number of children must be between 0 and %d", b.MaxChildren)}
	}
	if req.Smoker != "yes" && req.Smoker != "no" {
		return &ValidationError{Field: "smoker", Value: req.Smoker,
			Reason: "Smoker must be either 'yes' or 'no'"}
	}
	if req.Region == "" {
		return &ValidationError{Field: "region", Value: req.Region,
			Reason: "Region must not be empty"}
	}
	return nil
}

func (e *Encoder) Encode(req PredictionRequest) (FeatureVector, error) {
	if err := e.Validate(req); err != nil {
		return nil, err
	}
	req = req.Normalized()

	column := req.RegionColumn()
	regionIdx, ok := e.assets.columnIndex[column]
	if !ok {
		return nil, &EncodingError{Field: "region", Value: req.Region, Column: column}
	}
	gender, ok := e.assets.Encoding.Gender[req.Gender]
	if !ok {
		return nil, &EncodingError{Field: "gender", Value: req.Gender}
	}
	smoker, ok := e.assets.Encoding.Smoker[req.Smoker]
	if !ok {
		return nil, &EncodingError{Field: "smoker", Value: req.Smoker}
	}

	vector := make(FeatureVector, e.assets.Model.FeatureCount())
	vector[0] = float64(req.Age)
	vector[1] = gender
	vector[2] = req.BMI
	vector[3] = float64(req.Children)
	vector[4] = smoker
	vector[regionIdx] = 1
	return vector, nil
}

func foldCase(s string) string {
	return cases.Lower(language.Und).String(s)
}

func normalize(s string) string {
	return foldCase(strings.TrimSpace(s))
}
