package ml

import (
	"context"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Form field names accepted by Predict, in the order they are checked.
const (
	FieldAge      = "age"
	FieldGender   = "gender"
	FieldBMI      = "bmi"
	FieldChildren = "children"
	FieldSmoker   = "smoker"
	FieldRegion   = "region"
)

var RequiredFields = []string{FieldAge, FieldGender, FieldBMI, FieldChildren, FieldSmoker, FieldRegion}

// Prediction is the outcome of one successful call.
type Prediction struct {
	Request      PredictionRequest `json:"request"`
	Features     FeatureVector     `json:"features"`
	FeatureNames []string          `json:"feature_names"`
	Charge       float64           `json:"charge"`
	Generation   uint64            `json:"model_generation"`
	Cached       bool              `json:"cached"`
}

type cacheKey struct {
	generation uint64
	request    PredictionRequest
}

type Service struct {
	store  *AssetStore
	bounds Bounds
	cache  *lru.Cache[cacheKey, Prediction]
	logger *zap.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCache keeps up to size recent predictions. A size of zero or less
// disables caching.
func WithCache(size int) ServiceOption {
	return func(s *Service) {
		if size <= 0 {
			s.cache = nil
			return
		}
		cache, err := lru.New[cacheKey, Prediction](size)
		if err != nil {
			s.logger.Warn("prediction cache disabled", zap.Error(err))
			return
		}
		s.cache = cache
	}
}

func NewService(store *AssetStore, bounds Bounds, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		bounds: bounds,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict returns the estimated charge for raw form fields.
func (s *Service) Predict(ctx context.Context, fields map[string]string) (float64, error) {
	p, err := s.Evaluate(ctx, fields)
	if err != nil {
		return 0, err
	}
	return p.Charge, nil
}

// Evaluate is Predict with the encoded vector and model generation attached.
func (s *Service) Evaluate(ctx context.Context, fields map[string]string) (*Prediction, error) {
	req, err := ParseFields(fields)
	if err != nil {
		return nil, err
	}
	return s.PredictRequest(ctx, req)
}

// PredictRequest runs an already typed request.
func (s *Service) PredictRequest(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// bounds and enumerations need no assets, so they are checked first
	if err := NewEncoder(s.bounds, nil).Validate(req); err != nil {
		return nil, err
	}

	assets, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}

	req = req.Normalized()
	key := cacheKey{generation: assets.Generation, request: req}
	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			hit.Features = append(FeatureVector(nil), hit.Features...)
			hit.FeatureNames = append([]string(nil), hit.FeatureNames...)
			hit.Cached = true
			return &hit, nil
		}
	}

	vector, err := NewEncoder(s.bounds, assets).Encode(req)
	if err != nil {
		return nil, err
	}
	charge, err := assets.Model.Predict(vector)
	if err != nil {
		return nil, err
	}

	p := Prediction{
		Request:      req,
		Features:     vector,
		FeatureNames: assets.Model.FeatureNames(),
		Charge:       charge,
		Generation:   assets.Generation,
	}
	if s.cache != nil {
		s.cache.Add(key, p)
	}
	s.logger.Debug("prediction",
		zap.Int("age", req.Age),
		zap.String("region", req.Region),
		zap.Float64("charge", charge),
		zap.Uint64("generation", assets.Generation))

	out := p
	out.Features = append(FeatureVector(nil), vector...)
	out.FeatureNames = append([]string(nil), p.FeatureNames...)
	return &out, nil
}

// ParseFields checks that every required field is present and converts
// the numeric ones.
func ParseFields(fields map[string]string) (PredictionRequest, error) {
	for _, name := range RequiredFields {
		if _, ok := fields[name]; !ok {
			return PredictionRequest{}, &MissingFieldError{Field: name}
		}
	}

	age, err := parseInt(FieldAge, fields[FieldAge])
	if err != nil {
		return PredictionRequest{}, err
	}
	bmi, err := parseFloat(FieldBMI, fields[FieldBMI])
	if err != nil {
		return PredictionRequest{}, err
	}
	children, err := parseInt(FieldChildren, fields[FieldChildren])
	if err != nil {
		return PredictionRequest{}, err
	}

	return PredictionRequest{
		Age:      age,
		Gender:   fields[FieldGender],
		BMI:      bmi,
		Children: children,
		Smoker:   fields[FieldSmoker],
		Region:   fields[FieldRegion],
	}, nil
}

func parseInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &InvalidInputError{Field: field, Value: raw, Err: err}
	}
	return n, nil
}

func parseFloat(field, raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &InvalidInputError{Field: field, Value: raw, Err: err}
	}
	return f, nil
}
