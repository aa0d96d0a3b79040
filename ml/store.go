package ml

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Assets is one immutable pairing of a trained model and its category table.
type Assets struct {
	Model      RegressionModel
	Encoding   *CategoryEncoding
	Generation uint64
	LoadedAt   time.Time

	columnIndex map[string]int
}

// NewAssets indexes the model's columns. Generation is set by the store.
func NewAssets(model RegressionModel, encoding *CategoryEncoding) (*Assets, error) {
	if model == nil {
		return nil, errors.New("model is nil")
	}
	if encoding == nil {
		return nil, errors.New("category encoding is nil")
	}
	names := model.FeatureNames()
	if len(names) != model.FeatureCount() {
		return nil, errors.New("model feature names do not match its feature count")
	}
	if err := checkLayout(names); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	return &Assets{
		Model:       model,
		Encoding:    encoding,
		LoadedAt:    time.Now(),
		columnIndex: index,
	}, nil
}

// AssetSource says where the store loads its assets from.
type AssetSource struct {
	ModelType    string
	ModelPath    string
	EncodingPath string
}

// AssetStore serves the current Assets and swaps them atomically on reload.
type AssetStore struct {
	source     AssetSource
	current    atomic.Pointer[Assets]
	generation atomic.Uint64
	mu         sync.Mutex
}

func NewAssetStore(source AssetSource) *AssetStore {
	return &AssetStore{source: source}
}

// NewStaticAssetStore serves fixed assets and never touches the filesystem.
// With nil assets every Snapshot reports the model as unavailable.
func NewStaticAssetStore(assets *Assets) *AssetStore {
	s := &AssetStore{}
	if assets != nil {
		s.install(assets)
	}
	return s
}

func (s *AssetStore) Source() AssetSource {
	return s.source
}

// Load reads both asset files and installs them. On failure the previous
// snapshot, if any, stays in service.
func (s *AssetStore) Load() (*Assets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *AssetStore) loadLocked() (*Assets, error) {
	if s.source.ModelPath == "" {
		return nil, &ModelUnavailableError{Err: errors.New("no model path configured")}
	}
	model, err := LoadModel(s.source.ModelType, s.source.ModelPath)
	if err != nil {
		return nil, &ModelUnavailableError{Path: s.source.ModelPath, Err: err}
	}
	encoding, err := LoadCategoryEncoding(s.source.EncodingPath)
	if err != nil {
		return nil, &ModelUnavailableError{Path: s.source.EncodingPath, Err: err}
	}
	assets, err := NewAssets(model, encoding)
	if err != nil {
		return nil, &ModelUnavailableError{Path: s.source.ModelPath, Err: err}
	}
	s.install(assets)
	return assets, nil
}

func (s *AssetStore) install(assets *Assets) {
	assets.Generation = s.generation.Add(1)
	s.current.Store(assets)
}

// Snapshot returns the assets in service. When nothing has loaded yet it
// makes one attempt for this caller; a failure is returned, not remembered.
func (s *AssetStore) Snapshot() (*Assets, error) {
	if assets := s.current.Load(); assets != nil {
		return assets, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if assets := s.current.Load(); assets != nil {
		return assets, nil
	}
	return s.loadLocked()
}

// Current returns the assets in service without trying to load.
func (s *AssetStore) Current() *Assets {
	return s.current.Load()
}
