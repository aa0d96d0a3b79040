package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"insurecharge/ml"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Model struct {
		Type         string `yaml:"type"`
		Path         string `yaml:"path"`
		EncodingPath string `yaml:"encoding_path"`
		Watch        bool   `yaml:"watch"`
	} `yaml:"model"`
	Validation ml.Bounds `yaml:"validation"`
	Cache      struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	var c Config
	c.Http.Port = 5000
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Http.MaxBodyBytes = 1 << 20
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 28
	c.Database.Path = "data/predictions.db"
	c.Model.Type = ml.LinearRegressionType
	c.Model.Path = "assets/medical_model.json"
	c.Model.EncodingPath = "assets/label_encode.json"
	c.Model.Watch = true
	c.Validation = ml.DefaultBounds()
	c.Cache.Size = 1024
	return c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Model.Path == "" || c.Model.EncodingPath == "" {
		return errors.New("model.path and model.encoding_path are required")
	}
	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}

// AssetSource is the model section in the form the asset store takes.
func (c Config) AssetSource() ml.AssetSource {
	return ml.AssetSource{
		ModelType:    c.Model.Type,
		ModelPath:    c.Model.Path,
		EncodingPath: c.Model.EncodingPath,
	}
}
