// Package config holds tuning parameters of the context pipeline, loaded
// from an optional YAML file.
package config

import (
	"os"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Privacy    PrivacyConfig    `yaml:"privacy"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type IndexConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	Dimensions    int           `yaml:"dimensions"`
	PurgeBatch    int           `yaml:"purge_batch"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Dimensions, validation.Required, validation.Min(1)),
		validation.Field(&c.PurgeBatch, validation.Required, validation.Min(1)),
		validation.Field(&c.SweepInterval, validation.Required, validation.Min(time.Second)),
	)
}

type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	ContextTokens int `yaml:"context_tokens"`
}

// MaxTopK bounds search size regardless of what a caller asks for.
const MaxTopK = 32

func (c *RetrievalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TopK, validation.Required, validation.Min(1), validation.Max(MaxTopK)),
		validation.Field(&c.ContextTokens, validation.Required, validation.Min(64)),
	)
}

type EmbeddingConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.CacheSize, validation.Min(0)),
	)
}

type CompletionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

func (c *CompletionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required),
	)
}

type PrivacyConfig struct {
	DefaultMode model.PrivacyMode `yaml:"default_mode"`
}

func (c *PrivacyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultMode, validation.Required,
			validation.In(model.PrivacyModeRaw, model.PrivacyModeAnonymized)),
	)
}

type WorkerConfig struct {
	Count       int           `yaml:"count"`
	QueueSize   int           `yaml:"queue_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

func (c *WorkerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Count, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxBackoff, validation.Required),
	)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"index", &c.Index},
		{"retrieval", &c.Retrieval},
		{"embedding", &c.Embedding},
		{"completion", &c.Completion},
		{"privacy", &c.Privacy},
		{"worker", &c.Worker},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return goerr.Wrap(err, "invalid configuration", goerr.V("section", s.name))
		}
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			TTL:           24 * time.Hour,
			Dimensions:    768,
			PurgeBatch:    256,
			SweepInterval: time.Minute,
		},
		Retrieval: RetrievalConfig{
			TopK:          8,
			ContextTokens: 2048,
		},
		Embedding: EmbeddingConfig{
			Timeout: 10 * time.Second,
		},
		Completion: CompletionConfig{
			Timeout: 60 * time.Second,
		},
		Privacy: PrivacyConfig{
			DefaultMode: model.PrivacyModeAnonymized,
		},
		Worker: WorkerConfig{
			Count:       4,
			QueueSize:   1024,
			MaxAttempts: 5,
			MaxBackoff:  time.Minute,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
