// Package config loads server configuration from defaults, an optional
// YAML file and PATTERNS_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration
type Config struct {
	Storage    StorageConfig   `mapstructure:"storage"`
	Embeddings EmbeddingConfig `mapstructure:"embeddings"`
	Search     SearchConfig    `mapstructure:"search"`
	Log        LogConfig       `mapstructure:"log"`
}

// StorageConfig locates the catalog database
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// EmbeddingConfig controls strategy selection and the embedding service
type EmbeddingConfig struct {
	Strategy      string        `mapstructure:"strategy"` // Preferred strategy
	Dimensions    int           `mapstructure:"dimensions"`
	Retries       int           `mapstructure:"retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheSize     int           `mapstructure:"cache_size"`
	BatchSize     int           `mapstructure:"batch_size"`

	Ollama OllamaConfig  `mapstructure:"ollama"`
	OpenAI BackendConfig `mapstructure:"openai"`
	Jina   BackendConfig `mapstructure:"jina"`
}

// OllamaConfig points at a local Ollama server
type OllamaConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// BackendConfig holds credentials and endpoint for a hosted backend
type BackendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// SearchConfig tunes recommendation scoring
type SearchConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	SemanticWeight      float64       `mapstructure:"semantic_weight"`
	KeywordWeight       float64       `mapstructure:"keyword_weight"`
	MinConfidence       float64       `mapstructure:"min_confidence"`
	MaxResults          int           `mapstructure:"max_results"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	CacheSize           int           `mapstructure:"cache_size"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.path", "~/.patterns-mcp/patterns.db")

	v.SetDefault("embeddings.strategy", "ollama")
	v.SetDefault("embeddings.dimensions", 384)
	v.SetDefault("embeddings.retries", 3)
	v.SetDefault("embeddings.retry_delay", 100*time.Millisecond)
	v.SetDefault("embeddings.timeout", 10*time.Second)
	v.SetDefault("embeddings.health_timeout", 2*time.Second)
	v.SetDefault("embeddings.cache_ttl", 24*time.Hour)
	v.SetDefault("embeddings.cache_size", 10000)
	v.SetDefault("embeddings.batch_size", 32)
	v.SetDefault("embeddings.ollama.url", "http://localhost:11434")
	v.SetDefault("embeddings.ollama.model", "all-minilm")
	v.SetDefault("embeddings.openai.api_key", "")
	v.SetDefault("embeddings.openai.base_url", "")
	v.SetDefault("embeddings.openai.model", "text-embedding-3-small")
	v.SetDefault("embeddings.jina.api_key", "")
	v.SetDefault("embeddings.jina.base_url", "https://api.jina.ai/v1")
	v.SetDefault("embeddings.jina.model", "jina-embeddings-v3")

	v.SetDefault("search.similarity_threshold", 0.3)
	v.SetDefault("search.semantic_weight", 0.7)
	v.SetDefault("search.keyword_weight", 0.3)
	v.SetDefault("search.min_confidence", 0.1)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.cache_ttl", 30*time.Minute)
	v.SetDefault("search.cache_size", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PATTERNS_). The vendor variables
// OPENAI_API_KEY and JINA_API_KEY are honoured when the prefixed ones are
// unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment
	v.SetEnvPrefix("PATTERNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("embeddings.openai.api_key", "PATTERNS_EMBEDDINGS_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embeddings.jina.api_key", "PATTERNS_EMBEDDINGS_JINA_API_KEY", "JINA_API_KEY")

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	expanded, err := expandHome(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	cfg.Storage.Path = expanded

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Storage.Path == "" {
		invalid("storage.path must not be empty")
	}

	e := c.Embeddings
	if e.Dimensions <= 0 {
		invalid("embeddings.dimensions must be positive, got %d", e.Dimensions)
	}
	if e.Retries < 0 {
		invalid("embeddings.retries must not be negative, got %d", e.Retries)
	}
	if e.Timeout <= 0 {
		invalid("embeddings.timeout must be positive, got %s", e.Timeout)
	}
	validStrategies := map[string]bool{"ollama": true, "openai": true, "jina": true, "hash": true}
	if !validStrategies[strings.ToLower(e.Strategy)] {
		invalid("embeddings.strategy must be one of [ollama, openai, jina, hash], got %q", e.Strategy)
	}

	s := c.Search
	if s.SemanticWeight < 0 || s.KeywordWeight < 0 {
		invalid("search weights must not be negative, got semantic=%g keyword=%g", s.SemanticWeight, s.KeywordWeight)
	} else if s.SemanticWeight+s.KeywordWeight == 0 {
		invalid("search weights must not both be zero")
	}
	if s.SimilarityThreshold < -1 || s.SimilarityThreshold > 1 {
		invalid("search.similarity_threshold must be within [-1, 1], got %g", s.SimilarityThreshold)
	}
	// Zero would admit every catalog entry as a keyword hit
	if s.MinConfidence <= 0 || s.MinConfidence > 1 {
		invalid("search.min_confidence must be within (0, 1], got %g", s.MinConfidence)
	}
	if s.MaxResults <= 0 {
		invalid("search.max_results must be positive, got %d", s.MaxResults)
	}

	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.Log.Format] {
		invalid("log.format must be one of [json, pretty], got %q", c.Log.Format)
	}

	return errs
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
