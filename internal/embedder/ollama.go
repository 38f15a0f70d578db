package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "all-minilm"

	// DefaultRequestTimeout bounds one embedding call to a model backend
	DefaultRequestTimeout = 10 * time.Second
)

// OllamaConfig configures an OllamaStrategy
type OllamaConfig struct {
	BaseURL        string
	Model          string
	Dimensions     int
	Timeout        time.Duration // Per request
	HealthTimeout  time.Duration
	HealthInterval time.Duration
	HTTPClient     *http.Client // Optional, mainly for tests
}

// OllamaStrategy embeds text through a local Ollama server
type OllamaStrategy struct {
	baseURL string
	model   string
	dims    int
	timeout time.Duration
	client  *http.Client
	health  *healthCheck
}

// NewOllamaStrategy creates an Ollama-backed strategy. No connection is made
// until IsAvailable or Generate is called.
func NewOllamaStrategy(cfg OllamaConfig) *OllamaStrategy {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &OllamaStrategy{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		timeout: cfg.Timeout,
		client:  client,
		health:  newHealthCheck(cfg.HealthTimeout, cfg.HealthInterval),
	}
}

func (o *OllamaStrategy) Name() string    { return StrategyOllama }
func (o *OllamaStrategy) ModelID() string { return StrategyOllama + "/" + o.model }
func (o *OllamaStrategy) Dimensions() int { return o.dims }

// BaseURL returns the server address
func (o *OllamaStrategy) BaseURL() string { return o.baseURL }

// IsAvailable checks that the server answers and has the model pulled
func (o *OllamaStrategy) IsAvailable(ctx context.Context) bool {
	return o.health.check(ctx, o.ping)
}

// ResetAvailability drops the cached availability result
func (o *OllamaStrategy) ResetAvailability() { o.health.reset() }

func (o *OllamaStrategy) ping(ctx context.Context) error {
	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := doJSON(ctx, o.client, http.MethodGet, o.baseURL+"/api/tags", "", nil, &tags); err != nil {
		return err
	}
	for _, m := range tags.Models {
		if matchesOllamaModel(m.Name, o.model) || matchesOllamaModel(m.Model, o.model) {
			return nil
		}
	}
	return fmt.Errorf("%w: model %s not pulled", ErrStrategyUnavailable, o.model)
}

// matchesOllamaModel treats "all-minilm" and "all-minilm:latest" as the same model
func matchesOllamaModel(have, want string) bool {
	if have == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return strings.TrimSuffix(have, ":latest") == want
	}
	return false
}

func (o *OllamaStrategy) Generate(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *OllamaStrategy) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: o.model, Input: texts}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := doJSON(ctx, o.client, http.MethodPost, o.baseURL+"/api/embed", "", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrGenerationFailed, err)
	}
	if err := checkVectors(resp.Embeddings, len(texts), o.dims); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}
