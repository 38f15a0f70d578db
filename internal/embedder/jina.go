package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultJinaModel = "jina-embeddings-v3"

	// MaxJinaBatch is the largest input list sent in one request
	MaxJinaBatch = 100
)

// JinaConfig configures a JinaStrategy
type JinaConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Dimensions     int
	Timeout        time.Duration
	HealthTimeout  time.Duration
	HealthInterval time.Duration
	HTTPClient     *http.Client
}

// JinaStrategy embeds text with the Jina AI embeddings API
type JinaStrategy struct {
	apiKey  string
	baseURL string
	model   string
	dims    int
	timeout time.Duration
	client  *http.Client
	health  *healthCheck
}

// NewJinaStrategy creates a Jina-backed strategy. A missing API key is not an
// error here; the strategy just reports itself unavailable.
func NewJinaStrategy(cfg JinaConfig) *JinaStrategy {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJinaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultJinaModel
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

	return &JinaStrategy{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		timeout: cfg.Timeout,
		client:  client,
		health:  newHealthCheck(cfg.HealthTimeout, cfg.HealthInterval),
	}
}

func (j *JinaStrategy) Name() string    { return StrategyJina }
func (j *JinaStrategy) ModelID() string { return StrategyJina + "/" + j.model }
func (j *JinaStrategy) Dimensions() int { return j.dims }

// BaseURL returns the API address
func (j *JinaStrategy) BaseURL() string { return j.baseURL }

// IsAvailable embeds a single word. Without an API key it answers false
// without any network call.
func (j *JinaStrategy) IsAvailable(ctx context.Context) bool {
	if j.apiKey == "" {
		return false
	}
	return j.health.check(ctx, func(ctx context.Context) error {
		_, err := j.call(ctx, []string{"ping"})
		return err
	})
}

// ResetAvailability drops the cached availability result
func (j *JinaStrategy) ResetAvailability() { j.health.reset() }

func (j *JinaStrategy) Generate(ctx context.Context, text string) ([]float32, error) {
	vectors, err := j.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (j *JinaStrategy) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	if j.apiKey == "" {
		return nil, fmt.Errorf("%w: jina api key not set", ErrStrategyUnavailable)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxJinaBatch {
		end := min(start+MaxJinaBatch, len(texts))

		callCtx, cancel := context.WithTimeout(ctx, j.timeout)
		vectors, err := j.call(callCtx, texts[start:end])
		cancel()
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (j *JinaStrategy) call(ctx context.Context, texts []string) ([][]float32, error) {
	req := struct {
		Model      string   `json:"model"`
		Input      []string `json:"input"`
		Dimensions int      `json:"dimensions"`
	}{Model: j.model, Input: texts, Dimensions: j.dims}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := doJSON(ctx, j.client, http.MethodPost, j.baseURL+"/embeddings", j.apiKey, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: jina: %v", ErrGenerationFailed, err)
	}

	// Responses carry an index per item; place by index rather than position
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: jina returned index %d for %d texts", ErrGenerationFailed, d.Index, len(texts))
		}
		vectors[d.Index] = d.Embedding
	}
	if err := checkVectors(vectors, len(texts), j.dims); err != nil {
		return nil, err
	}
	return vectors, nil
}
