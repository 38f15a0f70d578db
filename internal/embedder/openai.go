package embedder

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAIStrategy. BaseURL allows any
// OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Dimensions     int
	Timeout        time.Duration
	HealthTimeout  time.Duration
	HealthInterval time.Duration
	HTTPClient     *http.Client
}

// OpenAIStrategy embeds text with the OpenAI embeddings API
type OpenAIStrategy struct {
	cfg    OpenAIConfig
	health *healthCheck

	initOnce sync.Once
	client   openaisdk.Client
	initErr  error
}

// NewOpenAIStrategy creates an OpenAI-backed strategy. The SDK client is
// built on first use; a missing API key makes the strategy permanently
// unavailable.
func NewOpenAIStrategy(cfg OpenAIConfig) *OpenAIStrategy {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	return &OpenAIStrategy{
		cfg:    cfg,
		health: newHealthCheck(cfg.HealthTimeout, cfg.HealthInterval),
	}
}

func (o *OpenAIStrategy) Name() string    { return StrategyOpenAI }
func (o *OpenAIStrategy) ModelID() string { return StrategyOpenAI + "/" + o.cfg.Model }
func (o *OpenAIStrategy) Dimensions() int { return o.cfg.Dimensions }

// BaseURL returns the configured endpoint, empty for the SDK default
func (o *OpenAIStrategy) BaseURL() string { return o.cfg.BaseURL }

func (o *OpenAIStrategy) init() error {
	o.initOnce.Do(func() {
		if o.cfg.APIKey == "" {
			o.initErr = fmt.Errorf("%w: openai api key not set", ErrStrategyUnavailable)
			return
		}
		opts := []option.RequestOption{
			option.WithAPIKey(o.cfg.APIKey),
			// Retries are handled by Service
			option.WithMaxRetries(0),
		}
		if o.cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(o.cfg.BaseURL))
		}
		if o.cfg.HTTPClient != nil {
			opts = append(opts, option.WithHTTPClient(o.cfg.HTTPClient))
		}
		o.client = openaisdk.NewClient(opts...)
	})
	return o.initErr
}

// IsAvailable checks that the configured model can be retrieved
func (o *OpenAIStrategy) IsAvailable(ctx context.Context) bool {
	if o.init() != nil {
		return false
	}
	return o.health.check(ctx, func(ctx context.Context) error {
		_, err := o.client.Models.Get(ctx, o.cfg.Model)
		return err
	})
}

// ResetAvailability drops the cached availability result. A failed client
// initialization is not retried.
func (o *OpenAIStrategy) ResetAvailability() { o.health.reset() }

func (o *OpenAIStrategy) Generate(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *OpenAIStrategy) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	if err := o.init(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:      openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openaisdk.EmbeddingModel(o.cfg.Model),
		Dimensions: openaisdk.Int(int64(o.cfg.Dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", ErrGenerationFailed, err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("%w: openai returned index %d for %d texts", ErrGenerationFailed, d.Index, len(texts))
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		vectors[d.Index] = vec
	}
	if err := checkVectors(vectors, len(texts), o.cfg.Dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}
