package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/cache"
)

const (
	DefaultCacheTTL  = 24 * time.Hour
	DefaultCacheSize = 10000
	DefaultBatchSize = 32
)

// Embedding is a generated vector tagged with what produced it
type Embedding struct {
	Vector   []float32
	ModelID  string
	Strategy string
	Cached   bool
}

func cloneEmbedding(e Embedding) Embedding {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec
	return e
}

// embeddingSize counts the vector payload and tag strings
func embeddingSize(e Embedding) int64 {
	return int64(len(e.Vector)*4 + len(e.ModelID) + len(e.Strategy))
}

// ServiceConfig configures a Service
type ServiceConfig struct {
	Retry     RetryConfig
	CacheTTL  time.Duration
	CacheSize int
	BatchSize int
	// Strategy pins the active strategy and skips factory selection
	Strategy Strategy
	Logger   zerolog.Logger
}

// ModelChangeFunc is told about a strategy switch that changes the active
// model, before the switch takes effect. An error aborts the switch.
type ModelChangeFunc func(ctx context.Context, modelID string, dims int) error

// StrategyInfo reports the active strategy and which strategy actually
// produced the most recent vector
type StrategyInfo struct {
	Name          string      `json:"name"`
	ModelID       string      `json:"model_id"`
	Dimensions    int         `json:"dimensions"`
	Ready         bool        `json:"ready"`
	LastUsed      string      `json:"last_used,omitempty"`
	LastModelID   string      `json:"last_model_id,omitempty"`
	Generated     int64       `json:"generated"`
	FallbackCount int64       `json:"fallback_count"`
	Cache         cache.Stats `json:"cache"`
}

// Service wraps the active Strategy with caching, retry, batching and the
// deterministic fallback. Generation never fails because of the backend:
// once retries run out the fallback vector is returned and the substitution
// shows up in GetStrategyInfo. Only malformed input and context
// cancellation surface as errors.
type Service struct {
	factory   *Factory
	pinned    Strategy
	retry     RetryConfig
	batchSize int
	cache     *cache.Cache[Embedding]
	group     singleflight.Group
	log       zerolog.Logger

	mu       sync.RWMutex
	active   Strategy
	fallback *DeterministicStrategy
	ready    bool
	lastUsed string
	lastID   string
	onChange ModelChangeFunc

	generated atomic.Int64
	fallbacks atomic.Int64
}

// NewService creates a service. factory may be nil when cfg.Strategy is set.
func NewService(factory *Factory, cfg ServiceConfig) *Service {
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &Service{
		factory:   factory,
		pinned:    cfg.Strategy,
		retry:     cfg.Retry,
		batchSize: cfg.BatchSize,
		cache: cache.New(cache.Options[Embedding]{
			MaxSize:    cfg.CacheSize,
			DefaultTTL: cfg.CacheTTL,
			Clone:      cloneEmbedding,
			SizeOf:     embeddingSize,
		}),
		log: cfg.Logger,
	}
}

// Initialize selects the active strategy. It is called lazily by the
// generate methods and may be called again after Factory.ClearCache to
// check availability again.
func (s *Service) Initialize(ctx context.Context) error {
	var strategy Strategy
	switch {
	case s.pinned != nil:
		strategy = s.pinned
	case s.factory != nil:
		if err := ctx.Err(); err != nil {
			return err
		}
		strategy = s.factory.CreateStrategy(ctx)
	default:
		strategy = NewDeterministicStrategy(DefaultDimensions)
	}

	s.setActive(strategy)
	s.log.Info().
		Str("strategy", strategy.Name()).
		Str("model", strategy.ModelID()).
		Int("dimensions", strategy.Dimensions()).
		Msg("embedding strategy selected")
	return nil
}

func (s *Service) setActive(strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = strategy
	s.fallback = NewDeterministicStrategy(strategy.Dimensions())
	s.ready = true
}

// IsReady reports whether a strategy has been selected
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Service) strategies(ctx context.Context) (Strategy, *DeterministicStrategy, error) {
	s.mu.RLock()
	active, fallback, ready := s.active, s.fallback, s.ready
	s.mu.RUnlock()
	if ready {
		return active, fallback, nil
	}

	if err := s.Initialize(ctx); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.fallback, nil
}

// ModelID returns the model ID of the active strategy, selecting one first if needed
func (s *Service) ModelID(ctx context.Context) (string, error) {
	active, _, err := s.strategies(ctx)
	if err != nil {
		return "", err
	}
	return active.ModelID(), nil
}

// OnModelChange registers fn to run whenever SwitchStrategy changes the
// active model. It replaces any earlier registration.
func (s *Service) OnModelChange(fn ModelChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SwitchStrategy makes the named strategy active. The strategy must be
// available. Cached vectors are keyed by model ID, so nothing is flushed.
// A model change is reported to the OnModelChange hook first.
func (s *Service) SwitchStrategy(ctx context.Context, name string) error {
	if s.factory == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	strategy, err := s.factory.CreateSpecificStrategy(name)
	if err != nil {
		return err
	}
	if !strategy.IsAvailable(ctx) {
		return fmt.Errorf("%w: %s", ErrStrategyUnavailable, name)
	}

	s.mu.RLock()
	prev, onChange := s.active, s.onChange
	s.mu.RUnlock()
	changed := prev == nil || prev.ModelID() != strategy.ModelID() || prev.Dimensions() != strategy.Dimensions()
	if changed && onChange != nil {
		if err := onChange(ctx, strategy.ModelID(), strategy.Dimensions()); err != nil {
			return fmt.Errorf("switch to %s: %w", name, err)
		}
	}

	s.setActive(strategy)
	s.log.Info().Str("strategy", name).Str("model", strategy.ModelID()).Msg("embedding strategy switched")
	return nil
}

// GetStrategyInfo reports the active strategy and recent usage
func (s *Service) GetStrategyInfo() StrategyInfo {
	s.mu.RLock()
	info := StrategyInfo{
		Ready:       s.ready,
		LastUsed:    s.lastUsed,
		LastModelID: s.lastID,
	}
	if s.active != nil {
		info.Name = s.active.Name()
		info.ModelID = s.active.ModelID()
		info.Dimensions = s.active.Dimensions()
	}
	s.mu.RUnlock()

	info.Generated = s.generated.Load()
	info.FallbackCount = s.fallbacks.Load()
	info.Cache = s.cache.Stats()
	return info
}

// CacheStats returns embedding cache counters
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops every cached vector
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// GenerateEmbedding returns the vector for text
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	emb, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

// GenerateEmbeddings returns one vector per text in input order
func (s *Service) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	embs, err := s.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(embs))
	for i, e := range embs {
		out[i] = e.Vector
	}
	return out, nil
}

// Embed returns the vector for text along with the model that produced it.
// Concurrent calls for the same uncached text share one generation.
func (s *Service) Embed(ctx context.Context, text string) (Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return Embedding{}, ErrEmptyText
	}
	active, fallback, err := s.strategies(ctx)
	if err != nil {
		return Embedding{}, err
	}

	key := cacheKey(active.ModelID(), text)
	if emb, ok := s.cache.Get(key); ok {
		emb.Cached = true
		return emb, nil
	}

	// The shared call outlives an abandoned caller so the cache still fills
	ch := s.group.DoChan(key, func() (any, error) {
		return s.generateOne(context.WithoutCancel(ctx), active, fallback, text)
	})

	select {
	case <-ctx.Done():
		return Embedding{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Embedding{}, res.Err
		}
		return cloneEmbedding(res.Val.(Embedding)), nil
	}
}

// generateOne runs the active strategy with retry and falls back to the
// deterministic strategy once attempts are exhausted
func (s *Service) generateOne(ctx context.Context, active Strategy, fallback *DeterministicStrategy, text string) (Embedding, error) {
	vec, err := retryWithBackoff(ctx, s.retry, func() ([]float32, error) {
		v, err := active.Generate(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(v) != active.Dimensions() {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrGenerationFailed, len(v), active.Dimensions())
		}
		return v, nil
	}, func(attempt int, err error) {
		s.log.Debug().Str("strategy", active.Name()).Int("attempt", attempt).Err(err).Msg("embedding attempt failed")
	})

	if err == nil {
		emb := Embedding{Vector: vec, ModelID: active.ModelID(), Strategy: active.Name()}
		s.record(emb)
		s.cache.Set(cacheKey(emb.ModelID, text), emb)
		return emb, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return Embedding{}, err
	}

	return s.useFallback(active, fallback, text, err), nil
}

func (s *Service) useFallback(active Strategy, fallback *DeterministicStrategy, text string, cause error) Embedding {
	s.fallbacks.Add(1)
	s.log.Warn().
		Str("strategy", active.Name()).
		Int("attempts", s.retry.Attempts).
		Err(cause).
		Msg("generation failed, falling back to deterministic strategy")

	emb := Embedding{Vector: fallback.Embed(text), ModelID: fallback.ModelID(), Strategy: fallback.Name()}
	s.record(emb)
	// Lookups use the active model's key, so a fallback vector is only
	// worth caching when the active strategy is the fallback itself
	if active.ModelID() == emb.ModelID {
		s.cache.Set(cacheKey(emb.ModelID, text), emb)
	}
	return emb
}

func (s *Service) record(emb Embedding) {
	s.generated.Add(1)
	s.mu.Lock()
	s.lastUsed = emb.Strategy
	s.lastID = emb.ModelID
	s.mu.Unlock()
}

// EmbedBatch returns one Embedding per text in input order. Uncached texts
// are sent to the strategy in batches; if a batch call fails each of its
// texts is retried on its own, so one bad text never sinks its neighbours.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return []Embedding{}, nil
	}
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	active, fallback, err := s.strategies(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Embedding, len(texts))
	positions := make(map[string][]int)
	var pending []string

	for i, text := range texts {
		if emb, ok := s.cache.Get(cacheKey(active.ModelID(), text)); ok {
			emb.Cached = true
			out[i] = emb
			continue
		}
		if _, seen := positions[text]; !seen {
			pending = append(pending, text)
		}
		positions[text] = append(positions[text], i)
	}

	for start := 0; start < len(pending); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+s.batchSize, len(pending))
		chunk := pending[start:end]

		embs, err := s.generateChunk(ctx, active, fallback, chunk)
		if err != nil {
			return nil, err
		}
		for j, text := range chunk {
			for n, pos := range positions[text] {
				if n == 0 {
					out[pos] = embs[j]
				} else {
					out[pos] = cloneEmbedding(embs[j])
				}
			}
		}
	}

	return out, nil
}

func (s *Service) generateChunk(ctx context.Context, active Strategy, fallback *DeterministicStrategy, chunk []string) ([]Embedding, error) {
	vectors, err := active.GenerateBatch(ctx, chunk)
	if err == nil {
		err = checkVectors(vectors, len(chunk), active.Dimensions())
	}

	out := make([]Embedding, len(chunk))
	if err == nil {
		for i, v := range vectors {
			emb := Embedding{Vector: v, ModelID: active.ModelID(), Strategy: active.Name()}
			s.record(emb)
			s.cache.Set(cacheKey(emb.ModelID, chunk[i]), emb)
			out[i] = emb
		}
		return out, nil
	}

	s.log.Warn().
		Str("strategy", active.Name()).
		Int("batch_size", len(chunk)).
		Err(err).
		Msg("batch generation failed, retrying items individually")

	for i, text := range chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := s.generateOne(ctx, active, fallback, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

func cacheKey(modelID, text string) string {
	return modelID + "\x00" + text
}
