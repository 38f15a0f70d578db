package embedder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// fallbackOrder is the fixed chain tried after the preferred strategy.
// Model-backed strategies come first; hash is always last.
var fallbackOrder = []string{StrategyOllama, StrategyOpenAI, StrategyJina, StrategyHash}

// FactoryConfig configures a Factory
type FactoryConfig struct {
	Preferred  string // Strategy tried first
	Dimensions int    // Shared by every strategy so vectors stay comparable
	Ollama     OllamaConfig
	OpenAI     OpenAIConfig
	Jina       JinaConfig
	// Constructors replaces the built-in constructor for a strategy name
	Constructors map[string]func() Strategy
	Logger       zerolog.Logger
}

type selectionKey struct {
	preferred string
	address   string
}

// Factory builds strategies and picks the best available one
type Factory struct {
	cfg   FactoryConfig
	ctors map[string]func() Strategy
	log   zerolog.Logger

	mu        sync.Mutex
	instances map[string]Strategy
	selected  map[selectionKey]Strategy
}

// NewFactory creates a factory. Strategies are constructed on first use
// and reused, so their availability results are shared across calls.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	cfg.Preferred = strings.ToLower(strings.TrimSpace(cfg.Preferred))
	cfg.Ollama.Dimensions = cfg.Dimensions
	cfg.OpenAI.Dimensions = cfg.Dimensions
	cfg.Jina.Dimensions = cfg.Dimensions

	f := &Factory{
		cfg:       cfg,
		log:       cfg.Logger,
		instances: make(map[string]Strategy),
		selected:  make(map[selectionKey]Strategy),
	}

	f.ctors = map[string]func() Strategy{
		StrategyOllama: func() Strategy { return NewOllamaStrategy(f.cfg.Ollama) },
		StrategyOpenAI: func() Strategy { return NewOpenAIStrategy(f.cfg.OpenAI) },
		StrategyJina:   func() Strategy { return NewJinaStrategy(f.cfg.Jina) },
		StrategyHash:   func() Strategy { return NewDeterministicStrategy(f.cfg.Dimensions) },
	}
	for name, ctor := range cfg.Constructors {
		f.ctors[name] = ctor
	}
	return f
}

// Preferred returns the configured preferred strategy name
func (f *Factory) Preferred() string {
	return f.cfg.Preferred
}

func (f *Factory) backendAddress(name string) string {
	switch name {
	case StrategyOllama:
		return f.cfg.Ollama.BaseURL
	case StrategyOpenAI:
		return f.cfg.OpenAI.BaseURL
	case StrategyJina:
		return f.cfg.Jina.BaseURL
	default:
		return ""
	}
}

// instance returns the shared strategy for name. Callers hold f.mu.
func (f *Factory) instance(name string) (Strategy, bool) {
	if s, ok := f.instances[name]; ok {
		return s, true
	}
	ctor, ok := f.ctors[name]
	if !ok {
		return nil, false
	}
	s := ctor()
	f.instances[name] = s
	return s, true
}

func (f *Factory) candidates() []string {
	order := make([]string, 0, len(fallbackOrder)+1)
	if f.cfg.Preferred != "" {
		order = append(order, f.cfg.Preferred)
	}
	for _, name := range fallbackOrder {
		if name != f.cfg.Preferred {
			order = append(order, name)
		}
	}
	return order
}

// CreateStrategy returns the first available strategy: the preferred one,
// then the fixed fallback order, ending with the deterministic strategy.
// The choice is cached per preferred name and backend address until
// ClearCache.
func (f *Factory) CreateStrategy(ctx context.Context) Strategy {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := selectionKey{preferred: f.cfg.Preferred, address: f.backendAddress(f.cfg.Preferred)}
	if s, ok := f.selected[key]; ok {
		return s
	}

	for _, name := range f.candidates() {
		s, ok := f.instance(name)
		if !ok {
			f.log.Warn().Str("strategy", name).Msg("unknown embedding strategy, skipping")
			continue
		}
		if name != StrategyHash && !s.IsAvailable(ctx) {
			f.log.Warn().Str("strategy", name).Str("model", s.ModelID()).Msg("strategy unavailable, skipping")
			continue
		}
		f.selected[key] = s
		return s
	}

	// Only reachable when the hash constructor was overridden
	s := NewDeterministicStrategy(f.cfg.Dimensions)
	f.selected[key] = s
	return s
}

// CreateSpecificStrategy returns the named strategy without checking
// availability
func (f *Factory) CreateSpecificStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.instance(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// GetAvailableStrategies checks every known strategy in fallback order
func (f *Factory) GetAvailableStrategies(ctx context.Context) []StrategyStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]StrategyStatus, 0, len(fallbackOrder))
	for _, name := range fallbackOrder {
		s, ok := f.instance(name)
		if !ok {
			continue
		}
		out = append(out, StrategyStatus{
			Name:      name,
			Available: s.IsAvailable(ctx),
			Model:     s.ModelID(),
		})
	}
	return out
}

// ClearCache forgets the selected strategy and every cached availability result,
// so the next CreateStrategy checks again
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.selected = make(map[selectionKey]Strategy)
	for _, s := range f.instances {
		if r, ok := s.(interface{ ResetAvailability() }); ok {
			r.ResetAvailability()
		}
	}
}
