package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/config"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/embedder"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/indexer"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/logging"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/matcher"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/mcp"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/storage"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/vector"
)

// App holds every wired component. Close releases the store.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      *storage.SQLiteStorage
	Factory    *embedder.Factory
	Embeddings *embedder.Service
	Index      *vector.Engine
	Matcher    *matcher.Matcher
	Indexer    *indexer.Indexer
}

// Wire builds the component graph. The embedding service is initialized
// first because the vector index is bound to the model it selects.
func Wire(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	emb := cfg.Embeddings
	factory := embedder.NewFactory(embedder.FactoryConfig{
		Preferred:  emb.Strategy,
		Dimensions: emb.Dimensions,
		Ollama: embedder.OllamaConfig{
			BaseURL:       emb.Ollama.URL,
			Model:         emb.Ollama.Model,
			Timeout:       emb.Timeout,
			HealthTimeout: emb.HealthTimeout,
		},
		OpenAI: embedder.OpenAIConfig{
			APIKey:        emb.OpenAI.APIKey,
			BaseURL:       emb.OpenAI.BaseURL,
			Model:         emb.OpenAI.Model,
			Timeout:       emb.Timeout,
			HealthTimeout: emb.HealthTimeout,
		},
		Jina: embedder.JinaConfig{
			APIKey:        emb.Jina.APIKey,
			BaseURL:       emb.Jina.BaseURL,
			Model:         emb.Jina.Model,
			Timeout:       emb.Timeout,
			HealthTimeout: emb.HealthTimeout,
		},
		Logger: logging.Component(logger, "factory"),
	})

	svc := embedder.NewService(factory, embedder.ServiceConfig{
		Retry: embedder.RetryConfig{
			Attempts:  max(emb.Retries, 1),
			BaseDelay: emb.RetryDelay,
			MaxDelay:  embedder.DefaultMaxDelay,
		},
		CacheTTL:  emb.CacheTTL,
		CacheSize: emb.CacheSize,
		BatchSize: emb.BatchSize,
		Logger:    logging.Component(logger, "embedder"),
	})
	if err := svc.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	info := svc.GetStrategyInfo()

	engine, err := vector.NewEngine(vector.Config{
		ModelID:             info.ModelID,
		Dimensions:          info.Dimensions,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		Persister:           store,
		Logger:              logging.Component(logger, "vector"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	loaded, err := engine.Load(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	m, err := matcher.New(store, svc, engine, matcher.Config{
		SemanticWeight: cfg.Search.SemanticWeight,
		KeywordWeight:  cfg.Search.KeywordWeight,
		MinConfidence:  cfg.Search.MinConfidence,
		MaxResults:     cfg.Search.MaxResults,
		CacheTTL:       cfg.Search.CacheTTL,
		CacheSize:      cfg.Search.CacheSize,
		Logger:         logging.Component(logger, "matcher"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create matcher: %w", err)
	}

	// A strategy switch moves the index to the new model's vectors
	svc.OnModelChange(func(ctx context.Context, modelID string, dims int) error {
		if _, err := engine.Rebind(ctx, modelID, dims); err != nil {
			return err
		}
		m.InvalidateCache()
		return nil
	})

	idx := indexer.New(store, svc, engine, indexer.Config{
		BatchSize:   emb.BatchSize,
		Invalidator: m,
		Logger:      logging.Component(logger, "indexer"),
	})

	logger.Info().
		Str("strategy", info.Name).
		Str("model", info.ModelID).
		Int("dimensions", info.Dimensions).
		Int("vectors", loaded).
		Str("driver", storage.DriverName).
		Msg("components wired")

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Factory:    factory,
		Embeddings: svc,
		Index:      engine,
		Matcher:    m,
		Indexer:    idx,
	}, nil
}

// NewMCPServer exposes the app through the MCP tool surface
func (a *App) NewMCPServer() (*mcp.Server, error) {
	return mcp.NewServer(mcp.Dependencies{
		Catalog:    a.Store,
		Searcher:   a.Matcher,
		Rebuilder:  a.Indexer,
		Embeddings: a.Embeddings,
		Strategies: a.Factory,
		Switcher:   a.Embeddings,
		Index:      a.Index,
		Logger:     logging.Component(a.Logger, "mcp"),
	})
}

// Close releases the store
func (a *App) Close() error {
	return a.Store.Close()
}
