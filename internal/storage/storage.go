package storage

import (
	"context"

	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

// Storage is the catalog store plus embedding persistence
type Storage interface {
	PatternStore
	EmbeddingStore

	// Close closes the underlying database
	Close() error
}

// PatternStore holds the pattern catalog
type PatternStore interface {
	// UpsertPattern inserts or replaces a pattern by ID
	UpsertPattern(ctx context.Context, pattern *types.Pattern) error

	// UpsertPatterns writes a batch of patterns in one transaction
	UpsertPatterns(ctx context.Context, patterns []*types.Pattern) error

	// GetPattern returns ErrNotFound for an unknown ID
	GetPattern(ctx context.Context, id string) (*types.Pattern, error)

	// ListPatterns returns every pattern in insertion order
	ListPatterns(ctx context.Context) ([]*types.Pattern, error)

	// ListPatternsByCategory returns patterns in any of the categories,
	// matched case-insensitively
	ListPatternsByCategory(ctx context.Context, categories ...string) ([]*types.Pattern, error)

	// SearchPatterns runs a full-text query over name, category,
	// description and tags, best match first
	SearchPatterns(ctx context.Context, query string, limit int) ([]*types.Pattern, error)

	// ListCategories aggregates pattern counts per category
	ListCategories(ctx context.Context) ([]types.CategoryCount, error)

	// DeletePattern removes a pattern and its embeddings
	DeletePattern(ctx context.Context, id string) error

	// CountPatterns returns the catalog size
	CountPatterns(ctx context.Context) (int, error)
}

// EmbeddingStore persists vectors keyed by (entry, model)
type EmbeddingStore interface {
	// UpsertEmbedding is last-write-wins on (entryID, modelID)
	UpsertEmbedding(ctx context.Context, entryID, modelID string, vector []float32, contentHash string) error

	// ListEmbeddings returns the vectors of one model in insertion order,
	// joined with the pattern fields used by similarity filters
	ListEmbeddings(ctx context.Context, modelID string) ([]types.EmbeddingRecord, error)

	// DeleteEmbedding is not an error when nothing is stored
	DeleteEmbedding(ctx context.Context, entryID, modelID string) error

	// DeleteEmbeddingsByModel removes every vector of one model
	DeleteEmbeddingsByModel(ctx context.Context, modelID string) error

	// CountEmbeddings returns the number of vectors stored for a model
	CountEmbeddings(ctx context.Context, modelID string) (int, error)
}
