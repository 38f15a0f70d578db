package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/embedder"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/vector"
	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

var (
	// ErrIndexInProgress is returned when a run is already executing
	ErrIndexInProgress = errors.New("indexing already in progress")
	// ErrModelMismatch marks a vector produced by a model other than the
	// one the index holds
	ErrModelMismatch = errors.New("embedding model differs from index model")
)

// DefaultBatchSize is the number of patterns embedded per request
const DefaultBatchSize = 32

// Catalog is the source of patterns
type Catalog interface {
	ListPatterns(ctx context.Context) ([]*types.Pattern, error)
}

// Embedder turns texts into vectors, in input order
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]embedder.Embedding, error)
}

// Index is the vector store being maintained
type Index interface {
	ModelID() string
	ContentHashes() map[string]string
	StoreEmbedding(ctx context.Context, entryID string, vec []float32, meta vector.Metadata) error
	DeleteEmbedding(ctx context.Context, entryID string) (bool, error)
}

// CacheInvalidator is purged after every completed run
type CacheInvalidator interface {
	InvalidateCache()
}

// Config contains configuration for the indexer
type Config struct {
	Workers     int // Concurrent batches (default: runtime.NumCPU())
	BatchSize   int // Patterns per embedding request (default: 32)
	Invalidator CacheInvalidator
	Logger      zerolog.Logger
}

// Options controls a single run
type Options struct {
	Force bool // Re-embed every pattern regardless of content hash
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	Total         int           `json:"total"`
	Embedded      int           `json:"embedded"`
	Skipped       int           `json:"skipped"`
	Removed       int           `json:"removed"`
	Failed        int           `json:"failed"`
	Duration      time.Duration `json:"duration"`
	ErrorMessages []string      `json:"errors,omitempty"`
}

// Indexer embeds catalog patterns into the vector index
type Indexer struct {
	catalog     Catalog
	embedder    Embedder
	index       Index
	invalidator CacheInvalidator
	workers     int
	batchSize   int
	log         zerolog.Logger

	lock IndexLock
}

// New creates a new Indexer instance
func New(catalog Catalog, emb Embedder, index Index, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Indexer{
		catalog:     catalog,
		embedder:    emb,
		index:       index,
		invalidator: cfg.Invalidator,
		workers:     cfg.Workers,
		batchSize:   cfg.BatchSize,
		log:         cfg.Logger,
	}
}

// InProgress reports whether a run is executing
func (idx *Indexer) InProgress() bool {
	return idx.lock.Held()
}

// work is one pattern due for embedding
type work struct {
	pattern *types.Pattern
	hash    string
}

// Index brings the vector index up to date with the catalog
func (idx *Indexer) Index(ctx context.Context, opts Options) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	patterns, err := idx.catalog.ListPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	stats.Total = len(patterns)

	stored := idx.index.ContentHashes()
	inCatalog := make(map[string]struct{}, len(patterns))
	pending := make([]work, 0, len(patterns))
	for _, p := range patterns {
		inCatalog[p.ID] = struct{}{}
		hash := p.ContentHash()
		if have, ok := stored[p.ID]; ok && have == hash && !opts.Force {
			stats.Skipped++
			continue
		}
		pending = append(pending, work{pattern: p, hash: hash})
	}

	for id := range stored {
		if _, ok := inCatalog[id]; ok {
			continue
		}
		if _, err := idx.index.DeleteEmbedding(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to remove stale vector %s: %w", id, err)
		}
		stats.Removed++
	}

	if err := idx.embedAll(ctx, pending, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	if idx.invalidator != nil {
		idx.invalidator.InvalidateCache()
	}

	idx.log.Info().
		Int("total", stats.Total).
		Int("embedded", stats.Embedded).
		Int("skipped", stats.Skipped).
		Int("removed", stats.Removed).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("index run complete")
	return stats, nil
}

// embedAll embeds pending in concurrent batches. A failed batch only fails
// its own patterns; a failing index write aborts the run.
func (idx *Indexer) embedAll(ctx context.Context, pending []work, stats *Statistics) error {
	var (
		embedded int32
		failed   int32
		mu       sync.Mutex // Protect stats.ErrorMessages
	)
	fail := func(id string, err error) {
		atomic.AddInt32(&failed, 1)
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", id, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for i := 0; i < len(pending); i += idx.batchSize {
		end := i + idx.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, w := range batch {
				texts[j] = w.pattern.EmbeddingText()
			}

			embs, err := idx.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				for _, w := range batch {
					fail(w.pattern.ID, err)
				}
				return nil
			}

			modelID := idx.index.ModelID()
			for j, w := range batch {
				emb := embs[j]
				if emb.ModelID != modelID {
					idx.log.Warn().
						Str("pattern", w.pattern.ID).
						Str("model", emb.ModelID).
						Str("index_model", modelID).
						Msg("embedding from another model, not stored")
					fail(w.pattern.ID, fmt.Errorf("%w: got %s, index holds %s", ErrModelMismatch, emb.ModelID, modelID))
					continue
				}

				meta := vector.Metadata{
					Category:    w.pattern.Category,
					Complexity:  w.pattern.Complexity,
					Tags:        w.pattern.Tags,
					ContentHash: w.hash,
				}
				if err := idx.index.StoreEmbedding(gctx, w.pattern.ID, emb.Vector, meta); err != nil {
					if errors.Is(err, vector.ErrDimensionMismatch) {
						fail(w.pattern.ID, err)
						continue
					}
					return fmt.Errorf("failed to store vector %s: %w", w.pattern.ID, err)
				}
				atomic.AddInt32(&embedded, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.Embedded = int(embedded)
	stats.Failed = int(failed)
	return nil
}

// Invalidate drops the vector of one pattern so the next run re-embeds it.
// It reports whether a vector was stored.
func (idx *Indexer) Invalidate(ctx context.Context, entryID string) (bool, error) {
	removed, err := idx.index.DeleteEmbedding(ctx, entryID)
	if err != nil {
		return false, err
	}
	if idx.invalidator != nil {
		idx.invalidator.InvalidateCache()
	}
	return removed, nil
}
