package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

// Common errors
var (
	ErrDimensionMismatch   = errors.New("vector dimension mismatch")
	ErrInvalidClusterCount = errors.New("invalid cluster count")
	ErrEmptyEntryID        = errors.New("entry id cannot be empty")
)

// Persister stores vectors outside the process. The engine writes through
// to it and reads from it only in Load.
type Persister interface {
	UpsertEmbedding(ctx context.Context, entryID, modelID string, vector []float32, contentHash string) error
	ListEmbeddings(ctx context.Context, modelID string) ([]types.EmbeddingRecord, error)
	DeleteEmbedding(ctx context.Context, entryID, modelID string) error
	DeleteEmbeddingsByModel(ctx context.Context, modelID string) error
}

// Config configures an Engine
type Config struct {
	ModelID             string
	Dimensions          int
	SimilarityThreshold float64   // Scores below this are dropped from searches
	Persister           Persister // Optional
	Logger              zerolog.Logger
}

// Metadata is the per-entry data used by search filters
type Metadata struct {
	Category    string
	Complexity  string
	Tags        []string
	ContentHash string
}

// SearchFilters narrows SearchSimilar. Empty fields do not filter.
type SearchFilters struct {
	Categories []string // Any of, case-insensitive
	Complexity string   // Exact, case-insensitive
	Tags       []string // Any of, case-insensitive
	ExcludeIDs []string
}

// Match is one search hit
type Match struct {
	EntryID string  `json:"entry_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"` // 1-based
}

// Cluster is one k-means group
type Cluster struct {
	Centroid  []float32 `json:"centroid"`
	MemberIDs []string  `json:"member_ids"`
}

type entry struct {
	id     string
	vector []float32
	meta   Metadata
}

// Engine holds the vectors of one model in memory and answers exact
// similarity queries by linear scan. Entries keep the position of their
// first insertion, which makes tie order deterministic.
type Engine struct {
	threshold float64
	persist   Persister
	log       zerolog.Logger

	mu      sync.RWMutex
	modelID string
	dims    int
	entries []*entry
	index   map[string]int
}

// NewEngine creates an empty engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrDimensionMismatch, cfg.Dimensions)
	}
	return &Engine{
		modelID:   cfg.ModelID,
		dims:      cfg.Dimensions,
		threshold: cfg.SimilarityThreshold,
		persist:   cfg.Persister,
		log:       cfg.Logger,
		index:     make(map[string]int),
	}, nil
}

// ModelID returns the model whose vectors this engine holds
func (e *Engine) ModelID() string {
	modelID, _ := e.binding()
	return modelID
}

// Dimensions returns the required vector length
func (e *Engine) Dimensions() int {
	_, dims := e.binding()
	return dims
}

func (e *Engine) binding() (string, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modelID, e.dims
}

// Threshold returns the similarity threshold
func (e *Engine) Threshold() float64 { return e.threshold }

// Load replaces the in-memory set with the persisted vectors of this model.
// Persisted vectors of the wrong length are skipped with a warning.
func (e *Engine) Load(ctx context.Context) (int, error) {
	if e.persist == nil {
		return 0, nil
	}
	modelID, dims := e.binding()
	return e.load(ctx, modelID, dims)
}

// Rebind switches the engine to another model and loads that model's
// persisted vectors. On error the engine keeps its current model and set.
func (e *Engine) Rebind(ctx context.Context, modelID string, dims int) (int, error) {
	if dims <= 0 {
		return 0, fmt.Errorf("%w: dimensions must be positive, got %d", ErrDimensionMismatch, dims)
	}
	n, err := e.load(ctx, modelID, dims)
	if err != nil {
		return 0, err
	}
	e.log.Info().Str("model", modelID).Int("dimensions", dims).Int("vectors", n).Msg("vector index rebound")
	return n, nil
}

func (e *Engine) load(ctx context.Context, modelID string, dims int) (int, error) {
	var records []types.EmbeddingRecord
	if e.persist != nil {
		var err error
		records, err = e.persist.ListEmbeddings(ctx, modelID)
		if err != nil {
			return 0, fmt.Errorf("load embeddings: %w", err)
		}
	}

	entries := make([]*entry, 0, len(records))
	index := make(map[string]int, len(records))
	for _, r := range records {
		if len(r.Vector) != dims {
			e.log.Warn().
				Str("entry_id", r.EntryID).
				Int("dimensions", len(r.Vector)).
				Int("expected", dims).
				Msg("skipping persisted vector with wrong dimensions")
			continue
		}
		if pos, ok := index[r.EntryID]; ok {
			entries[pos].vector = r.Vector
			continue
		}
		index[r.EntryID] = len(entries)
		entries = append(entries, &entry{
			id:     r.EntryID,
			vector: r.Vector,
			meta: Metadata{
				Category:    r.Category,
				Complexity:  r.Complexity,
				Tags:        r.Tags,
				ContentHash: r.ContentHash,
			},
		})
	}

	e.mu.Lock()
	e.modelID = modelID
	e.dims = dims
	e.entries = entries
	e.index = index
	e.mu.Unlock()
	return len(entries), nil
}

// StoreEmbedding stores or replaces the vector for entryID. A vector of the
// wrong length is rejected, never padded or truncated.
func (e *Engine) StoreEmbedding(ctx context.Context, entryID string, vec []float32, meta Metadata) error {
	if entryID == "" {
		return ErrEmptyEntryID
	}
	modelID, dims := e.binding()
	if len(vec) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dims)
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	meta.Tags = append([]string(nil), meta.Tags...)

	if e.persist != nil {
		if err := e.persist.UpsertEmbedding(ctx, entryID, modelID, stored, meta.ContentHash); err != nil {
			return fmt.Errorf("persist embedding %s: %w", entryID, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.modelID != modelID {
		// Rebound while persisting; the vector belongs to the old model
		return nil
	}
	if pos, ok := e.index[entryID]; ok {
		e.entries[pos] = &entry{id: entryID, vector: stored, meta: meta}
		return nil
	}
	e.index[entryID] = len(e.entries)
	e.entries = append(e.entries, &entry{id: entryID, vector: stored, meta: meta})
	return nil
}

// GetEmbedding returns a copy of the stored vector
func (e *Engine) GetEmbedding(entryID string) ([]float32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos, ok := e.index[entryID]
	if !ok {
		return nil, false
	}
	out := make([]float32, e.dims)
	copy(out, e.entries[pos].vector)
	return out, true
}

// ContentHashes returns the content hash recorded for every stored entry
func (e *Engine) ContentHashes() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]string, len(e.entries))
	for _, en := range e.entries {
		out[en.id] = en.meta.ContentHash
	}
	return out
}

// DeleteEmbedding removes entryID and reports whether it was stored
func (e *Engine) DeleteEmbedding(ctx context.Context, entryID string) (bool, error) {
	if e.persist != nil {
		if err := e.persist.DeleteEmbedding(ctx, entryID, e.ModelID()); err != nil {
			return false, fmt.Errorf("delete embedding %s: %w", entryID, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.index[entryID]
	if !ok {
		return false, nil
	}
	e.entries = append(e.entries[:pos], e.entries[pos+1:]...)
	delete(e.index, entryID)
	for i := pos; i < len(e.entries); i++ {
		e.index[e.entries[i].id] = i
	}
	return true, nil
}

// Count returns the number of stored vectors
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

// Clear removes every vector of this model, persisted ones included
func (e *Engine) Clear(ctx context.Context) error {
	if e.persist != nil {
		if err := e.persist.DeleteEmbeddingsByModel(ctx, e.ModelID()); err != nil {
			return fmt.Errorf("clear embeddings: %w", err)
		}
	}
	e.mu.Lock()
	e.entries = nil
	e.index = make(map[string]int)
	e.mu.Unlock()
	return nil
}

// SearchSimilar scores every stored vector that passes filters against
// query, sorts by score descending, drops scores below the threshold and
// keeps the first limit hits. A non-positive limit keeps all of them.
func (e *Engine) SearchSimilar(query []float32, filters *SearchFilters, limit int) ([]Match, error) {
	match := compileFilters(filters)

	e.mu.RLock()
	if len(query) != e.dims {
		dims := e.dims
		e.mu.RUnlock()
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), dims)
	}
	scored := make([]Match, 0, len(e.entries))
	for _, en := range e.entries {
		if !match(en) {
			continue
		}
		scored = append(scored, Match{EntryID: en.id, Score: CosineSimilarity(query, en.vector)})
	}
	e.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	kept := scored[:0]
	for _, m := range scored {
		if m.Score < e.threshold {
			// Sorted, so nothing after this passes either
			break
		}
		kept = append(kept, m)
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}
	return kept, nil
}

func compileFilters(f *SearchFilters) func(*entry) bool {
	if f == nil {
		return func(*entry) bool { return true }
	}

	categories := lowerSet(f.Categories)
	tags := lowerSet(f.Tags)
	excluded := make(map[string]struct{}, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	complexity := strings.ToLower(strings.TrimSpace(f.Complexity))

	return func(en *entry) bool {
		if _, skip := excluded[en.id]; skip {
			return false
		}
		if len(categories) > 0 {
			if _, ok := categories[strings.ToLower(en.meta.Category)]; !ok {
				return false
			}
		}
		if complexity != "" && strings.ToLower(en.meta.Complexity) != complexity {
			return false
		}
		if len(tags) > 0 {
			found := false
			for _, t := range en.meta.Tags {
				if _, ok := tags[strings.ToLower(t)]; ok {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
