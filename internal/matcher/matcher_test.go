package matcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/embedder"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/storage"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/vector"
	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

type fakeCatalog struct {
	patterns []*types.Pattern
	err      error
}

func (c *fakeCatalog) ListPatternsByCategory(_ context.Context, categories ...string) ([]*types.Pattern, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(categories) == 0 {
		return c.patterns, nil
	}
	out := make([]*types.Pattern, 0)
	for _, p := range c.patterns {
		for _, cat := range categories {
			if p.Category == cat {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	modelID string
	err     error
	calls   atomic.Int32
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) (embedder.Embedding, error) {
	e.calls.Add(1)
	if e.err != nil {
		return embedder.Embedding{}, e.err
	}
	return embedder.Embedding{Vector: []float32{1, 0}, ModelID: e.modelID}, nil
}

type fakeIndex struct {
	modelID string
	matches []vector.Match
	err     error
}

func (i *fakeIndex) ModelID() string { return i.modelID }

func (i *fakeIndex) SearchSimilar(_ []float32, _ *vector.SearchFilters, _ int) ([]vector.Match, error) {
	return i.matches, i.err
}

func catalogPatterns() []*types.Pattern {
	return []*types.Pattern{
		{
			ID:          "factory-method",
			Name:        "Factory Method",
			Category:    "Creational",
			Description: "Let subclasses decide which product to create",
			Tags:        []string{"inheritance", "go"},
		},
		{
			ID:          "observer",
			Name:        "Observer",
			Category:    "Behavioral",
			Description: "Notify subscribers when state changes",
			Tags:        []string{"events"},
		},
		{
			ID:          "singleton",
			Name:        "Singleton",
			Category:    "Creational",
			Description: "Exactly one instance",
		},
	}
}

func newTestMatcher(t *testing.T, cat Catalog, emb Embedder, idx VectorIndex) *Matcher {
	t.Helper()
	m, err := New(cat, emb, idx, Config{})
	require.NoError(t, err)
	return m
}

func ids(recs []types.Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Pattern.ID
	}
	return out
}

func TestFuseScores(t *testing.T) {
	assert.InDelta(t, 0.68, fuseScores(0.8, 0.4, 0.7, 0.3), 1e-12)
	assert.InDelta(t, 0.56, fuseScores(0.8, 0, 0.7, 0.3), 1e-12)
	assert.InDelta(t, 0.4, fuseScores(0, 0.4, 0.5, 0.5)*2, 1e-12)
	assert.Equal(t, 0.0, fuseScores(1, 1, 0, 0))
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"Create objects, without naming the class!", []string{"create", "objects", "without", "naming", "the", "class"}},
		{"a to of an", []string{}},
		{"factory-method Factory", []string{"factory", "method"}},
		{"  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.query))
		})
	}
}

func TestScoreKeywords(t *testing.T) {
	p := catalogPatterns()[0]

	tests := []struct {
		name    string
		tokens  []string
		want    float64
		reasons int
	}{
		{"name only", []string{"factory"}, 0.3, 1},
		{"name and category", []string{"factory", "method", "creational"}, 0.8, 3},
		{"description", []string{"subclasses"}, 0.1, 1},
		{"tag", []string{"inheritance"}, 0.1, 1},
		{"capped", []string{"factory", "method", "creational", "product", "create"}, 0.99, 5},
		{"no hit", []string{"visitor"}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := scoreKeywords(p, tt.tokens)
			assert.InDelta(t, tt.want, hit.score, 1e-9)
			assert.Len(t, hit.reasons, tt.reasons)
		})
	}

	assert.Contains(t, scoreKeywords(p, []string{"factory"}).reasons, "pattern name contains 'factory'")
}

func TestFindMatchingPatternsHybrid(t *testing.T) {
	idx := &fakeIndex{modelID: "m", matches: []vector.Match{
		{EntryID: "observer", Score: 0.8, Rank: 1},
		{EntryID: "factory-method", Score: 0.5, Rank: 2},
	}}
	m := newTestMatcher(t, &fakeCatalog{patterns: catalogPatterns()}, &fakeEmbedder{modelID: "m"}, idx)

	recs, err := m.FindMatchingPatterns(context.Background(), Request{Query: "factory"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// observer: 0.7*0.8 = 0.56, factory: 0.7*0.5 + 0.3*0.3 = 0.44
	assert.Equal(t, []string{"observer", "factory-method"}, ids(recs))

	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, types.MatchSemantic, recs[0].MatchType)
	assert.InDelta(t, 0.56, recs[0].Confidence, 1e-9)
	assert.Equal(t, []string{"semantic similarity: 80.0%"}, recs[0].Reasons)

	assert.Equal(t, 2, recs[1].Rank)
	assert.Equal(t, types.MatchHybrid, recs[1].MatchType)
	assert.InDelta(t, 0.44, recs[1].ScoreBreakdown.Final, 1e-9)
	assert.InDelta(t, 0.5, recs[1].ScoreBreakdown.Semantic, 1e-9)
	assert.InDelta(t, 0.3, recs[1].ScoreBreakdown.Keyword, 1e-9)
	assert.Equal(t, []string{"semantic similarity: 50.0%", "pattern name contains 'factory'"}, recs[1].Reasons)

	for _, r := range recs {
		assert.NoError(t, r.Validate())
	}
}

func TestFindMatchingPatternsTiesKeepDiscoveryOrder(t *testing.T) {
	idx := &fakeIndex{modelID: "m", matches: []vector.Match{
		{EntryID: "singleton", Score: 0.5, Rank: 1},
		{EntryID: "observer", Score: 0.5, Rank: 2},
	}}
	m := newTestMatcher(t, &fakeCatalog{patterns: catalogPatterns()}, &fakeEmbedder{modelID: "m"}, idx)

	recs, err := m.FindMatchingPatterns(context.Background(), Request{Query: "nothing lexical"})
	require.NoError(t, err)
	assert.Equal(t, []string{"singleton", "observer"}, ids(recs))
}

func TestFindMatchingPatternsMaxResults(t *testing.T) {
	idx := &fakeIndex{modelID: "m", matches: []vector.Match{
		{EntryID: "observer", Score: 0.9, Rank: 1},
		{EntryID: "singleton", Score: 0.6, Rank: 2},
		{EntryID: "factory-method", Score: 0.4, Rank: 3},
	}}
	m := newTestMatcher(t, &fakeCatalog{patterns: catalogPatterns()}, &fakeEmbedder{modelID: "m"}, idx)

	recs, err := m.FindMatchingPatterns(context.Background(), Request{Query: "anything", MaxResults: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"observer", "singleton"}, ids(recs))
	assert.Equal(t, 2, recs[1].Rank)
}

func TestFindMatchingPatternsSkipsOutOfScopeVectors(t *testing.T) {
	idx := &fakeIndex{modelID: "m", matches: []vector.Match{
		{EntryID: "deleted-pattern", Score: 0.99, Rank: 1},
		{EntryID: "observer", Score: 0.5, Rank: 2},
	}}
	m := newTestMatcher(t, &fakeCatalog{patterns: catalogPatterns()}, &fakeEmbedder{modelID: "m"}, idx)

	recs, err := m.FindMatchingPatterns(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, []string{"observer"}, ids(recs))
}

func TestFindMatchingPatternsLanguage(t *testing.T) {
	m := newTestMatcher(t, &fakeCatalog{patterns: catalogPatterns()}, &fakeEmbedder{modelID: "m"}, &fakeIndex{modelID: "m"})

	recs, err := m.FindMatchingPatterns(context.Background(), Request{Query: "factory", Language: "Go"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Reasons, "commonly used in Go")
	assert.InDelta(t, 0.09, recs[0].Confidence, 1e-9)
}

func TestFindMatchingPatternsSemanticFailureDegrades(t *testing.T) {
	tests := []struct {
		name string
		emb  *fakeEmbedder
		idx  *fakeIndex
	}{
		{"embedder error", &fakeEmbedder{err: errors.New("backend down")}, &fakeIndex{modelID: "m"}},
		{"model mismatch", &fakeEmbedder{modelID: embedder.HashModelID}, &fakeIndex{modelID: "ollama/all-minilm"}},
		{"index error", &fakeEmbedder{modelID: "m"}, &fakeIndex{modelID: "m", err: vector.ErrDimensionMismatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatcher(t, &fakeCatalog{patterns: catalogPatterns()}, tt.emb, tt.idx)

			recs, err := m.FindMatchingPatterns(context.Background(), Request{Query: "factory method"})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "factory-method", recs[0].Pattern.ID)
			assert.Equal(t, types.MatchKeyword, recs[0].MatchType)
			assert.Equal(t, 0.0, recs[0].ScoreBreakdown.Semantic)
			// keyword 0.6, semantic missing
			assert.InDelta(t, 0.3*0.6, recs[0].Confidence, 1e-9)

			// Degraded results are not cached
			_, err = m.FindMatchingPatterns(context.Background(), Request{Query: "factory method"})
			require.NoError(t, err)
			assert.Equal(t, 0, m.CacheStats().Size)
		})
	}
}

func TestFindMatchingPatternsKeywordFailureIsFatal(t *testing.T) {
	cat := &fakeCatalog{err: storage.ErrStoreUnavailable}
	m := newTestMatcher(t, cat, &fakeEmbedder{modelID: "m"}, &fakeIndex{modelID: "m"})

	recs, err := m.FindMatchingPatterns(context.Background(), Request{Query: "factory"})
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Nil(t, recs)
}

func TestFindMatchingPatternsEmptyQuery(t *testing.T) {
	m := newTestMatcher(t, &fakeCatalog{}, &fakeEmbedder{}, &fakeIndex{})

	_, err := m.FindMatchingPatterns(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestFindMatchingPatternsCache(t *testing.T) {
	emb := &fakeEmbedder{modelID: "m"}
	idx := &fakeIndex{modelID: "m", matches: []vector.Match{{EntryID: "observer", Score: 0.7, Rank: 1}}}
	m := newTestMatcher(t, &fakeCatalog{patterns: catalogPatterns()}, emb, idx)
	ctx := context.Background()

	first, err := m.FindMatchingPatterns(ctx, Request{Query: "observer", Categories: []string{"Behavioral", "Creational"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), emb.calls.Load())

	// Category order and case do not matter
	second, err := m.FindMatchingPatterns(ctx, Request{Query: "observer", Categories: []string{"creational", "behavioral"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), emb.calls.Load())
	assert.Equal(t, first, second)

	// Cached values are copies
	second[0].Reasons[0] = "mutated"
	third, err := m.FindMatchingPatterns(ctx, Request{Query: "observer", Categories: []string{"Behavioral", "Creational"}})
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", third[0].Reasons[0])

	// A different limit is a different request
	_, err = m.FindMatchingPatterns(ctx, Request{Query: "observer", Categories: []string{"Behavioral", "Creational"}, MaxResults: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), emb.calls.Load())

	stats := m.CacheStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, 2, stats.Size)

	m.InvalidateCache()
	assert.Equal(t, 0, m.CacheStats().Size)
	_, err = m.FindMatchingPatterns(ctx, Request{Query: "observer", Categories: []string{"Behavioral", "Creational"}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), emb.calls.Load())
}

func TestRequestKey(t *testing.T) {
	base := Request{Query: "q", Categories: []string{"A", "b"}, MaxResults: 5, Language: "go"}
	assert.Equal(t, requestKey(base), requestKey(Request{Query: "q", Categories: []string{"B", "a"}, MaxResults: 5, Language: "Go"}))
	assert.NotEqual(t, requestKey(base), requestKey(Request{Query: "q2", Categories: []string{"A", "b"}, MaxResults: 5, Language: "go"}))
	assert.NotEqual(t, requestKey(base), requestKey(Request{Query: "q", Categories: []string{"A"}, MaxResults: 5, Language: "go"}))
	assert.NotEqual(t, requestKey(base), requestKey(Request{Query: "q", Categories: []string{"A", "b"}, MaxResults: 5, Language: "rust"}))
}

func TestNewRejectsNegativeWeights(t *testing.T) {
	_, err := New(&fakeCatalog{}, nil, nil, Config{SemanticWeight: -1, KeywordWeight: 1})
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestEndToEndFactoryMethod(t *testing.T) {
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "patterns.db"))
	require.NoError(t, err)
	defer store.Close()

	patterns := []*types.Pattern{
		{ID: "factory-method", Name: "Factory Method", Category: "Creational", Description: "Defer instantiation to subclasses"},
		{ID: "observer", Name: "Observer", Category: "Behavioral", Description: "Publish state changes to subscribers"},
	}
	require.NoError(t, store.UpsertPatterns(ctx, patterns))

	svc := embedder.NewService(nil, embedder.ServiceConfig{})
	modelID, err := svc.ModelID(ctx)
	require.NoError(t, err)
	assert.Equal(t, embedder.HashModelID, modelID)

	engine, err := vector.NewEngine(vector.Config{
		ModelID:             modelID,
		Dimensions:          embedder.DefaultDimensions,
		SimilarityThreshold: 0.3,
		Persister:           store,
	})
	require.NoError(t, err)

	query := "Factory Method"
	fallback := embedder.NewDeterministicStrategy(embedder.DefaultDimensions)
	require.NoError(t, engine.StoreEmbedding(ctx, "factory-method", fallback.Embed(query), vector.Metadata{Category: "Creational"}))
	require.NoError(t, engine.StoreEmbedding(ctx, "observer", fallback.Embed(patterns[1].EmbeddingText()), vector.Metadata{Category: "Behavioral"}))

	m, err := New(store, svc, engine, Config{})
	require.NoError(t, err)

	recs, err := m.FindMatchingPatterns(ctx, Request{Query: query})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "factory-method", recs[0].Pattern.ID)
	assert.Equal(t, 1, recs[0].Rank)
	assert.InDelta(t, 1.0, recs[0].ScoreBreakdown.Semantic, 1e-6)
	assert.Equal(t, types.MatchHybrid, recs[0].MatchType)
}
