package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/cache"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/embedder"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/vector"
	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

// Defaults
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
	DefaultMinConfidence  = 0.1
	DefaultMaxResults     = 5
	DefaultCacheTTL       = 30 * time.Minute
	DefaultCacheSize      = 1000

	defaultReason = "general relevance to the query"
)

var (
	// ErrEmptyQuery is returned for a blank query
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidWeights is returned when the leg weights cannot be combined
	ErrInvalidWeights = errors.New("invalid scoring weights")
	// ErrModelMismatch means the query vector and the indexed vectors come
	// from different models and cannot be compared
	ErrModelMismatch = errors.New("query embedding model differs from index model")
)

// Catalog is the part of the store the keyword leg reads
type Catalog interface {
	ListPatternsByCategory(ctx context.Context, categories ...string) ([]*types.Pattern, error)
}

// Embedder produces query vectors
type Embedder interface {
	Embed(ctx context.Context, text string) (embedder.Embedding, error)
}

// VectorIndex answers similarity queries for one model
type VectorIndex interface {
	ModelID() string
	SearchSimilar(query []float32, filters *vector.SearchFilters, limit int) ([]vector.Match, error)
}

// Request is one pattern search
type Request struct {
	Query      string
	Categories []string
	MaxResults int
	Language   string
}

// Config configures a Matcher. Zero values take the defaults above; both
// weights zero means default weights. MinConfidence has no zero setting:
// 0 selects DefaultMinConfidence.
type Config struct {
	SemanticWeight float64
	KeywordWeight  float64
	MinConfidence  float64
	MaxResults     int
	CacheTTL       time.Duration
	CacheSize      int
	Logger         zerolog.Logger
}

// Matcher fuses keyword and semantic relevance into ranked recommendations
type Matcher struct {
	catalog  Catalog
	embedder Embedder
	index    VectorIndex

	semanticWeight float64
	keywordWeight  float64
	minConfidence  float64
	maxResults     int

	cache *cache.Cache[[]types.Recommendation]
	log   zerolog.Logger
}

// New creates a Matcher
func New(catalog Catalog, emb Embedder, index VectorIndex, cfg Config) (*Matcher, error) {
	if cfg.SemanticWeight == 0 && cfg.KeywordWeight == 0 {
		cfg.SemanticWeight = DefaultSemanticWeight
		cfg.KeywordWeight = DefaultKeywordWeight
	}
	if cfg.SemanticWeight < 0 || cfg.KeywordWeight < 0 {
		return nil, fmt.Errorf("%w: weights must not be negative", ErrInvalidWeights)
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	return &Matcher{
		catalog:        catalog,
		embedder:       emb,
		index:          index,
		semanticWeight: cfg.SemanticWeight,
		keywordWeight:  cfg.KeywordWeight,
		minConfidence:  cfg.MinConfidence,
		maxResults:     cfg.MaxResults,
		cache: cache.New(cache.Options[[]types.Recommendation]{
			MaxSize:    cfg.CacheSize,
			DefaultTTL: cfg.CacheTTL,
			Clone:      cloneRecommendations,
		}),
		log: cfg.Logger,
	}, nil
}

// candidate accumulates both legs' evidence for one pattern
type candidate struct {
	pattern  *types.Pattern
	semantic float64
	keyword  float64
	hasSem   bool
	hasKey   bool
	reasons  []string
}

// keywordResult is the keyword leg's output: every pattern in scope, in
// catalog order, and the hits that cleared minConfidence
type keywordResult struct {
	patterns []*types.Pattern
	hits     map[string]keywordHit
}

// FindMatchingPatterns ranks catalog patterns against req. A failing
// semantic leg degrades to keyword-only results; a failing catalog is
// returned as an error.
func (m *Matcher) FindMatchingPatterns(ctx context.Context, req Request) ([]types.Recommendation, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.MaxResults <= 0 {
		req.MaxResults = m.maxResults
	}

	key := requestKey(req)
	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}

	var (
		semantic []vector.Match
		semErr   error
		keyword  keywordResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semantic, semErr = m.semanticLeg(gctx, req)
		return nil
	})
	g.Go(func() error {
		var err error
		keyword, err = m.keywordLeg(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	degraded := semErr != nil
	if degraded {
		m.log.Warn().Err(semErr).Str("query", req.Query).Msg("semantic leg failed, keyword-only results")
		semantic = nil
	}

	recs := m.fuse(req, semantic, keyword)
	if !degraded {
		m.cache.Set(key, recs)
	}
	return recs, nil
}

func (m *Matcher) semanticLeg(ctx context.Context, req Request) ([]vector.Match, error) {
	if m.embedder == nil || m.index == nil {
		return nil, errors.New("semantic search not configured")
	}
	emb, err := m.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if emb.ModelID != m.index.ModelID() {
		return nil, fmt.Errorf("%w: query %s, index %s", ErrModelMismatch, emb.ModelID, m.index.ModelID())
	}
	return m.index.SearchSimilar(emb.Vector, &vector.SearchFilters{Categories: req.Categories}, 0)
}

func (m *Matcher) keywordLeg(ctx context.Context, req Request) (keywordResult, error) {
	patterns, err := m.catalog.ListPatternsByCategory(ctx, req.Categories...)
	if err != nil {
		return keywordResult{}, err
	}

	tokens := tokenize(req.Query)
	hits := make(map[string]keywordHit)
	for _, p := range patterns {
		hit := scoreKeywords(p, tokens)
		if hit.score >= m.minConfidence {
			hits[p.ID] = hit
		}
	}
	return keywordResult{patterns: patterns, hits: hits}, nil
}

// fuse merges both legs. Discovery order is semantic hits by rank, then
// keyword-only hits in catalog order; the stable sort keeps it for ties.
func (m *Matcher) fuse(req Request, semantic []vector.Match, keyword keywordResult) []types.Recommendation {
	byID := make(map[string]*types.Pattern, len(keyword.patterns))
	for _, p := range keyword.patterns {
		byID[p.ID] = p
	}

	order := make([]*candidate, 0, len(semantic)+len(keyword.hits))
	seen := make(map[string]*candidate)

	for _, match := range semantic {
		p, ok := byID[match.EntryID]
		if !ok {
			// Vector for a pattern no longer in scope
			continue
		}
		c := &candidate{pattern: p, semantic: match.Score, hasSem: true}
		c.reasons = append(c.reasons, fmt.Sprintf("semantic similarity: %.1f%%", match.Score*100))
		seen[p.ID] = c
		order = append(order, c)
	}

	for _, p := range keyword.patterns {
		hit, ok := keyword.hits[p.ID]
		if !ok {
			continue
		}
		c, exists := seen[p.ID]
		if !exists {
			c = &candidate{pattern: p}
			seen[p.ID] = c
			order = append(order, c)
		}
		c.keyword = hit.score
		c.hasKey = true
		c.reasons = append(c.reasons, hit.reasons...)
	}

	recs := make([]types.Recommendation, 0, len(order))
	for _, c := range order {
		final := fuseScores(c.semantic, c.keyword, m.semanticWeight, m.keywordWeight)
		reasons := c.reasons
		if req.Language != "" && c.pattern.HasTag(req.Language) {
			reasons = append(reasons, fmt.Sprintf("commonly used in %s", req.Language))
		}
		if len(reasons) == 0 {
			reasons = []string{defaultReason}
		}

		recs = append(recs, types.Recommendation{
			Pattern:    *c.pattern,
			Confidence: final,
			MatchType:  matchType(c.hasSem, c.hasKey),
			Reasons:    reasons,
			ScoreBreakdown: types.ScoreBreakdown{
				Semantic: c.semantic,
				Keyword:  c.keyword,
				Final:    final,
			},
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].ScoreBreakdown.Final > recs[j].ScoreBreakdown.Final
	})
	if len(recs) > req.MaxResults {
		recs = recs[:req.MaxResults]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

// fuseScores is the weighted mean of both legs; a missing leg scores 0
func fuseScores(semantic, keyword, semanticWeight, keywordWeight float64) float64 {
	total := semanticWeight + keywordWeight
	if total == 0 {
		return 0
	}
	return (semanticWeight*semantic + keywordWeight*keyword) / total
}

func matchType(semantic, keyword bool) types.MatchType {
	switch {
	case semantic && keyword:
		return types.MatchHybrid
	case semantic:
		return types.MatchSemantic
	default:
		return types.MatchKeyword
	}
}

// InvalidateCache drops every cached result
func (m *Matcher) InvalidateCache() {
	m.cache.Clear()
}

// CacheStats reports result cache counters
func (m *Matcher) CacheStats() cache.Stats {
	return m.cache.Stats()
}

// requestKey is a stable hash of the request fields that affect results.
// Categories are compared case-insensitively and in any order.
func requestKey(req Request) string {
	categories := make([]string, 0, len(req.Categories))
	for _, c := range req.Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)

	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(strings.Join(categories, ","))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.MaxResults))
	data.WriteString("|")
	data.WriteString(strings.ToLower(req.Language))

	sum := sha256.Sum256([]byte(data.String()))
	return hex.EncodeToString(sum[:])
}

func cloneRecommendations(recs []types.Recommendation) []types.Recommendation {
	if recs == nil {
		return nil
	}
	out := make([]types.Recommendation, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
