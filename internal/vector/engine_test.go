package vector

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

// memPersister is an in-memory Persister
type memPersister struct {
	records []types.EmbeddingRecord
	failErr error
}

func (m *memPersister) UpsertEmbedding(_ context.Context, entryID, modelID string, vec []float32, hash string) error {
	if m.failErr != nil {
		return m.failErr
	}
	for i, r := range m.records {
		if r.EntryID == entryID && r.ModelID == modelID {
			m.records[i].Vector = vec
			m.records[i].ContentHash = hash
			return nil
		}
	}
	m.records = append(m.records, types.EmbeddingRecord{EntryID: entryID, ModelID: modelID, Vector: vec, ContentHash: hash})
	return nil
}

func (m *memPersister) ListEmbeddings(_ context.Context, modelID string) ([]types.EmbeddingRecord, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	var out []types.EmbeddingRecord
	for _, r := range m.records {
		if r.ModelID == modelID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memPersister) DeleteEmbedding(_ context.Context, entryID, modelID string) error {
	if m.failErr != nil {
		return m.failErr
	}
	kept := m.records[:0]
	for _, r := range m.records {
		if r.EntryID != entryID || r.ModelID != modelID {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *memPersister) DeleteEmbeddingsByModel(_ context.Context, modelID string) error {
	if m.failErr != nil {
		return m.failErr
	}
	kept := m.records[:0]
	for _, r := range m.records {
		if r.ModelID != modelID {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func newTestEngine(t *testing.T, dims int, threshold float64) *Engine {
	t.Helper()
	eng, err := NewEngine(Config{ModelID: "test-model", Dimensions: dims, SimilarityThreshold: threshold})
	require.NoError(t, err)
	return eng
}

func TestCosineSimilarity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		v := make([]float32, 32)
		neg := make([]float32, 32)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
			neg[j] = -v[j]
		}
		assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
		assert.InDelta(t, -1.0, CosineSimilarity(v, neg), 1e-9)
	}

	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero norm")
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 1}), "length mismatch")
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-12)
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestNewEngineRejectsBadDimensions(t *testing.T) {
	_, err := NewEngine(Config{Dimensions: 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStoreEmbedding(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 3, 0)

	assert.ErrorIs(t, eng.StoreEmbedding(ctx, "a", []float32{1, 2}, Metadata{}), ErrDimensionMismatch)
	assert.ErrorIs(t, eng.StoreEmbedding(ctx, "a", []float32{1, 2, 3, 4}, Metadata{}), ErrDimensionMismatch)
	assert.ErrorIs(t, eng.StoreEmbedding(ctx, "", []float32{1, 2, 3}, Metadata{}), ErrEmptyEntryID)
	assert.Equal(t, 0, eng.Count())

	in := []float32{1, 2, 3}
	require.NoError(t, eng.StoreEmbedding(ctx, "a", in, Metadata{}))
	in[0] = 99

	got, ok := eng.GetEmbedding("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got)
	got[1] = 42

	again, _ := eng.GetEmbedding("a")
	assert.Equal(t, []float32{1, 2, 3}, again)

	// Last write wins
	require.NoError(t, eng.StoreEmbedding(ctx, "a", []float32{3, 2, 1}, Metadata{}))
	again, _ = eng.GetEmbedding("a")
	assert.Equal(t, []float32{3, 2, 1}, again)
	assert.Equal(t, 1, eng.Count())

	_, ok = eng.GetEmbedding("missing")
	assert.False(t, ok)
}

func TestDeleteEmbedding(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 2, -1)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, eng.StoreEmbedding(ctx, id, []float32{1, 1}, Metadata{}))
	}

	removed, err := eng.DeleteEmbedding(ctx, "b")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = eng.DeleteEmbedding(ctx, "b")
	require.NoError(t, err)
	assert.False(t, removed)

	matches, err := eng.SearchSimilar([]float32{1, 1}, nil, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].EntryID)
	assert.Equal(t, "c", matches[1].EntryID)

	_, ok := eng.GetEmbedding("c")
	assert.True(t, ok, "index must follow the shifted slice")
}

func TestSearchSimilarOrderingAndRanks(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 2, 0)

	require.NoError(t, eng.StoreEmbedding(ctx, "orthogonal", []float32{0, 1}, Metadata{}))
	require.NoError(t, eng.StoreEmbedding(ctx, "exact", []float32{2, 0}, Metadata{}))
	require.NoError(t, eng.StoreEmbedding(ctx, "close", []float32{1, 0.2}, Metadata{}))
	require.NoError(t, eng.StoreEmbedding(ctx, "opposite", []float32{-1, 0}, Metadata{}))

	matches, err := eng.SearchSimilar([]float32{1, 0}, nil, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3, "negative score is below threshold 0")

	assert.Equal(t, "exact", matches[0].EntryID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "close", matches[1].EntryID)
	assert.Equal(t, "orthogonal", matches[2].EntryID)
	for i, m := range matches {
		assert.Equal(t, i+1, m.Rank)
	}

	limited, err := eng.SearchSimilar([]float32{1, 0}, nil, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, 2, limited[1].Rank)

	_, err = eng.SearchSimilar([]float32{1, 0, 0}, nil, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchSimilarNegativeScoresWithoutClamp(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 2, -1)
	require.NoError(t, eng.StoreEmbedding(ctx, "opposite", []float32{-1, 0}, Metadata{}))

	matches, err := eng.SearchSimilar([]float32{1, 0}, nil, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, -1.0, matches[0].Score, 1e-9)
}

func TestSearchSimilarTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 2, 0)

	ids := []string{"delta", "alpha", "charlie", "bravo"}
	for _, id := range ids {
		require.NoError(t, eng.StoreEmbedding(ctx, id, []float32{1, 1}, Metadata{}))
	}
	// Replacing keeps the original slot
	require.NoError(t, eng.StoreEmbedding(ctx, "delta", []float32{1, 1}, Metadata{Category: "changed"}))

	for run := 0; run < 3; run++ {
		matches, err := eng.SearchSimilar([]float32{1, 1}, nil, 0)
		require.NoError(t, err)
		got := make([]string, len(matches))
		for i, m := range matches {
			got[i] = m.EntryID
		}
		assert.Equal(t, ids, got)
	}
}

func TestSearchSimilarThresholdNeverLeaks(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	const dims = 8

	eng := newTestEngine(t, dims, 0.9)
	query := make([]float32, dims)
	for i := range query {
		query[i] = float32(rng.NormFloat64())
	}

	vectors := map[string][]float32{}
	for i := 0; i < 300; i++ {
		v := make([]float32, dims)
		for j := range v {
			// Mix of near-query and random vectors so both sides of 0.9 occur
			if i%3 == 0 {
				v[j] = query[j] + float32(rng.NormFloat64()*0.2)
			} else {
				v[j] = float32(rng.NormFloat64())
			}
		}
		id := string(rune('A'+i%26)) + string(rune('a'+i/26))
		vectors[id] = v
		require.NoError(t, eng.StoreEmbedding(ctx, id, v, Metadata{}))
	}

	matches, err := eng.SearchSimilar(query, nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	returned := map[string]bool{}
	for _, m := range matches {
		returned[m.EntryID] = true
		assert.GreaterOrEqual(t, CosineSimilarity(query, vectors[m.EntryID]), 0.9)
	}
	for id, v := range vectors {
		if CosineSimilarity(query, v) >= 0.9 {
			assert.True(t, returned[id], "%s is above threshold and must be returned", id)
		}
	}
	assert.True(t, sort.SliceIsSorted(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score }))
}

func TestSearchSimilarFilters(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 2, -1)

	require.NoError(t, eng.StoreEmbedding(ctx, "factory", []float32{1, 0}, Metadata{Category: "Creational", Complexity: "Low", Tags: []string{"creation"}}))
	require.NoError(t, eng.StoreEmbedding(ctx, "adapter", []float32{1, 0.1}, Metadata{Category: "Structural", Complexity: "Medium", Tags: []string{"wrapper"}}))
	require.NoError(t, eng.StoreEmbedding(ctx, "builder", []float32{1, 0.2}, Metadata{Category: "Creational", Complexity: "Medium", Tags: []string{"creation", "fluent"}}))

	ids := func(f *SearchFilters) []string {
		matches, err := eng.SearchSimilar([]float32{1, 0}, f, 0)
		require.NoError(t, err)
		out := []string{}
		for _, m := range matches {
			out = append(out, m.EntryID)
		}
		return out
	}

	assert.Equal(t, []string{"factory", "adapter", "builder"}, ids(nil))
	assert.Equal(t, []string{"factory", "builder"}, ids(&SearchFilters{Categories: []string{"creational"}}))
	assert.Equal(t, []string{"adapter", "builder"}, ids(&SearchFilters{Complexity: "medium"}))
	assert.Equal(t, []string{"builder"}, ids(&SearchFilters{Tags: []string{"FLUENT"}}))
	assert.Equal(t, []string{"builder"}, ids(&SearchFilters{Categories: []string{"Creational"}, ExcludeIDs: []string{"factory"}}))
	assert.Equal(t, []string{}, ids(&SearchFilters{Categories: []string{"Behavioral"}}))
}

func TestCalculateClusters(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 2, 0)

	points := []struct {
		id  string
		vec []float32
	}{
		{"left-1", []float32{-10, 0}},
		{"right-1", []float32{10, 0}},
		{"left-2", []float32{-11, 1}},
		{"right-2", []float32{11, -1}},
		{"left-3", []float32{-9, -1}},
		{"right-3", []float32{9, 1}},
	}
	for _, p := range points {
		require.NoError(t, eng.StoreEmbedding(ctx, p.id, p.vec, Metadata{}))
	}

	clusters, err := eng.CalculateClusters(2)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	assert.Equal(t, []string{"left-1", "left-2", "left-3"}, clusters[0].MemberIDs)
	assert.Equal(t, []string{"right-1", "right-2", "right-3"}, clusters[1].MemberIDs)
	assert.InDelta(t, -10.0, clusters[0].Centroid[0], 1e-6)
	assert.InDelta(t, 0.0, clusters[0].Centroid[1], 1e-6)
	assert.InDelta(t, 10.0, clusters[1].Centroid[0], 1e-6)

	single, err := eng.CalculateClusters(1)
	require.NoError(t, err)
	assert.Len(t, single[0].MemberIDs, 6)
	assert.InDelta(t, 0.0, single[0].Centroid[0], 1e-6)

	all, err := eng.CalculateClusters(6)
	require.NoError(t, err)
	for _, c := range all {
		assert.Len(t, c.MemberIDs, 1)
	}
}

func TestCalculateClustersRejectsBadK(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 2, 0)

	_, err := eng.CalculateClusters(1)
	assert.ErrorIs(t, err, ErrInvalidClusterCount, "no vectors stored")

	require.NoError(t, eng.StoreEmbedding(ctx, "a", []float32{1, 0}, Metadata{}))
	require.NoError(t, eng.StoreEmbedding(ctx, "b", []float32{0, 1}, Metadata{}))

	for _, k := range []int{-1, 0, 3} {
		_, err := eng.CalculateClusters(k)
		assert.ErrorIs(t, err, ErrInvalidClusterCount, "k=%d", k)
	}
}

func TestEnginePersistence(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}

	eng, err := NewEngine(Config{ModelID: "m1", Dimensions: 2, Persister: p})
	require.NoError(t, err)

	require.NoError(t, eng.StoreEmbedding(ctx, "a", []float32{1, 0}, Metadata{ContentHash: "h-a"}))
	require.NoError(t, eng.StoreEmbedding(ctx, "b", []float32{0, 1}, Metadata{ContentHash: "h-b"}))
	require.Len(t, p.records, 2)
	assert.Equal(t, "m1", p.records[0].ModelID)

	// A vector persisted by another model and a corrupt one are ignored by Load
	p.records = append(p.records,
		types.EmbeddingRecord{EntryID: "other", ModelID: "m2", Vector: []float32{1, 1}},
		types.EmbeddingRecord{EntryID: "short", ModelID: "m1", Vector: []float32{1}},
	)

	fresh, err := NewEngine(Config{ModelID: "m1", Dimensions: 2, Persister: p})
	require.NoError(t, err)
	n, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"a": "h-a", "b": "h-b"}, fresh.ContentHashes())

	_, err = fresh.DeleteEmbedding(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, p.records, 3)

	require.NoError(t, fresh.Clear(ctx))
	assert.Equal(t, 0, fresh.Count())
	require.Len(t, p.records, 1)
	assert.Equal(t, "m2", p.records[0].ModelID)
}

func TestEngineRebind(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{records: []types.EmbeddingRecord{
		{EntryID: "a", ModelID: "m2", Vector: []float32{1, 0, 0}, ContentHash: "h2-a"},
		{EntryID: "b", ModelID: "m2", Vector: []float32{0, 1, 0}, ContentHash: "h2-b"},
	}}

	eng, err := NewEngine(Config{ModelID: "m1", Dimensions: 2, Persister: p})
	require.NoError(t, err)
	require.NoError(t, eng.StoreEmbedding(ctx, "a", []float32{1, 0}, Metadata{ContentHash: "h1-a"}))

	n, err := eng.Rebind(ctx, "m2", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "m2", eng.ModelID())
	assert.Equal(t, 3, eng.Dimensions())
	assert.Equal(t, map[string]string{"a": "h2-a", "b": "h2-b"}, eng.ContentHashes())

	_, err = eng.SearchSimilar([]float32{1, 0}, nil, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	matches, err := eng.SearchSimilar([]float32{1, 0, 0}, nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "a", matches[0].EntryID)

	// New writes land under the rebound model
	require.NoError(t, eng.StoreEmbedding(ctx, "c", []float32{0, 0, 1}, Metadata{}))
	stored, _ := p.ListEmbeddings(ctx, "m2")
	assert.Len(t, stored, 3)

	tests := []struct {
		name string
		dims int
		fail error
	}{
		{"zero dimensions", 0, nil},
		{"persister failure", 2, errors.New("disk gone")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.failErr = tt.fail
			defer func() { p.failErr = nil }()

			_, err := eng.Rebind(ctx, "m1", tt.dims)
			assert.Error(t, err)
			assert.Equal(t, "m2", eng.ModelID())
			assert.Equal(t, 3, eng.Dimensions())
			assert.Equal(t, 3, eng.Count())
		})
	}
}

func TestEnginePersisterFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	p := &memPersister{failErr: boom}

	eng, err := NewEngine(Config{ModelID: "m1", Dimensions: 2, Persister: p})
	require.NoError(t, err)

	err = eng.StoreEmbedding(ctx, "a", []float32{1, 0}, Metadata{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, eng.Count())

	_, err = eng.Load(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestEngineConcurrentReadWrite(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, 4, -1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			v := []float32{float32(i), 1, 0, 0}
			_ = eng.StoreEmbedding(ctx, string(rune('a'+i%20)), v, Metadata{})
		}
	}()
	for i := 0; i < 200; i++ {
		_, err := eng.SearchSimilar([]float32{1, 1, 0, 0}, nil, 5)
		require.NoError(t, err)
	}
	<-done
	assert.Equal(t, 20, eng.Count())
}
