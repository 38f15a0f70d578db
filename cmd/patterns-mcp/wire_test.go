package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/config"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/embedder"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/indexer"
	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

// newOllama serves a pulled all-minilm model that embeds every input as
// a constant vector of dims components
func newOllama(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "all-minilm", "model": "all-minilm"}},
			})
		case "/api/embed":
			var req struct {
				Input []string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			out := make([][]float32, len(req.Input))
			for i := range out {
				out[i] = make([]float32, dims)
				out[i][0] = 1
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWire_StrategySwitchRebindsIndex(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Load(writeConfig(t, newOllama(t, 384).URL))
	require.NoError(t, err)

	app, err := Wire(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Store.UpsertPatterns(ctx, []*types.Pattern{
		{ID: "observer", Name: "Observer", Category: "Behavioral", Description: "Publish state changes to subscribers"},
	}))
	_, err = app.Indexer.Index(ctx, indexer.Options{})
	require.NoError(t, err)
	assert.Equal(t, embedder.HashModelID, app.Index.ModelID())
	assert.Equal(t, 1, app.Index.Count())

	require.NoError(t, app.Embeddings.SwitchStrategy(ctx, embedder.StrategyOllama))
	assert.Equal(t, "ollama/all-minilm", app.Index.ModelID())
	assert.Equal(t, 0, app.Index.Count(), "no vectors persisted for the new model yet")

	stats, err := app.Indexer.Index(ctx, indexer.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Embedded)
	assert.Equal(t, 1, app.Index.Count())

	// Switching back reloads the vectors persisted under the hash model
	require.NoError(t, app.Embeddings.SwitchStrategy(ctx, embedder.StrategyHash))
	assert.Equal(t, embedder.HashModelID, app.Index.ModelID())
	assert.Equal(t, 1, app.Index.Count())
}
