package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorOf(dims int, seed float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = seed + float32(i)
	}
	return v
}

func newOllamaServer(t *testing.T, dims int, models ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var pings atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			pings.Add(1)
			list := make([]map[string]string, 0, len(models))
			for _, m := range models {
				list = append(list, map[string]string{"name": m, "model": m})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"models": list})
		case "/api/embed":
			assert.Equal(t, http.MethodPost, r.Method)
			var req struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			out := make([][]float32, len(req.Input))
			for i := range req.Input {
				out[i] = vectorOf(dims, float32(i))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": out})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &pings
}

func TestOllamaStrategy(t *testing.T) {
	t.Run("availability finds pulled model", func(t *testing.T) {
		srv, _ := newOllamaServer(t, 4, "all-minilm:latest")
		s := NewOllamaStrategy(OllamaConfig{BaseURL: srv.URL, Dimensions: 4})

		assert.Equal(t, StrategyOllama, s.Name())
		assert.Equal(t, "ollama/all-minilm", s.ModelID())
		assert.True(t, s.IsAvailable(context.Background()))
	})

	t.Run("missing model is unavailable", func(t *testing.T) {
		srv, _ := newOllamaServer(t, 4, "nomic-embed-text")
		s := NewOllamaStrategy(OllamaConfig{BaseURL: srv.URL, Dimensions: 4})
		assert.False(t, s.IsAvailable(context.Background()))
	})

	t.Run("availability is cached until reset", func(t *testing.T) {
		srv, pings := newOllamaServer(t, 4, "all-minilm")
		s := NewOllamaStrategy(OllamaConfig{BaseURL: srv.URL, Dimensions: 4, HealthInterval: time.Hour})

		for i := 0; i < 5; i++ {
			s.IsAvailable(context.Background())
		}
		assert.Equal(t, int32(1), pings.Load())

		s.ResetAvailability()
		s.IsAvailable(context.Background())
		assert.Equal(t, int32(2), pings.Load())
	})

	t.Run("unreachable server is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		s := NewOllamaStrategy(OllamaConfig{BaseURL: url, Dimensions: 4, HealthTimeout: 200 * time.Millisecond})
		assert.False(t, s.IsAvailable(context.Background()))
	})

	t.Run("slow liveness check is bounded by timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		s := NewOllamaStrategy(OllamaConfig{BaseURL: srv.URL, Dimensions: 4, HealthTimeout: 50 * time.Millisecond})
		start := time.Now()
		assert.False(t, s.IsAvailable(context.Background()))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("batch preserves order", func(t *testing.T) {
		srv, _ := newOllamaServer(t, 3, "all-minilm")
		s := NewOllamaStrategy(OllamaConfig{BaseURL: srv.URL, Dimensions: 3})

		vectors, err := s.GenerateBatch(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Equal(t, []float32{0, 1, 2}, vectors[0])
		assert.Equal(t, []float32{2, 3, 4}, vectors[2])

		single, err := s.Generate(context.Background(), "solo")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 2}, single)
	})

	t.Run("dimension mismatch is a generation failure", func(t *testing.T) {
		srv, _ := newOllamaServer(t, 5, "all-minilm")
		s := NewOllamaStrategy(OllamaConfig{BaseURL: srv.URL, Dimensions: 3})

		_, err := s.Generate(context.Background(), "text")
		assert.ErrorIs(t, err, ErrGenerationFailed)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		s := NewOllamaStrategy(OllamaConfig{BaseURL: "http://127.0.0.1:1"})
		_, err := s.Generate(context.Background(), "  ")
		assert.ErrorIs(t, err, ErrEmptyText)
	})
}

func TestJinaStrategy(t *testing.T) {
	t.Run("no api key", func(t *testing.T) {
		s := NewJinaStrategy(JinaConfig{})
		assert.False(t, s.IsAvailable(context.Background()))

		_, err := s.Generate(context.Background(), "text")
		assert.ErrorIs(t, err, ErrStrategyUnavailable)
	})

	t.Run("places vectors by response index", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req struct {
				Input      []string `json:"input"`
				Dimensions int      `json:"dimensions"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 2, req.Dimensions)

			// Reverse order on the wire
			data := make([]map[string]any, 0, len(req.Input))
			for i := len(req.Input) - 1; i >= 0; i-- {
				data = append(data, map[string]any{"index": i, "embedding": []float32{float32(i), 1}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"model": "jina-embeddings-v3", "data": data})
		}))
		defer srv.Close()

		s := NewJinaStrategy(JinaConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Dimensions: 2})
		assert.True(t, s.IsAvailable(context.Background()))

		vectors, err := s.GenerateBatch(context.Background(), []string{"zero", "one", "two"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vectors)
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		s := NewJinaStrategy(JinaConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 2})
		_, err := s.Generate(context.Background(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGenerationFailed)
		assert.Contains(t, err.Error(), "429")
		assert.False(t, s.IsAvailable(context.Background()))
	})
}

func TestOpenAIStrategy(t *testing.T) {
	t.Run("no api key", func(t *testing.T) {
		s := NewOpenAIStrategy(OpenAIConfig{})
		assert.False(t, s.IsAvailable(context.Background()))

		_, err := s.Generate(context.Background(), "text")
		assert.ErrorIs(t, err, ErrStrategyUnavailable)
	})

	t.Run("embeddings through compatible endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/v1/models/text-embedding-3-small":
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id": "text-embedding-3-small", "object": "model", "created": 1, "owned_by": "openai",
				})
			case "/v1/embeddings":
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
				var req struct {
					Input []string `json:"input"`
					Model string   `json:"model"`
				}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "text-embedding-3-small", req.Model)

				data := make([]map[string]any, len(req.Input))
				for i := range req.Input {
					data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float64{float64(i), 0.5, -0.5}}
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"object": "list",
					"data":   data,
					"model":  req.Model,
					"usage":  map[string]int{"prompt_tokens": 2, "total_tokens": 2},
				})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		s := NewOpenAIStrategy(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Dimensions: 3})
		assert.Equal(t, "openai/text-embedding-3-small", s.ModelID())
		assert.True(t, s.IsAvailable(context.Background()))

		vectors, err := s.GenerateBatch(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0, 0.5, -0.5}, {1, 0.5, -0.5}}, vectors)
	})
}
