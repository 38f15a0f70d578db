// Package embedder turns text into embedding vectors for pattern matching.
//
// Every backend implements Strategy. The built-in strategies are:
//
//   - ollama: a local Ollama server (POST /api/embed)
//   - openai: the OpenAI embeddings API or any compatible endpoint
//   - jina: the Jina AI embeddings API
//   - hash: DeterministicStrategy, a feature-hashing fallback that needs
//     no model and always answers
//
// # Selection
//
// A Factory picks the strategy at startup. It tries the preferred strategy,
// then ollama, openai, jina, and finally hash, skipping any strategy whose
// liveness check fails:
//
//	factory := embedder.NewFactory(embedder.FactoryConfig{
//	    Preferred:  "ollama",
//	    Dimensions: 384,
//	    Ollama:     embedder.OllamaConfig{BaseURL: "http://localhost:11434"},
//	})
//	strategy := factory.CreateStrategy(ctx)
//
// Availability results are cached. Call Factory.ClearCache to force a fresh check.
//
// # Generation
//
// Service wraps the selected strategy. It checks its cache first and
// coalesces concurrent requests for the same text. Failed calls are retried
// with linear backoff (BaseDelay times the attempt number). When the
// attempts run out it returns the hash vector instead of an error and logs
// a warning:
//
//	svc := embedder.NewService(factory, embedder.ServiceConfig{Logger: logger})
//	emb, err := svc.Embed(ctx, "create objects without naming concrete classes")
//	// emb.Strategy is "hash" when the backend was down
//
// Batch calls keep input order. If a batch request fails, each text in it is
// retried on its own.
//
// Vectors from different model IDs are not comparable. Callers that persist
// vectors should compare Embedding.ModelID with the model of the stored set.
package embedder
