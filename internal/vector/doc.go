// Package vector stores embedding vectors and answers exact cosine
// similarity queries by linear scan.
//
// An Engine holds the vectors of a single model. Vectors must match the
// configured dimensions exactly; anything else fails with
// ErrDimensionMismatch. With a Persister configured, writes go to the
// persister first and Load restores the set on startup:
//
//	eng, err := vector.NewEngine(vector.Config{
//	    ModelID:             "hash-fallback-v1",
//	    Dimensions:          384,
//	    SimilarityThreshold: 0.3,
//	    Persister:           store,
//	})
//	n, err := eng.Load(ctx)
//
//	matches, err := eng.SearchSimilar(queryVec, &vector.SearchFilters{
//	    Categories: []string{"Creational"},
//	}, 5)
//
// Results are sorted by score, highest first. Equal scores keep insertion
// order.
package vector
