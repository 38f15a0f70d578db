// Package indexer keeps the vector index in step with the pattern catalog.
//
// A run reads every pattern, hashes its embedding text and re-embeds only
// patterns whose hash changed or that have no vector yet. Vectors of
// patterns that left the catalog are removed. Embedding is batched and the
// batches run concurrently:
//
//	idx := indexer.New(store, service, engine, indexer.Config{Invalidator: m})
//	stats, err := idx.Index(ctx, indexer.Options{})
//	fmt.Printf("embedded %d, skipped %d in %v\n", stats.Embedded, stats.Skipped, stats.Duration)
//
// Only one run executes at a time; a concurrent call gets
// ErrIndexInProgress. A vector produced by a different model than the
// index (the deterministic fallback standing in for an unreachable
// backend) is not stored and counts as failed, so the next run retries it.
package indexer
