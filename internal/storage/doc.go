// Package storage provides SQLite-based persistence for the pattern catalog
// and the embeddings computed from it.
//
// # Database Schema
//
// Tables:
//   - patterns: Catalog entries (name, category, description, tags, ...)
//   - patterns_fts: FTS5 index over name, category, description and tags,
//     kept in sync by triggers
//   - embeddings: One vector per (pattern, model), stored as a little-endian
//     float32 blob
//   - schema_version: Applied migrations
//
// Migrations are ordered by semantic version and applied on open.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.patterns-mcp/patterns.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.UpsertPattern(ctx, &types.Pattern{
//	    ID:       "factory-method",
//	    Name:     "Factory Method",
//	    Category: "Creational",
//	})
//
//	hits, err := store.SearchPatterns(ctx, "object creation", 10)
//
// # Errors
//
// Driver failures are wrapped with ErrStoreUnavailable; unknown IDs give
// ErrNotFound. Both are matched with errors.Is.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite (pure Go). Building with
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
//
// switches to github.com/mattn/go-sqlite3.
package storage
