// Package mcp exposes the pattern recommender as Model Context Protocol tools.
//
// The server speaks JSON-RPC 2.0 over stdio through
// github.com/mark3labs/mcp-go and registers five tools:
//   - find_patterns: rank catalog patterns against a problem description
//   - get_pattern: fetch one catalog entry by id
//   - list_categories: category names with pattern counts
//   - embedding_status: active strategy, strategy availability, cache and index statistics
//   - rebuild_embeddings: bring stored vectors up to date with the catalog
//
// Handlers only translate arguments and results. Matching, embedding and
// indexing live in the matcher, embedder and indexer packages.
//
// # Error Handling
//
// Failed calls return an *MCPError carrying a JSON-RPC style code:
//   - -32602: Invalid params (missing or malformed arguments)
//   - -32603: Internal error (store or index failures)
//   - -32001: Pattern not found
//   - -32002: Indexing in progress
//   - -32004: Empty query
//
// # Logging
//
// stdout carries the protocol, so the logger handed to NewServer must write
// to stderr.
package mcp
