package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/embedder"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/indexer"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/matcher"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602
	ErrorCodeInternalError   = -32603
	ErrorCodeNotFound        = -32001
	ErrorCodeIndexInProgress = -32002
	ErrorCodeUnavailable     = -32003
	ErrorCodeEmptyQuery      = -32004
)

// handleFindPatterns handles the find_patterns tool invocation
func (s *Server) handleFindPatterns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", map[string]interface{}{
			"param": "query",
		})
	}

	maxResults := getIntDefault(args, "max_results", 0)
	if _, set := args["max_results"]; set && (maxResults < minMaxResults || maxResults > maxMaxResults) {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_results out of range", map[string]interface{}{
			"param":  "max_results",
			"reason": fmt.Sprintf("must be between %d and %d", minMaxResults, maxMaxResults),
		})
	}

	categories, err := getStringSlice(args, "categories")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid categories", map[string]interface{}{
			"param":  "categories",
			"reason": err.Error(),
		})
	}

	req := matcher.Request{
		Query:      query,
		Categories: categories,
		MaxResults: maxResults,
		Language:   getStringDefault(args, "language", ""),
	}
	recs, err := s.deps.Searcher.FindMatchingPatterns(ctx, req)
	if errors.Is(err, matcher.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	}
	if err != nil {
		s.log.Error().Err(err).Str("query", query).Msg("find_patterns failed")
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(recs))
	for _, r := range recs {
		results = append(results, map[string]interface{}{
			"rank":        r.Rank,
			"id":          r.Pattern.ID,
			"name":        r.Pattern.Name,
			"category":    r.Pattern.Category,
			"description": r.Pattern.Description,
			"confidence":  r.Confidence,
			"match_type":  r.MatchType,
			"reasons":     r.Reasons,
			"scores":      r.ScoreBreakdown,
		})
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetPattern handles the get_pattern tool invocation
func (s *Server) handleGetPattern(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	id, ok := args["id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	pattern, err := s.deps.Catalog.GetPattern(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotFound, "pattern not found", map[string]interface{}{
			"id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get pattern", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"pattern": pattern,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListCategories handles the list_categories tool invocation
func (s *Server) handleListCategories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}

	categories, err := s.deps.Catalog.ListCategories(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list categories", map[string]interface{}{
			"error": err.Error(),
		})
	}

	total := 0
	for _, c := range categories {
		total += c.Count
	}

	response := map[string]interface{}{
		"categories":     categories,
		"total_patterns": total,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEmbeddingStatus handles the embedding_status tool invocation
func (s *Server) handleEmbeddingStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}

	patterns, err := s.deps.Catalog.CountPatterns(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count patterns", map[string]interface{}{
			"error": err.Error(),
		})
	}

	info := s.deps.Embeddings.GetStrategyInfo()
	response := map[string]interface{}{
		"strategy": info,
		"index": map[string]interface{}{
			"model_id":    s.deps.Index.ModelID(),
			"dimensions":  s.deps.Index.Dimensions(),
			"vectors":     s.deps.Index.Count(),
			"patterns":    patterns,
			"in_progress": s.deps.Rebuilder.InProgress(),
		},
		"cache": map[string]interface{}{
			"embeddings": info.Cache,
			"results":    s.deps.Searcher.CacheStats(),
		},
	}
	if s.deps.Strategies != nil {
		response["available_strategies"] = s.deps.Strategies.GetAvailableStrategies(ctx)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRebuildEmbeddings handles the rebuild_embeddings tool invocation
func (s *Server) handleRebuildEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	force := getBoolDefault(args, "force", false)
	if name := getStringDefault(args, "strategy", ""); name != "" {
		if err := s.switchStrategy(ctx, name); err != nil {
			return nil, err
		}
	}

	stats, err := s.deps.Rebuilder.Index(ctx, indexer.Options{Force: force})
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		s.log.Error().Err(err).Bool("force", force).Msg("rebuild_embeddings failed")
		return nil, newMCPError(ErrorCodeInternalError, "rebuild failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"success":  stats.Failed == 0,
		"strategy": s.deps.Embeddings.GetStrategyInfo().Name,
		"statistics": map[string]interface{}{
			"total":            stats.Total,
			"embedded":         stats.Embedded,
			"skipped":          stats.Skipped,
			"removed":          stats.Removed,
			"failed":           stats.Failed,
			"duration_seconds": stats.Duration.Seconds(),
		},
	}
	if len(stats.ErrorMessages) > 0 {
		response["errors"] = stats.ErrorMessages
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// switchStrategy changes the active strategy ahead of a rebuild. The index
// follows the new model, so a switch is refused while a run is active.
func (s *Server) switchStrategy(ctx context.Context, name string) error {
	if s.deps.Switcher == nil {
		return newMCPError(ErrorCodeInvalidParams, "strategy switching is not enabled", map[string]interface{}{
			"param": "strategy",
		})
	}
	if s.deps.Rebuilder.InProgress() {
		return newMCPError(ErrorCodeIndexInProgress, "indexing already in progress", nil)
	}

	err := s.deps.Switcher.SwitchStrategy(ctx, name)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, embedder.ErrUnknownStrategy):
		return newMCPError(ErrorCodeInvalidParams, "unknown strategy", map[string]interface{}{
			"param":  "strategy",
			"reason": err.Error(),
		})
	case errors.Is(err, embedder.ErrStrategyUnavailable):
		return newMCPError(ErrorCodeUnavailable, "strategy unavailable", map[string]interface{}{
			"strategy": name,
		})
	default:
		s.log.Error().Err(err).Str("strategy", name).Msg("strategy switch failed")
		return newMCPError(ErrorCodeInternalError, "strategy switch failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// The framework encodes returned errors as tool call failures
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the argument object of a call. A call without
// arguments yields an empty map.
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings. A lone string is
// accepted as a one-element list.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	switch val := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for i, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is not a string", i)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array of strings, got %T", val)
	}
}
