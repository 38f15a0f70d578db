package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Bounds of find_patterns.max_results
const (
	minMaxResults = 1
	maxMaxResults = 50
)

// findPatternsTool returns the tool definition for find_patterns
func findPatternsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_patterns",
		Description: "Recommend design patterns for a problem described in natural language",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Problem description or keywords",
				},
				"categories": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these categories (case-insensitive)",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of recommendations to return",
					"default":     5,
					"minimum":     minMaxResults,
					"maximum":     maxMaxResults,
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Programming language of the caller, mentioned in reasons when a pattern is tagged with it",
				},
			},
			Required: []string{"query"},
		},
	}
}

// getPatternTool returns the tool definition for get_pattern
func getPatternTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_pattern",
		Description: "Fetch the full catalog entry of one pattern",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Pattern identifier (e.g. factory-method)",
				},
			},
			Required: []string{"id"},
		},
	}
}

// listCategoriesTool returns the tool definition for list_categories
func listCategoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_categories",
		Description: "List pattern categories with the number of patterns in each",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// embeddingStatusTool returns the tool definition for embedding_status
func embeddingStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "embedding_status",
		Description: "Report the active embedding strategy, strategy availability, cache statistics and indexed vector count",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// rebuildEmbeddingsTool returns the tool definition for rebuild_embeddings
func rebuildEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_embeddings",
		Description: "Embed catalog patterns whose content changed and drop vectors of removed patterns",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-embed every pattern regardless of content hash",
					"default":     false,
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Switch to this embedding strategy (ollama, openai, jina, hash) before rebuilding",
				},
			},
		},
	}
}
