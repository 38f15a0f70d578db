// Package types provides shared type definitions for the patterns MCP server.
//
// Pattern is a catalog entry. Its EmbeddingText is what gets embedded and
// its ContentHash decides whether a stored vector is stale:
//
//	p := types.Pattern{
//	    ID:          "factory-method",
//	    Name:        "Factory Method",
//	    Category:    "Creational",
//	    Description: "Define an interface for creating an object",
//	    Tags:        []string{"creation", "inheritance"},
//	}
//	if err := p.Validate(); err != nil {
//	    return err
//	}
//
// Recommendation is a ranked search result. ScoreBreakdown keeps both leg
// scores; a leg that did not match contributes 0 and MatchType names the
// legs that did.
package types
