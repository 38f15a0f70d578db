package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Complexity levels used by the catalog
const (
	ComplexityLow    = "Low"
	ComplexityMedium = "Medium"
	ComplexityHigh   = "High"
)

// Pattern is a catalog entry describing one design pattern
type Pattern struct {
	// Identification
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`

	// Content
	Description string   `json:"description"`
	Problem     string   `json:"problem,omitempty"`
	Solution    string   `json:"solution,omitempty"`
	WhenToUse   []string `json:"when_to_use,omitempty"`
	Complexity  string   `json:"complexity,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields every consumer relies on
func (p *Pattern) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingPatternID
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrMissingPatternName
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrMissingCategory
	}
	switch p.Complexity {
	case "", ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		return ErrInvalidComplexity
	}
	return nil
}

// EmbeddingText is the text a pattern is embedded from
func (p *Pattern) EmbeddingText() string {
	parts := []string{p.Name, p.Category, p.Description}
	if p.Problem != "" {
		parts = append(parts, p.Problem)
	}
	if p.Solution != "" {
		parts = append(parts, p.Solution)
	}
	parts = append(parts, p.WhenToUse...)
	if len(p.Tags) > 0 {
		parts = append(parts, strings.Join(p.Tags, " "))
	}
	return strings.Join(parts, ". ")
}

// ContentHash is the hex SHA-256 of EmbeddingText. A changed hash means the
// stored vector is stale.
func (p *Pattern) ContentHash() string {
	sum := sha256.Sum256([]byte(p.EmbeddingText()))
	return hex.EncodeToString(sum[:])
}

// HasTag reports whether the pattern carries tag, ignoring case
func (p *Pattern) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// CategoryCount is one row of the category aggregation
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// EmbeddingRecord is a persisted vector joined with the pattern fields that
// similarity filters need
type EmbeddingRecord struct {
	EntryID     string
	ModelID     string
	Vector      []float32
	ContentHash string
	Category    string
	Complexity  string
	Tags        []string
}
