package embedder

import (
	"context"
	"errors"
)

// Strategy names
const (
	StrategyHash   = "hash"
	StrategyOllama = "ollama"
	StrategyOpenAI = "openai"
	StrategyJina   = "jina"
)

// Common errors
var (
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrStrategyUnavailable = errors.New("embedding strategy unavailable")
	ErrGenerationFailed    = errors.New("embedding generation failed")
	ErrUnknownStrategy     = errors.New("unknown embedding strategy")
)

// Strategy generates fixed-dimension embeddings for text.
//
// GenerateBatch must return exactly one vector per input, in input order.
// IsAvailable must never panic and may be called before any Generate call.
type Strategy interface {
	// Name returns the strategy name used for selection (e.g. "ollama")
	Name() string

	// ModelID identifies the model producing the vectors. Vectors from
	// different model IDs are never compared.
	ModelID() string

	// Dimensions returns the vector length produced by Generate
	Dimensions() int

	// Generate embeds a single text
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch embeds many texts in one call where the backend allows it
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// IsAvailable performs a bounded liveness check
	IsAvailable(ctx context.Context) bool
}

// StrategyStatus describes a strategy as reported by Factory.GetAvailableStrategies
type StrategyStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Model     string `json:"model"`
}
