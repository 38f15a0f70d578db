package types

import "errors"

// Domain errors for type validation
var (
	// Pattern errors
	ErrMissingPatternID   = errors.New("pattern id is required")
	ErrMissingPatternName = errors.New("pattern name is required")
	ErrMissingCategory    = errors.New("pattern category is required")
	ErrInvalidComplexity  = errors.New("complexity must be Low, Medium or High")

	// Recommendation errors
	ErrInvalidRank      = errors.New("rank must be >= 1")
	ErrInvalidMatchType = errors.New("invalid match type")
	ErrMissingReasons   = errors.New("at least one reason is required")
)
