package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	// HashModelID is the model ID of vectors produced by DeterministicStrategy.
	// Changing the algorithm below requires a new ID.
	HashModelID = "hash-fallback-v1"

	// DefaultDimensions is the vector length used when none is configured
	DefaultDimensions = 384

	bigramWeight = 0.5
)

// DeterministicStrategy maps text to a normalized feature-hashed vector. It
// needs no model and is always available, so it terminates every fallback
// chain.
//
// The algorithm is frozen:
//
//  1. Lowercase the text and split it on every rune that is neither a letter
//     nor a number.
//  2. Each token is a feature of weight 1; each adjacent pair "a b" is a
//     feature of weight 0.5. No tokens means the raw text is the single
//     feature with weight 1.
//  3. h = FNV-1a-64("hash-fallback-v1\x00" + feature). The feature adds
//     its weight to bucket h mod D, negated when bit 63 of h is set.
//  4. Divide by the L2 norm. If every bucket cancelled, bucket h0 mod D of
//     the first feature is set to 1.
type DeterministicStrategy struct {
	dims int
}

// NewDeterministicStrategy creates the fallback strategy. A non-positive
// dims uses DefaultDimensions.
func NewDeterministicStrategy(dims int) *DeterministicStrategy {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &DeterministicStrategy{dims: dims}
}

func (d *DeterministicStrategy) Name() string    { return StrategyHash }
func (d *DeterministicStrategy) ModelID() string { return HashModelID }
func (d *DeterministicStrategy) Dimensions() int { return d.dims }

// IsAvailable always reports true
func (d *DeterministicStrategy) IsAvailable(context.Context) bool { return true }

// Generate never fails; the error return satisfies Strategy
func (d *DeterministicStrategy) Generate(_ context.Context, text string) ([]float32, error) {
	return d.Embed(text), nil
}

func (d *DeterministicStrategy) GenerateBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = d.Embed(text)
	}
	return out, nil
}

// Embed computes the vector for text without a context
func (d *DeterministicStrategy) Embed(text string) []float32 {
	feats := hashFeatures(text)
	acc := make([]float64, d.dims)

	var first uint64
	for i, f := range feats {
		h := featureHash(f.text)
		if i == 0 {
			first = h
		}
		w := f.weight
		if h>>63 == 1 {
			w = -w
		}
		acc[h%uint64(d.dims)] += w
	}

	return normalizeAccumulator(acc, first)
}

type hashFeature struct {
	text   string
	weight float64
}

func hashFeatures(text string) []hashFeature {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return []hashFeature{{text: text, weight: 1}}
	}

	feats := make([]hashFeature, 0, 2*len(tokens)-1)
	for i, tok := range tokens {
		feats = append(feats, hashFeature{text: tok, weight: 1})
		if i > 0 {
			feats = append(feats, hashFeature{text: tokens[i-1] + " " + tok, weight: bigramWeight})
		}
	}
	return feats
}

func featureHash(feature string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(HashModelID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(feature))
	return h.Sum64()
}

// normalizeAccumulator scales acc to unit length in index order. An all-zero
// accumulator becomes the one-hot vector at first mod len(acc).
func normalizeAccumulator(acc []float64, first uint64) []float32 {
	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(acc))
	if norm == 0 {
		out[first%uint64(len(acc))] = 1
		return out
	}
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}
