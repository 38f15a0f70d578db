package vector

import "math"

// CosineSimilarity returns dot(a,b) / (|a|*|b|), or 0 when the lengths
// differ or either vector has zero norm. The result is not clamped.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize returns v scaled to unit length. A zero vector is returned as a copy.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func squaredDistance(a []float32, b []float64) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - b[i]
		sum += d * d
	}
	return sum
}
