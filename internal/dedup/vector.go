package dedup

import "math"

// Cosine returns the cosine similarity of a and b. Mismatched or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Mean returns the unit-normalized mean of vectors, skipping ones whose length differs from the first.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}
	dims := len(vectors[0])
	sum := make([]float64, dims)
	for _, vector := range vectors {
		if len(vector) != dims {
			continue
		}
		for i, value := range vector {
			sum[i] += float64(value)
		}
	}

	var norm float64
	for _, value := range sum {
		norm += value * value
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dims)
	if norm == 0 {
		return out
	}
	for i, value := range sum {
		out[i] = float32(value / norm)
	}
	return out
}

// Valid reports whether every component is finite.
func Valid(vector []float32) bool {
	if len(vector) == 0 {
		return false
	}
	for _, value := range vector {
		f := float64(value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
