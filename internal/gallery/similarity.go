package gallery

import "math"

// SimilarityFromDistance converts an L2 distance to a similarity score in
// (0, 1]: similarity = 1 / (1 + distance). Distance 0 maps to 1.0 and the
// score decays toward 0 as distance grows.
func SimilarityFromDistance(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// L2Distance computes the Euclidean distance between two vectors. Mismatched
// or empty vectors return +Inf so they can never match.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// L2Normalize scales a vector to unit length. Zero vectors are returned
// unchanged.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
