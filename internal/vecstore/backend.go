// Package vecstore implements the unified vector index: a remote ANN backend
// (Milvus) and a local flat backend behind one strategy interface, merged by
// score, with a keyword responder as the last resort.
package vecstore

import "math"

// normalize scales v to unit length in place and returns it. Zero vectors are
// left untouched. Both backends score with cosine similarity, so vectors are
// normalized once before fan-out to keep scores comparable.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// estimateTokens approximates the token count of text. One token is roughly
// four characters for English prose.
func estimateTokens(text string) int {
	return len(text) / 4
}
