package analysis

import "math"

// MeanPool averages the vectors component-wise. It returns nil for an empty
// input or when vector lengths disagree.
func MeanPool(vectors [][]float32) []float64 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}
	dim := len(vectors[0])
	mean := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			mean[i] += float64(x)
		}
	}
	n := float64(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

// Cosine returns 0 for mismatched lengths or zero vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// ComputeSemanticSimilarity compares two embedding sets by the cosine of
// their mean-pooled vectors. Either side empty yields 0.
func ComputeSemanticSimilarity(current, previous [][]float32) float64 {
	a := MeanPool(current)
	b := MeanPool(previous)
	if a == nil || b == nil {
		return 0
	}
	return Cosine(a, b)
}
