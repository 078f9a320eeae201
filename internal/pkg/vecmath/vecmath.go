package vecmath

import "math"

// Cosine returns the cosine similarity of a and b, 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CosineDistance is 1 - Cosine.
func CosineDistance(a, b []float32) float64 {
	return 1.0 - Cosine(a, b)
}

// Euclidean returns the L2 distance between a and b. Mismatched lengths
// return +Inf so callers cannot mistake the result for a valid distance.
func Euclidean(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Mean returns the coordinate-wise mean of vecs. ok is false when vecs is
// empty or the dimensions disagree.
func Mean(vecs [][]float32) ([]float32, bool) {
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, false
	}
	dim := len(vecs[0])
	acc := make([]float64, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, false
		}
		for i := range v {
			acc[i] += float64(v[i])
		}
	}
	out := make([]float32, dim)
	n := float64(len(vecs))
	for i := range acc {
		out[i] = float32(acc[i] / n)
	}
	return out, true
}

// NormalizeUnit returns v scaled to unit length, or v unchanged when its
// norm is zero.
func NormalizeUnit(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum <= 0 {
		return v
	}
	den := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] * den
	}
	return out
}

// Standardize returns fresh copies of vecs scaled to zero mean and unit
// variance per dimension. Constant dimensions pass through unscaled.
func Standardize(vecs [][]float32) [][]float32 {
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil
	}
	dim := len(vecs[0])
	n := float64(len(vecs))

	mean := make([]float64, dim)
	for _, v := range vecs {
		for i := range v {
			mean[i] += float64(v[i])
		}
	}
	for i := range mean {
		mean[i] /= n
	}

	std := make([]float64, dim)
	for _, v := range vecs {
		for i := range v {
			d := float64(v[i]) - mean[i]
			std[i] += d * d
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i] / n)
	}

	out := make([][]float32, len(vecs))
	for j, v := range vecs {
		row := make([]float32, dim)
		for i := range v {
			if std[i] > 0 {
				row[i] = float32((float64(v[i]) - mean[i]) / std[i])
			} else {
				row[i] = float32(float64(v[i]) - mean[i])
			}
		}
		out[j] = row
	}
	return out
}
