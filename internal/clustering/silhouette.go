package clustering

import "github.com/soratone/counsel-backend/internal/pkg/vecmath"

// Silhouette computes the mean silhouette coefficient over all points
// with a non-negative label. Degenerate inputs (fewer than two distinct
// clusters, or singleton-only clusters) score 0.
func Silhouette(vectors [][]float32, labels []int) float64 {
	byCluster := make(map[int][]int)
	for i, l := range labels {
		if l >= 0 {
			byCluster[l] = append(byCluster[l], i)
		}
	}
	if len(byCluster) < 2 {
		return 0
	}

	var total float64
	var counted int

	for label, members := range byCluster {
		for _, i := range members {
			if len(members) < 2 {
				// A singleton has no intra-cluster distance; skip it.
				continue
			}

			// a: mean distance to own cluster.
			var a float64
			for _, j := range members {
				if j != i {
					a += vecmath.Euclidean(vectors[i], vectors[j])
				}
			}
			a /= float64(len(members) - 1)

			// b: mean distance to the nearest other cluster.
			b := -1.0
			for other, otherMembers := range byCluster {
				if other == label || len(otherMembers) == 0 {
					continue
				}
				var sum float64
				for _, j := range otherMembers {
					sum += vecmath.Euclidean(vectors[i], vectors[j])
				}
				mean := sum / float64(len(otherMembers))
				if b < 0 || mean < b {
					b = mean
				}
			}
			if b < 0 {
				continue
			}

			den := a
			if b > den {
				den = b
			}
			if den > 0 {
				total += (b - a) / den
			}
			counted++
		}
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}
