package anomaly

import (
	"sort"

	"github.com/soratone/counsel-backend/internal/pkg/vecmath"
)

// LOFNeighbors picks the neighborhood size for local outlier factor:
// a fifth of the corpus, capped at 20 and floored at 1.
func LOFNeighbors(n int) int {
	k := n / 5
	if k > 20 {
		k = 20
	}
	if k < 1 {
		k = 1
	}
	return k
}

// LOFScores computes the local outlier factor per vector with k
// neighbors. A score near 1 marks an inlier; larger scores mark points
// in sparser regions than their neighbors.
func LOFScores(vectors [][]float32, k int) []float64 {
	n := len(vectors)
	if n == 0 {
		return nil
	}
	if k >= n {
		k = n - 1
	}
	if k < 1 {
		out := make([]float64, n)
		for i := range out {
			out[i] = 1
		}
		return out
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			if i != j {
				dist[i][j] = vecmath.Euclidean(vectors[i], vectors[j])
			}
		}
	}

	// k nearest neighbor indices and k-distance per point.
	neighbors := make([][]int, n)
	kDist := make([]float64, n)
	for i := 0; i < n; i++ {
		order := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				order = append(order, j)
			}
		}
		sort.SliceStable(order, func(a, b int) bool {
			return dist[i][order[a]] < dist[i][order[b]]
		})
		neighbors[i] = order[:k]
		kDist[i] = dist[i][order[k-1]]
	}

	reachSum := func(i int) float64 {
		var sum float64
		for _, j := range neighbors[i] {
			rd := dist[i][j]
			if kDist[j] > rd {
				rd = kDist[j]
			}
			sum += rd
		}
		return sum
	}

	lrd := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := reachSum(i)
		if sum == 0 {
			// Duplicated points have zero reach distance; treat the
			// density as effectively infinite.
			lrd[i] = 0
			continue
		}
		lrd[i] = float64(k) / sum
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		if lrd[i] == 0 {
			scores[i] = 1
			continue
		}
		var sum float64
		count := 0
		for _, j := range neighbors[i] {
			if lrd[j] == 0 {
				continue
			}
			sum += lrd[j]
			count++
		}
		if count == 0 {
			scores[i] = 1
			continue
		}
		scores[i] = (sum / float64(count)) / lrd[i]
	}
	return scores
}
