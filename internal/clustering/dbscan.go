package clustering

import "github.com/soratone/counsel-backend/internal/pkg/vecmath"

// NoiseLabel marks points no density cluster claims.
const NoiseLabel = -1

// DBSCANResult is one density clustering outcome. Centroids holds the
// member mean per cluster label; noise points have no centroid.
type DBSCANResult struct {
	Labels       []int
	ClusterCount int
	NoiseCount   int
	Centroids    map[int][]float32
}

// DBSCAN runs density clustering with Euclidean neighborhoods. Labels
// are assigned in scan order, so results are deterministic for a fixed
// input order.
func DBSCAN(vectors [][]float32, eps float64, minPoints int) DBSCANResult {
	n := len(vectors)
	const unvisited = -2

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if j != i && vecmath.Euclidean(vectors[i], vectors[j]) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		nbrs := neighbors(i)
		if len(nbrs)+1 < minPoints {
			labels[i] = NoiseLabel
			continue
		}

		labels[i] = cluster
		queue := append([]int(nil), nbrs...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == NoiseLabel {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			jNbrs := neighbors(j)
			if len(jNbrs)+1 >= minPoints {
				queue = append(queue, jNbrs...)
			}
		}
		cluster++
	}

	centroids := make(map[int][]float32, cluster)
	noise := 0
	for label := 0; label < cluster; label++ {
		var members [][]float32
		for i := range vectors {
			if labels[i] == label {
				members = append(members, vectors[i])
			}
		}
		if mean, ok := vecmath.Mean(members); ok {
			centroids[label] = mean
		}
	}
	for i := range labels {
		if labels[i] == NoiseLabel {
			noise++
		}
	}

	return DBSCANResult{
		Labels:       labels,
		ClusterCount: cluster,
		NoiseCount:   noise,
		Centroids:    centroids,
	}
}
