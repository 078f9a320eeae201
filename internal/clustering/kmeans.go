package clustering

import (
	"math"

	"github.com/soratone/counsel-backend/internal/pkg/vecmath"
)

const kmeansMaxIterations = 300

// KMeansResult is one fitted k-means model.
type KMeansResult struct {
	Labels     []int
	Centroids  [][]float32
	Inertia    float64
	Iterations int
}

// KMeans fits k clusters with farthest-point seeding. Seeding starts
// from the first vector, so the same input always yields the same
// model.
func KMeans(vectors [][]float32, k int) KMeansResult {
	n := len(vectors)
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}

	centroids := seedCentroids(vectors, k)
	labels := make([]int, n)
	iterations := 0

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		iterations = iter + 1
		moved := false

		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if labels[i] != best {
				labels[i] = best
				moved = true
			}
		}
		if iter > 0 && !moved {
			break
		}

		centroids = recomputeCentroids(vectors, labels, centroids)
	}

	inertia := 0.0
	for i, v := range vectors {
		d := vecmath.Euclidean(v, centroids[labels[i]])
		inertia += d * d
	}

	return KMeansResult{
		Labels:     labels,
		Centroids:  centroids,
		Inertia:    inertia,
		Iterations: iterations,
	}
}

// seedCentroids picks the first vector, then repeatedly the vector
// farthest from its nearest chosen centroid.
func seedCentroids(vectors [][]float32, k int) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, vectors[0])

	for len(centroids) < k {
		bestIdx := 0
		bestDist := -1.0
		for i, v := range vectors {
			d := math.Inf(1)
			for _, c := range centroids {
				if cd := vecmath.Euclidean(v, c); cd < d {
					d = cd
				}
			}
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		centroids = append(centroids, vectors[bestIdx])
	}
	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := math.Inf(1)
	for j, c := range centroids {
		if d := vecmath.Euclidean(v, c); d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

// recomputeCentroids averages each cluster's members. An emptied
// cluster keeps its previous centroid.
func recomputeCentroids(vectors [][]float32, labels []int, prev [][]float32) [][]float32 {
	k := len(prev)
	out := make([][]float32, k)
	for j := 0; j < k; j++ {
		var members [][]float32
		for i, v := range vectors {
			if labels[i] == j {
				members = append(members, v)
			}
		}
		if mean, ok := vecmath.Mean(members); ok {
			out[j] = mean
		} else {
			out[j] = prev[j]
		}
	}
	return out
}
