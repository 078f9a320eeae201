package anomaly

import (
	"math"
	"math/rand"
)

const (
	isoForestTrees      = 100
	isoForestSampleSize = 256
)

type isoNode struct {
	left, right *isoNode
	splitDim    int
	splitValue  float32
	size        int
}

// IsolationForestScores returns one anomaly score per vector in (0,1];
// higher means more isolated. The forest is grown from a fixed seed, so
// the same input always scores the same.
func IsolationForestScores(vectors [][]float32) []float64 {
	n := len(vectors)
	if n == 0 {
		return nil
	}
	dim := len(vectors[0])

	sampleSize := isoForestSampleSize
	if sampleSize > n {
		sampleSize = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	rng := rand.New(rand.NewSource(42))
	trees := make([]*isoNode, isoForestTrees)
	for t := range trees {
		sample := make([][]float32, sampleSize)
		for i := range sample {
			sample[i] = vectors[rng.Intn(n)]
		}
		trees[t] = growIsoTree(sample, dim, 0, maxDepth, rng)
	}

	norm := avgPathLength(sampleSize)
	scores := make([]float64, n)
	for i, v := range vectors {
		var sum float64
		for _, tree := range trees {
			sum += pathLength(tree, v, 0)
		}
		mean := sum / float64(len(trees))
		scores[i] = math.Pow(2, -mean/norm)
	}
	return scores
}

func growIsoTree(sample [][]float32, dim, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(sample) <= 1 {
		return &isoNode{size: len(sample)}
	}

	splitDim := rng.Intn(dim)
	min, max := sample[0][splitDim], sample[0][splitDim]
	for _, v := range sample[1:] {
		if v[splitDim] < min {
			min = v[splitDim]
		}
		if v[splitDim] > max {
			max = v[splitDim]
		}
	}
	if min == max {
		return &isoNode{size: len(sample)}
	}
	splitValue := min + rng.Float32()*(max-min)

	var left, right [][]float32
	for _, v := range sample {
		if v[splitDim] < splitValue {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{size: len(sample)}
	}

	return &isoNode{
		left:       growIsoTree(left, dim, depth+1, maxDepth, rng),
		right:      growIsoTree(right, dim, depth+1, maxDepth, rng),
		splitDim:   splitDim,
		splitValue: splitValue,
	}
}

func pathLength(node *isoNode, v []float32, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if v[node.splitDim] < node.splitValue {
		return pathLength(node.left, v, depth+1)
	}
	return pathLength(node.right, v, depth+1)
}

// avgPathLength is the expected unsuccessful-search path length of a
// BST with n nodes, the standard isolation forest normalizer.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	f := float64(n)
	const eulerMascheroni = 0.5772156649
	return 2*(math.Log(f-1)+eulerMascheroni) - 2*(f-1)/f
}
