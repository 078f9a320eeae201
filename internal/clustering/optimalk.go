package clustering

import (
	"math"
	"math/rand"
)

// ElbowResult reports the elbow-method sweep.
type ElbowResult struct {
	OptimalK          int
	KValues           []int
	Inertias          []float64
	SecondDerivatives []float64
}

// Elbow sweeps k over [kMin, min(kMax, n-1)] and picks the k with the
// sharpest inertia bend (maximum second difference). With fewer than
// three candidate k values the smallest is returned.
func Elbow(vectors [][]float32, kMin, kMax int) ElbowResult {
	kValues := kCandidates(len(vectors), kMin, kMax)
	inertias := make([]float64, len(kValues))
	for i, k := range kValues {
		inertias[i] = KMeans(vectors, k).Inertia
	}

	res := ElbowResult{KValues: kValues, Inertias: inertias}
	if len(kValues) == 0 {
		return res
	}
	res.OptimalK = kValues[0]

	if len(inertias) < 3 {
		return res
	}

	second := make([]float64, 0, len(inertias)-2)
	for i := 1; i < len(inertias)-1; i++ {
		second = append(second, inertias[i-1]-2*inertias[i]+inertias[i+1])
	}
	res.SecondDerivatives = second

	bestIdx := 0
	for i, d := range second {
		if d > second[bestIdx] {
			bestIdx = i
		}
	}
	res.OptimalK = kValues[bestIdx+1]
	return res
}

// GapResult reports the gap-statistic sweep.
type GapResult struct {
	OptimalK int
	KValues  []int
	Gaps     []float64
}

const gapReferenceDraws = 10

// GapStatistic compares real inertia against uniform reference draws
// bounded by the data's per-dimension range, choosing the k with the
// largest log-inertia gap. The reference RNG is seeded for repeatable
// runs.
func GapStatistic(vectors [][]float32, kMin, kMax int) GapResult {
	kValues := kCandidates(len(vectors), kMin, kMax)
	res := GapResult{KValues: kValues}
	if len(kValues) == 0 {
		return res
	}

	dim := len(vectors[0])
	minVals := make([]float64, dim)
	maxVals := make([]float64, dim)
	for d := 0; d < dim; d++ {
		minVals[d] = math.Inf(1)
		maxVals[d] = math.Inf(-1)
	}
	for _, v := range vectors {
		for d := range v {
			f := float64(v[d])
			if f < minVals[d] {
				minVals[d] = f
			}
			if f > maxVals[d] {
				maxVals[d] = f
			}
		}
	}

	rng := rand.New(rand.NewSource(42))
	gaps := make([]float64, len(kValues))
	for i, k := range kValues {
		real := KMeans(vectors, k).Inertia

		var refSum float64
		for draw := 0; draw < gapReferenceDraws; draw++ {
			ref := make([][]float32, len(vectors))
			for j := range ref {
				row := make([]float32, dim)
				for d := 0; d < dim; d++ {
					row[d] = float32(minVals[d] + rng.Float64()*(maxVals[d]-minVals[d]))
				}
				ref[j] = row
			}
			refSum += KMeans(ref, k).Inertia
		}
		meanRef := refSum / gapReferenceDraws

		if real > 0 && meanRef > 0 {
			gaps[i] = math.Log(meanRef) - math.Log(real)
		}
	}
	res.Gaps = gaps

	bestIdx := 0
	for i, g := range gaps {
		if g > gaps[bestIdx] {
			bestIdx = i
		}
	}
	res.OptimalK = kValues[bestIdx]
	return res
}

// kCandidates spans [kMin, min(kMax, n-1)], empty when no k fits.
func kCandidates(n, kMin, kMax int) []int {
	if kMax > n-1 {
		kMax = n - 1
	}
	var out []int
	for k := kMin; k <= kMax; k++ {
		out = append(out, k)
	}
	return out
}
