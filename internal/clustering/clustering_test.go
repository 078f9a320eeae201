package clustering

import (
	"math"
	"reflect"
	"testing"

	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

func testService(t *testing.T) *Service {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewService(nil, nil, nil, nil, log)
}

// Two tight groups far apart plus a point near the first group.
func twoGroups() [][]float32 {
	return [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10},
	}
}

func TestKMeansSeparatesObviousGroups(t *testing.T) {
	vecs := twoGroups()
	fit := KMeans(vecs, 2)

	if fit.Labels[0] != fit.Labels[1] || fit.Labels[1] != fit.Labels[2] {
		t.Fatalf("first group split across clusters: %v", fit.Labels)
	}
	if fit.Labels[3] != fit.Labels[4] {
		t.Fatalf("second group split across clusters: %v", fit.Labels)
	}
	if fit.Labels[0] == fit.Labels[3] {
		t.Fatalf("groups merged into one cluster: %v", fit.Labels)
	}
	if fit.Inertia <= 0 {
		t.Fatalf("inertia should be positive for non-identical members, got %v", fit.Inertia)
	}
}

func TestKMeansDeterministic(t *testing.T) {
	vecs := twoGroups()
	a := KMeans(vecs, 2)
	b := KMeans(vecs, 2)
	if !reflect.DeepEqual(a.Labels, b.Labels) {
		t.Fatalf("same input produced different labels: %v vs %v", a.Labels, b.Labels)
	}
	if !reflect.DeepEqual(a.Centroids, b.Centroids) {
		t.Fatalf("same input produced different centroids")
	}
}

func TestSilhouetteWellSeparated(t *testing.T) {
	vecs := twoGroups()
	labels := []int{0, 0, 0, 1, 1}
	score := Silhouette(vecs, labels)
	if score < 0.9 {
		t.Fatalf("well separated groups should score near 1, got %v", score)
	}
}

func TestSilhouetteDegenerate(t *testing.T) {
	vecs := twoGroups()
	if got := Silhouette(vecs, []int{0, 0, 0, 0, 0}); got != 0 {
		t.Fatalf("single cluster should score 0, got %v", got)
	}
	if got := Silhouette(vecs, []int{-1, -1, -1, -1, -1}); got != 0 {
		t.Fatalf("all-noise labels should score 0, got %v", got)
	}
}

func TestDBSCANMarksNoise(t *testing.T) {
	vecs := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1},
		{50, 50}, // isolated point
	}
	fit := DBSCAN(vecs, 0.5, 3)
	if fit.ClusterCount != 1 {
		t.Fatalf("expected 1 dense cluster, got %d", fit.ClusterCount)
	}
	if fit.Labels[4] != NoiseLabel {
		t.Fatalf("isolated point should be noise, got label %d", fit.Labels[4])
	}
	if fit.NoiseCount != 1 {
		t.Fatalf("noise count = %d, want 1", fit.NoiseCount)
	}
	if _, ok := fit.Centroids[0]; !ok {
		t.Fatalf("dense cluster should have a centroid")
	}
}

func TestElbowCandidateClamping(t *testing.T) {
	vecs := twoGroups()
	res := Elbow(vecs, 2, 15)
	// With 5 vectors the usable range is [2, 4].
	if !reflect.DeepEqual(res.KValues, []int{2, 3, 4}) {
		t.Fatalf("k range should clamp to n-1, got %v", res.KValues)
	}
	if res.OptimalK < 2 || res.OptimalK > 4 {
		t.Fatalf("optimal k out of range: %d", res.OptimalK)
	}
}

func TestGapStatisticDeterministic(t *testing.T) {
	vecs := twoGroups()
	a := GapStatistic(vecs, 2, 4)
	b := GapStatistic(vecs, 2, 4)
	if a.OptimalK != b.OptimalK || !reflect.DeepEqual(a.Gaps, b.Gaps) {
		t.Fatalf("gap statistic should be repeatable: %+v vs %+v", a, b)
	}
}

func TestClusterVectorsValidation(t *testing.T) {
	svc := testService(t)

	_, err := svc.clusterVectors([][]float32{{1, 2}}, Options{})
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("one vector should be rejected, got %v", err)
	}

	_, err = svc.clusterVectors([][]float32{{1, 2}, {1, 2, 3}}, Options{})
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("mixed dimensions should be rejected, got %v", err)
	}

	_, err = svc.clusterVectors(twoGroups(), Options{Algorithm: "spectral"})
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("unknown algorithm should be rejected, got %v", err)
	}
}

func TestClusterVectorsAutoKEndToEnd(t *testing.T) {
	svc := testService(t)

	out, err := svc.clusterVectors(twoGroups(), Options{
		Algorithm:   AlgorithmKMeans,
		KMin:        2,
		KMax:        15,
		AutoSelectK: true,
	})
	if err != nil {
		t.Fatalf("clusterVectors: %v", err)
	}
	if out.ClusterCount != 2 {
		t.Fatalf("auto-k should find 2 clusters, got %d", out.ClusterCount)
	}
	if out.SilhouetteScore < 0.9 {
		t.Fatalf("silhouette for clean groups should be near 1, got %v", out.SilhouetteScore)
	}
	if len(out.Assignments) != 5 {
		t.Fatalf("every vector needs an assignment, got %d", len(out.Assignments))
	}
	for i, a := range out.Assignments {
		if math.IsInf(a.DistanceToCentroid, 1) {
			t.Fatalf("assignment %d has no centroid distance", i)
		}
	}
	if len(out.Metrics.ScoresByK) == 0 {
		t.Fatalf("auto-k should record per-k scores")
	}
}

func TestClusterVectorsDBSCANOutcome(t *testing.T) {
	svc := testService(t)

	vecs := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1},
		{50, 50},
	}
	out, err := svc.clusterVectors(vecs, Options{Algorithm: AlgorithmDBSCAN, Eps: 0.5, MinPoints: 3})
	if err != nil {
		t.Fatalf("clusterVectors: %v", err)
	}
	if out.ClusterCount != 1 {
		t.Fatalf("expected 1 cluster, got %d", out.ClusterCount)
	}
	last := out.Assignments[len(out.Assignments)-1]
	if last.ClusterLabel != NoiseLabel || !math.IsInf(last.DistanceToCentroid, 1) {
		t.Fatalf("noise point should carry label -1 and infinite distance, got %+v", last)
	}
	if out.Metrics.NoiseCount != 1 {
		t.Fatalf("noise count = %d, want 1", out.Metrics.NoiseCount)
	}
}
