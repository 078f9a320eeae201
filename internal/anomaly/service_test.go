package anomaly

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/soratone/counsel-backend/internal/pkg/errors"
)

// cornerCluster builds a tight cluster plus one far outlier.
func cornerCluster() ([][]float32, []Meta) {
	vecs := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1}, {0.05, 0.05},
		{0.02, 0.08}, {0.08, 0.02}, {0.04, 0.04}, {0.06, 0.09},
		{25, 25},
	}
	metas := make([]Meta, len(vecs))
	for i := range metas {
		metas[i] = Meta{
			VectorID:    uuid.New(),
			SessionID:   uuid.New(),
			Text:        strings.Repeat("通常の成功会話です。", 40),
			SuccessRate: 1.0,
		}
	}
	return vecs, metas
}

func TestDetectIsolationForestFindsOutlier(t *testing.T) {
	vecs, metas := cornerCluster()
	res, err := Detect(vecs, metas, Options{Method: MethodIsolationForest, Contamination: 0.1})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.OutlierIndices) != 1 {
		t.Fatalf("contamination 0.1 over 10 points should flag 1 outlier, got %v", res.OutlierIndices)
	}
	if res.OutlierIndices[0] != 9 {
		t.Fatalf("the distant point should be the outlier, got index %d", res.OutlierIndices[0])
	}
	if !res.IsAnomaly[9] || res.IsAnomaly[0] {
		t.Fatalf("flags inconsistent with outlier indices")
	}
	if len(res.Scores) != len(vecs) {
		t.Fatalf("every vector needs a score")
	}
}

func TestDetectLOFFindsOutlier(t *testing.T) {
	vecs, metas := cornerCluster()
	res, err := Detect(vecs, metas, Options{Method: MethodLOF, Contamination: 0.1})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.OutlierIndices) != 1 || res.OutlierIndices[0] != 9 {
		t.Fatalf("LOF should flag the distant point, got %v", res.OutlierIndices)
	}
}

func TestDetectDeterministic(t *testing.T) {
	vecs, metas := cornerCluster()
	a, err := Detect(vecs, metas, Options{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	b, err := Detect(vecs, metas, Options{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for i := range a.Scores {
		if a.Scores[i] != b.Scores[i] {
			t.Fatalf("scores differ between identical runs at %d: %v vs %v", i, a.Scores[i], b.Scores[i])
		}
	}
}

func TestDetectValidation(t *testing.T) {
	_, err := Detect([][]float32{{1, 2}}, []Meta{{}}, Options{})
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("single vector should be rejected, got %v", err)
	}
	vecs, metas := cornerCluster()
	_, err = Detect(vecs, metas[:3], Options{})
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("mismatched metadata should be rejected, got %v", err)
	}
	_, err = Detect(vecs, metas, Options{Method: "one-class-svm"})
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("unknown method should be rejected, got %v", err)
	}
}

func TestDetectRejectsMixedDimensions(t *testing.T) {
	vecs := [][]float32{{1, 0}, {0, 1}, {1, 1, 1}}
	metas := make([]Meta, len(vecs))
	for i := range metas {
		metas[i] = Meta{VectorID: uuid.New(), SessionID: uuid.New(), Text: "会話", SuccessRate: 1.0}
	}
	_, err := Detect(vecs, metas, Options{})
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("mixed-dimension vectors should be rejected, got %v", err)
	}
}

func TestReportSpecialCharacteristics(t *testing.T) {
	vecs, metas := cornerCluster()
	// Make the outlier a short transcript from a low-rate session.
	metas[9].Text = "短い会話"
	metas[9].SuccessRate = 0.2

	res, err := Detect(vecs, metas, Options{Contamination: 0.1})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	report := res.Report
	if report.OutlierCount != 1 {
		t.Fatalf("outlier count = %d, want 1", report.OutlierCount)
	}
	if len(report.Special.LowSuccessOutliers) != 1 {
		t.Fatalf("rate 0.2 should register as a low-success outlier")
	}
	if len(report.Special.UnusualLengthPatterns) != 1 || report.Special.UnusualLengthPatterns[0].Pattern != "very_short" {
		t.Fatalf("short transcript should register as very_short, got %+v", report.Special.UnusualLengthPatterns)
	}
	if len(report.Details) != 1 || report.Details[0].Index != 9 {
		t.Fatalf("details should describe the flagged point, got %+v", report.Details)
	}
}

func TestInsightsLowSuccessBranch(t *testing.T) {
	report := &Report{
		SuccessRateComparison: StatPair{NormalAvg: 1.0, OutlierAvg: 0.2},
	}
	msgs := insights(report)
	found := false
	for _, m := range msgs {
		if strings.Contains(m, "成約以外の価値") {
			found = true
		}
	}
	if !found {
		t.Fatalf("low outlier average should produce the non-contract-value insight, got %v", msgs)
	}
}

func TestLOFNeighborsBounds(t *testing.T) {
	if got := LOFNeighbors(3); got != 1 {
		t.Fatalf("tiny corpus should floor at 1, got %d", got)
	}
	if got := LOFNeighbors(50); got != 10 {
		t.Fatalf("50/5 = 10, got %d", got)
	}
	if got := LOFNeighbors(1000); got != 20 {
		t.Fatalf("neighbors cap at 20, got %d", got)
	}
}
