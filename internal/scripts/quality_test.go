package scripts

import (
	"testing"

	"github.com/soratone/counsel-backend/internal/keywords"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewAnalyzer(keywords.Default(), log)
}

func fullScript() *Script {
	return ParseResponse(sampleResponse)
}

func TestCoverageAllPatternsPresent(t *testing.T) {
	a := newAnalyzer(t)
	patterns := []SuccessPattern{
		{Name: "料金説明", Keywords: []string{"料金", "割引"}},
		{Name: "体験導線", Keywords: []string{"体験コース", "無料"}},
	}

	cov := a.analyzeCoverage(fullScript(), patterns)
	if cov.CoveragePercentage != 100 {
		t.Fatalf("coverage = %v, want 100", cov.CoveragePercentage)
	}
	if len(cov.CoveredPatterns) != 2 || len(cov.MissingPatterns) != 0 {
		t.Fatalf("covered=%d missing=%d", len(cov.CoveredPatterns), len(cov.MissingPatterns))
	}
}

func TestCoverageMissingPattern(t *testing.T) {
	a := newAnalyzer(t)
	patterns := []SuccessPattern{
		{Name: "医療連携", Keywords: []string{"医師", "診察", "カルテ"}},
	}

	cov := a.analyzeCoverage(fullScript(), patterns)
	if cov.CoveragePercentage != 0 {
		t.Fatalf("coverage = %v, want 0", cov.CoveragePercentage)
	}
	if len(cov.MissingPatterns) != 1 || len(cov.MissingPatterns[0].MissingElements) != 3 {
		t.Fatalf("missing patterns = %+v", cov.MissingPatterns)
	}
}

func TestNoveltyNoHistory(t *testing.T) {
	a := newAnalyzer(t)
	nov := a.analyzeNovelty(fullScript(), nil)
	if nov.NoveltyScore != 1.0 {
		t.Fatalf("novelty = %v, want 1.0 with no history", nov.NoveltyScore)
	}
}

func TestNoveltyIdenticalHistory(t *testing.T) {
	a := newAnalyzer(t)
	script := fullScript()
	nov := a.analyzeNovelty(script, []*Script{fullScript()})

	if nov.NoveltyScore != 0 {
		t.Fatalf("novelty = %v, want 0 against an identical script", nov.NoveltyScore)
	}
	if nov.MaxSimilarity != 1.0 {
		t.Fatalf("max similarity = %v, want 1.0", nov.MaxSimilarity)
	}
	if len(nov.UniqueElements) != 0 {
		t.Fatalf("unique elements = %v, want none", nov.UniqueElements)
	}
}

func TestMatchingThreshold(t *testing.T) {
	a := newAnalyzer(t)
	elements := []SuccessElement{
		{Name: "料金透明性", Keywords: []string{"料金", "割引"}},
		{Name: "医療監修", Keywords: []string{"医師", "診察"}},
	}

	m := a.analyzeMatching(fullScript(), elements)
	if m.MatchingRate != 0.5 {
		t.Fatalf("matching rate = %v, want 0.5", m.MatchingRate)
	}
	if len(m.MatchedElements) != 1 || m.MatchedElements[0].Name != "料金透明性" {
		t.Fatalf("matched = %+v", m.MatchedElements)
	}
	if len(m.MissingElements) != 1 || m.MissingElements[0].Name != "医療監修" {
		t.Fatalf("missing = %+v", m.MissingElements)
	}
}

func TestReliabilitySampleBands(t *testing.T) {
	a := newAnalyzer(t)
	cases := []struct {
		size int
		want float64
	}{
		{150, 1.0}, {60, 0.8}, {25, 0.6}, {12, 0.4}, {3, 0.2},
	}
	for _, c := range cases {
		rel := a.analyzeReliability(SourceQuality{SampleSize: c.size})
		if rel.SampleSizeAdequacy != c.want {
			t.Errorf("sample %d adequacy = %v, want %v", c.size, rel.SampleSizeAdequacy, c.want)
		}
	}
}

func TestReliabilityStrengthLabel(t *testing.T) {
	a := newAnalyzer(t)
	rel := a.analyzeReliability(SourceQuality{
		Completeness: 1, Consistency: 1, Accuracy: 1,
		SampleSize:          200,
		SuccessRateVariance: 0.01, ConfidenceIntervalWidth: 0.05,
		CounselorDiversity: 4,
	})
	if rel.RecommendationStrength != "高信頼度推奨" {
		t.Fatalf("strength = %q, confidence = %v", rel.RecommendationStrength, rel.ConfidenceScore)
	}
	if !containsString(rel.Factors, "複数カウンセラーからのデータ") {
		t.Fatalf("factors = %v", rel.Factors)
	}
}

func TestImprovementPriorityRanking(t *testing.T) {
	a := newAnalyzer(t)
	report := a.Analyze(&Script{RawContent: "空"}, BaseData{
		SuccessPatterns: []SuccessPattern{{Name: "p", Keywords: []string{"存在しない語"}}},
		SuccessElements: []SuccessElement{{Name: "e", Keywords: []string{"存在しない語"}}},
	})

	// With coverage and matching both at zero and novelty at its
	// maximum, element matching carries the highest weight.
	pri := report.Detailed.ImprovementPriority
	if len(pri) != 4 || pri[0].Area != "成功要素強化" {
		t.Fatalf("priority = %+v", pri)
	}
	if pri[len(pri)-1].Area != "新規性向上" {
		t.Fatalf("priority tail = %+v", pri)
	}
}

func TestAnalyzeNarrative(t *testing.T) {
	a := newAnalyzer(t)
	report := a.Analyze(fullScript(), BaseData{
		SuccessPatterns: []SuccessPattern{{Name: "料金説明", Keywords: []string{"料金"}}},
		SuccessElements: []SuccessElement{{Name: "料金透明性", Keywords: []string{"料金"}}},
		SourceQuality:   SourceQuality{SampleSize: 120},
	})

	if !containsString(report.Detailed.Strengths, "成功パターンの網羅性が高い") {
		t.Fatalf("strengths = %v", report.Detailed.Strengths)
	}
	if !containsString(report.Detailed.Strengths, "重要な成功要素が適切に含まれている") {
		t.Fatalf("strengths = %v", report.Detailed.Strengths)
	}
	if report.OverallQuality <= 0 || report.OverallQuality > 1 {
		t.Fatalf("overall = %v", report.OverallQuality)
	}
}

func TestContentReportSuggestions(t *testing.T) {
	a := newAnalyzer(t)
	content := a.analyzeContent(&Script{SuccessFactorsAnalysis: "短い。"})
	if content.StructureScore >= 0.7 {
		t.Fatalf("structure = %v, want low for near-empty script", content.StructureScore)
	}
	if !containsString(content.Suggestions, "構造を整理し、欠落セクションを補完する") {
		t.Fatalf("suggestions = %v", content.Suggestions)
	}
}

func containsString(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}
