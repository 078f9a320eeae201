package scripts

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/soratone/counsel-backend/internal/keywords"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

// Overall quality weights.
const (
	weightCoverage        = 0.25
	weightSuccessMatching = 0.30
	weightContentQuality  = 0.25
	weightNovelty         = 0.15
	weightReliability     = 0.05
)

// SuccessPattern is one clustered success pattern the script should cover.
type SuccessPattern struct {
	Name        string   `json:"name"`
	Keywords    []string `json:"keywords"`
	Suggestions []string `json:"improvement_suggestions,omitempty"`
}

// SuccessElement is a named success factor checked by keyword and regex.
type SuccessElement struct {
	Name        string   `json:"name"`
	Keywords    []string `json:"keywords"`
	Patterns    []string `json:"patterns,omitempty"`
	Suggestions []string `json:"improvement_suggestions,omitempty"`
}

// SourceQuality describes the data the script was generated from. Zero
// numeric fields fall back to conservative defaults.
type SourceQuality struct {
	Completeness            float64 `json:"completeness"`
	Consistency             float64 `json:"consistency"`
	Accuracy                float64 `json:"accuracy"`
	SampleSize              int     `json:"sample_size"`
	SuccessRateVariance     float64 `json:"success_rate_variance"`
	ConfidenceIntervalWidth float64 `json:"confidence_interval_width"`
	DataRecencyDays         int     `json:"data_recency"`
	CounselorDiversity      int     `json:"counselor_diversity"`
}

// BaseData is everything the analyzer compares a script against.
type BaseData struct {
	SuccessPatterns   []SuccessPattern
	HistoricalScripts []*Script
	SuccessElements   []SuccessElement
	SourceQuality     SourceQuality
}

// CoveredPattern and MissingPattern report per-pattern coverage.
type CoveredPattern struct {
	Name          string   `json:"name"`
	CoverageScore float64  `json:"coverage_score"`
	KeyElements   []string `json:"key_elements"`
}

type MissingPattern struct {
	Name            string   `json:"name"`
	MissingElements []string `json:"missing_elements"`
	Suggestions     []string `json:"suggestions,omitempty"`
}

// CoverageReport summarizes success-pattern coverage.
type CoverageReport struct {
	CoveragePercentage float64            `json:"coverage_percentage"`
	CoveredPatterns    []CoveredPattern   `json:"covered_patterns"`
	MissingPatterns    []MissingPattern   `json:"missing_patterns"`
	PatternScores      map[string]float64 `json:"coverage_details"`
	TotalPatterns      int                `json:"total_patterns_analyzed"`
}

// NoveltyReport compares the script against previously generated ones.
type NoveltyReport struct {
	NoveltyScore     float64  `json:"novelty_score"`
	UniqueElements   []string `json:"unique_elements"`
	SimilarityToPast float64  `json:"similarity_to_past"`
	MaxSimilarity    float64  `json:"max_similarity"`
	InnovationAreas  []string `json:"innovation_areas"`
	ComparisonCount  int      `json:"comparison_count"`
}

// MatchedElement and MissingElement report success-element matching.
type MatchedElement struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

type MissingElement struct {
	Name        string   `json:"name"`
	Strength    float64  `json:"strength"`
	Suggestions []string `json:"recommendations,omitempty"`
}

// MatchingReport summarizes success-element matching.
type MatchingReport struct {
	MatchingRate    float64            `json:"matching_rate"`
	MatchedElements []MatchedElement   `json:"matched_elements"`
	MissingElements []MissingElement   `json:"missing_elements"`
	ElementStrength map[string]float64 `json:"element_strength"`
	TotalElements   int                `json:"total_elements_analyzed"`
}

// ReliabilityReport grades the trustworthiness of the source data.
type ReliabilityReport struct {
	ConfidenceScore        float64  `json:"confidence_score"`
	DataQualityScore       float64  `json:"data_quality_score"`
	SampleSizeAdequacy     float64  `json:"sample_size_adequacy"`
	StatisticalReliability float64  `json:"statistical_reliability"`
	RecommendationStrength string   `json:"recommendation_strength"`
	Factors                []string `json:"reliability_factors"`
}

// ContentMetrics are raw text statistics.
type ContentMetrics struct {
	WordCount         int     `json:"word_count"`
	SentenceCount     int     `json:"sentence_count"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	CharacterCount    int     `json:"character_count"`
}

// ContentReport grades the script's writing quality.
type ContentReport struct {
	OverallScore       float64        `json:"overall_score"`
	ReadabilityScore   float64        `json:"readability_score"`
	ActionabilityScore float64        `json:"actionability_score"`
	StructureScore     float64        `json:"structure_score"`
	ExpertiseScore     float64        `json:"expertise_score"`
	Metrics            ContentMetrics `json:"content_metrics"`
	Suggestions        []string       `json:"improvement_suggestions"`
}

// PriorityArea ranks where improvement effort pays off most.
type PriorityArea struct {
	Area                 string  `json:"area"`
	CurrentScore         float64 `json:"current_score"`
	ImprovementPotential float64 `json:"improvement_potential"`
	ImpactWeight         float64 `json:"impact_weight"`
	PriorityScore        float64 `json:"priority_score"`
}

// DetailedAnalysis is the narrative layer over the numeric reports.
type DetailedAnalysis struct {
	Strengths           []string       `json:"strengths"`
	Weaknesses          []string       `json:"weaknesses"`
	Recommendations     []string       `json:"recommendations"`
	KeyInsights         []string       `json:"key_insights"`
	ImprovementPriority []PriorityArea `json:"improvement_priority"`
}

// QualityReport is the full analysis of one generated script.
type QualityReport struct {
	Coverage        CoverageReport    `json:"coverage"`
	Novelty         NoveltyReport     `json:"novelty"`
	SuccessMatching MatchingReport    `json:"success_matching"`
	Reliability     ReliabilityReport `json:"reliability"`
	ContentQuality  ContentReport     `json:"content_quality"`
	Detailed        DetailedAnalysis  `json:"detailed_analysis"`
	OverallQuality  float64           `json:"overall_quality"`
	AnalyzedAt      time.Time         `json:"analyzed_at"`
}

// Analyzer scores generated scripts against their source data.
type Analyzer struct {
	vocab *keywords.Config
	log   *logger.Logger
}

func NewAnalyzer(vocab *keywords.Config, log *logger.Logger) *Analyzer {
	return &Analyzer{vocab: vocab, log: log.With("service", "ScriptQualityAnalyzer")}
}

// Analyze runs the full quality analysis of a script.
func (a *Analyzer) Analyze(script *Script, base BaseData) *QualityReport {
	report := &QualityReport{
		Coverage:        a.analyzeCoverage(script, base.SuccessPatterns),
		Novelty:         a.analyzeNovelty(script, base.HistoricalScripts),
		SuccessMatching: a.analyzeMatching(script, base.SuccessElements),
		Reliability:     a.analyzeReliability(base.SourceQuality),
		ContentQuality:  a.analyzeContent(script),
		AnalyzedAt:      time.Now().UTC(),
	}
	report.OverallQuality = overallQuality(report)
	report.Detailed = a.detailedAnalysis(report)

	a.log.Info("Script quality analyzed", "overall_quality", report.OverallQuality)
	return report
}

func overallQuality(r *QualityReport) float64 {
	return r.Coverage.CoveragePercentage/100*weightCoverage +
		r.SuccessMatching.MatchingRate*weightSuccessMatching +
		r.ContentQuality.OverallScore*weightContentQuality +
		r.Novelty.NoveltyScore*weightNovelty +
		r.Reliability.ConfidenceScore*weightReliability
}

// Coverage.

func (a *Analyzer) analyzeCoverage(script *Script, patterns []SuccessPattern) CoverageReport {
	report := CoverageReport{
		PatternScores: make(map[string]float64, len(patterns)),
		TotalPatterns: len(patterns),
	}
	if len(patterns) == 0 {
		return report
	}

	text := script.AllText()
	for _, pattern := range patterns {
		score := patternCoverageScore(text, pattern.Keywords)
		report.PatternScores[pattern.Name] = score

		// Half of the pattern's keywords present counts as covered.
		if score >= 0.5 {
			report.CoveredPatterns = append(report.CoveredPatterns, CoveredPattern{
				Name:          pattern.Name,
				CoverageScore: score,
				KeyElements:   firstN(pattern.Keywords, 3),
			})
			continue
		}
		var missing []string
		for _, kw := range pattern.Keywords {
			if !containsKeyword(text, kw) {
				missing = append(missing, kw)
			}
		}
		report.MissingPatterns = append(report.MissingPatterns, MissingPattern{
			Name:            pattern.Name,
			MissingElements: missing,
			Suggestions:     pattern.Suggestions,
		})
	}
	report.CoveragePercentage = float64(len(report.CoveredPatterns)) / float64(len(patterns)) * 100
	return report
}

func patternCoverageScore(text string, kws []string) float64 {
	if len(kws) == 0 {
		return 0
	}
	found := 0
	for _, kw := range kws {
		if containsKeyword(text, kw) {
			found++
		}
	}
	return float64(found) / float64(len(kws))
}

// Novelty.

func (a *Analyzer) analyzeNovelty(script *Script, historical []*Script) NoveltyReport {
	if len(historical) == 0 {
		return NoveltyReport{NoveltyScore: 1.0}
	}

	current := script.AllText()
	currentWords := wordSet(current)

	var maxSim, sumSim float64
	historicalWords := make(map[string]struct{})
	for _, h := range historical {
		text := h.AllText()
		sim := jaccard(currentWords, wordSet(text))
		sumSim += sim
		if sim > maxSim {
			maxSim = sim
		}
		for w := range wordSet(text) {
			historicalWords[w] = struct{}{}
		}
	}

	var unique []string
	for w := range currentWords {
		if _, seen := historicalWords[w]; seen {
			continue
		}
		if len([]rune(w)) >= 3 {
			unique = append(unique, w)
		}
	}
	sort.Strings(unique)
	unique = firstN(unique, 10)

	var innovations []string
	for _, kw := range a.vocab.InnovationKeywords {
		if strings.Contains(current, kw) {
			innovations = append(innovations, kw)
		}
	}

	return NoveltyReport{
		NoveltyScore:     1.0 - maxSim,
		UniqueElements:   unique,
		SimilarityToPast: sumSim / float64(len(historical)),
		MaxSimilarity:    maxSim,
		InnovationAreas:  innovations,
		ComparisonCount:  len(historical),
	}
}

func wordSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for w := range a {
		if _, ok := b[w]; ok {
			common++
		}
	}
	return float64(common) / float64(len(a)+len(b)-common)
}

// Success-element matching.

func (a *Analyzer) analyzeMatching(script *Script, elements []SuccessElement) MatchingReport {
	report := MatchingReport{
		ElementStrength: make(map[string]float64, len(elements)),
		TotalElements:   len(elements),
	}
	if len(elements) == 0 {
		return report
	}

	text := script.AllText()
	for _, el := range elements {
		kwRate := patternCoverageScore(text, el.Keywords)

		patRate := 0.0
		if len(el.Patterns) > 0 {
			hits := 0
			for _, p := range el.Patterns {
				re, err := regexp.Compile("(?i)" + p)
				if err != nil {
					a.log.Warn("Invalid success element pattern", "element", el.Name, "pattern", p)
					continue
				}
				if re.MatchString(text) {
					hits++
				}
			}
			patRate = float64(hits) / float64(len(el.Patterns))
		}

		strength := (kwRate + patRate) / 2
		report.ElementStrength[el.Name] = strength

		if strength >= 0.3 {
			report.MatchedElements = append(report.MatchedElements, MatchedElement{
				Name: el.Name, Strength: strength,
			})
		} else {
			report.MissingElements = append(report.MissingElements, MissingElement{
				Name: el.Name, Strength: strength, Suggestions: el.Suggestions,
			})
		}
	}
	report.MatchingRate = float64(len(report.MatchedElements)) / float64(len(elements))
	return report
}

// Reliability.

func (a *Analyzer) analyzeReliability(src SourceQuality) ReliabilityReport {
	dataQuality := (defaultIfZero(src.Completeness, 0.8) +
		defaultIfZero(src.Consistency, 0.8) +
		defaultIfZero(src.Accuracy, 0.8)) / 3

	adequacy := sampleAdequacy(src.SampleSize)

	variance := defaultIfZero(src.SuccessRateVariance, 0.1)
	interval := defaultIfZero(src.ConfidenceIntervalWidth, 0.2)
	statistical := (math.Max(0, 1-variance*2) + math.Max(0, 1-interval)) / 2

	confidence := dataQuality*0.4 + adequacy*0.3 + statistical*0.3

	var factors []string
	if src.SampleSize >= 50 {
		factors = append(factors, "十分なサンプルサイズ")
	}
	if src.DataRecencyDays > 0 && src.DataRecencyDays <= 30 {
		factors = append(factors, "最新データに基づく分析")
	}
	if variance < 0.1 {
		factors = append(factors, "安定した成功率パターン")
	}
	if src.CounselorDiversity >= 3 {
		factors = append(factors, "複数カウンセラーからのデータ")
	}

	return ReliabilityReport{
		ConfidenceScore:        confidence,
		DataQualityScore:       dataQuality,
		SampleSizeAdequacy:     adequacy,
		StatisticalReliability: statistical,
		RecommendationStrength: recommendationStrength(confidence),
		Factors:                factors,
	}
}

func sampleAdequacy(n int) float64 {
	switch {
	case n >= 100:
		return 1.0
	case n >= 50:
		return 0.8
	case n >= 20:
		return 0.6
	case n >= 10:
		return 0.4
	default:
		return 0.2
	}
}

func recommendationStrength(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "高信頼度推奨"
	case confidence >= 0.6:
		return "中程度推奨"
	case confidence >= 0.4:
		return "条件付き推奨"
	default:
		return "要注意・要検証"
	}
}

// Content quality.

func (a *Analyzer) analyzeContent(script *Script) ContentReport {
	text := script.AllText()

	readability := readabilityScore(text)
	actionability := indicatorDensityScore(text, a.vocab.ActionIndicators)
	structure := structureScore(script)
	expertise := expertiseScore(text, a.vocab.ExpertTerms)

	overall := readability*0.25 + actionability*0.30 + structure*0.25 + expertise*0.20

	var suggestions []string
	if readability < 0.7 {
		suggestions = append(suggestions, "文章をより簡潔で読みやすくする")
	}
	if actionability < 0.7 {
		suggestions = append(suggestions, "具体的な実践方法やテクニックを追加する")
	}
	if structure < 0.7 {
		suggestions = append(suggestions, "構造を整理し、欠落セクションを補完する")
	}
	if expertise < 0.7 {
		suggestions = append(suggestions, "業界専門用語を適切に使用し、専門性を向上させる")
	}

	words := strings.Fields(text)
	sentences := strings.Split(text, "。")
	avgLen := 0.0
	if len(sentences) > 0 {
		avgLen = float64(len(words)) / float64(len(sentences))
	}

	return ContentReport{
		OverallScore:       overall,
		ReadabilityScore:   readability,
		ActionabilityScore: actionability,
		StructureScore:     structure,
		ExpertiseScore:     expertise,
		Metrics: ContentMetrics{
			WordCount:         len(words),
			SentenceCount:     len(sentences),
			AvgSentenceLength: avgLen,
			CharacterCount:    len([]rune(text)),
		},
		Suggestions: suggestions,
	}
}

// readabilityScore grades average sentence length against a 10-20 word
// ideal.
func readabilityScore(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	sentences := strings.Split(text, "。")
	words := strings.Fields(text)
	if len(sentences) == 0 || len(words) == 0 {
		return 0
	}
	avg := float64(len(words)) / float64(len(sentences))
	switch {
	case avg >= 10 && avg <= 20:
		return 1.0
	case avg < 10:
		return avg / 10
	default:
		return math.Max(0.3, 20/avg)
	}
}

// indicatorDensityScore grades how densely actionable phrasing appears,
// with a 2-5% ideal band.
func indicatorDensityScore(text string, indicators []string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	density := float64(keywords.CountOccurrences(text, indicators)) / float64(len(words)) * 100
	switch {
	case density >= 2 && density <= 5:
		return 1.0
	case density < 2:
		return density / 2
	default:
		return math.Max(0.5, 5/density)
	}
}

// expertiseScore grades industry-term density against a 1-3% ideal band.
func expertiseScore(text string, terms []string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	density := float64(keywords.CountOccurrences(text, terms)) / float64(len(words)) * 100
	switch {
	case density >= 1 && density <= 3:
		return 1.0
	case density < 1:
		return density
	default:
		return math.Max(0.6, 3/density)
	}
}

// structureScore averages required-section presence and phase presence.
func structureScore(script *Script) float64 {
	sections := []string{
		script.SuccessFactorsAnalysis,
		script.ImprovementPoints,
		script.CounselingScript.Opening + script.CounselingScript.NeedsAssessment +
			script.CounselingScript.SolutionProposal + script.CounselingScript.Closing,
		script.PracticalImprovements,
	}
	presentSections := 0
	for _, s := range sections {
		if len([]rune(strings.TrimSpace(s))) > 30 {
			presentSections++
		}
	}

	phases := []string{
		script.CounselingScript.Opening,
		script.CounselingScript.NeedsAssessment,
		script.CounselingScript.SolutionProposal,
		script.CounselingScript.Closing,
	}
	presentPhases := 0
	for _, p := range phases {
		if len([]rune(strings.TrimSpace(p))) > 20 {
			presentPhases++
		}
	}

	return (float64(presentSections)/float64(len(sections)) +
		float64(presentPhases)/float64(len(phases))) / 2
}

// Narrative layer.

func (a *Analyzer) detailedAnalysis(r *QualityReport) DetailedAnalysis {
	var strengths, weaknesses, recommendations []string

	if r.Coverage.CoveragePercentage > 75 {
		strengths = append(strengths, "成功パターンの網羅性が高い")
	} else {
		weaknesses = append(weaknesses, "成功パターンのカバレッジが不足")
		recommendations = append(recommendations, "不足している成功パターンの要素を追加する")
	}

	if r.Novelty.NoveltyScore > 0.6 {
		strengths = append(strengths, "既存スクリプトとの差別化ができている")
	} else if r.Novelty.NoveltyScore < 0.3 {
		weaknesses = append(weaknesses, "既存スクリプトとの類似性が高すぎる")
		recommendations = append(recommendations, "より独創的なアプローチを検討する")
	}

	if r.SuccessMatching.MatchingRate > 0.7 {
		strengths = append(strengths, "重要な成功要素が適切に含まれている")
	} else {
		weaknesses = append(weaknesses, "重要な成功要素の取り込みが不十分")
		for _, missing := range firstNMissing(r.SuccessMatching.MissingElements, 3) {
			recommendations = append(recommendations, fmt.Sprintf("%s要素の強化を検討", missing.Name))
		}
	}

	if r.ContentQuality.ReadabilityScore > 0.7 {
		strengths = append(strengths, "読みやすく理解しやすい構成")
	}
	if r.ContentQuality.ActionabilityScore > 0.7 {
		strengths = append(strengths, "実践的で具体的な内容")
	} else {
		weaknesses = append(weaknesses, "具体性や実践性に改善の余地がある")
		recommendations = append(recommendations, "より具体的な例やテクニックを追加する")
	}

	return DetailedAnalysis{
		Strengths:           strengths,
		Weaknesses:          weaknesses,
		Recommendations:     recommendations,
		KeyInsights:         keyInsights(r),
		ImprovementPriority: improvementPriority(r),
	}
}

func keyInsights(r *QualityReport) []string {
	var insights []string
	switch {
	case r.OverallQuality > 0.8:
		insights = append(insights, "高品質なスクリプトが生成されており、即座に実用可能です")
	case r.OverallQuality > 0.6:
		insights = append(insights, "良好な品質のスクリプトですが、一部改善の余地があります")
	default:
		insights = append(insights, "品質向上のためのさらなる改善が必要です")
	}
	if r.Coverage.CoveragePercentage > 80 {
		insights = append(insights, "成功パターンの網羅性に優れており、多様な顧客ニーズに対応可能")
	}
	if r.Novelty.NoveltyScore > 0.7 {
		insights = append(insights, "創新性が高く、競合他社との差別化が期待できます")
	}
	return insights
}

func improvementPriority(r *QualityReport) []PriorityArea {
	areas := []PriorityArea{
		{Area: "カバレッジ向上", CurrentScore: r.Coverage.CoveragePercentage / 100, ImpactWeight: 0.3},
		{Area: "成功要素強化", CurrentScore: r.SuccessMatching.MatchingRate, ImpactWeight: 0.35},
		{Area: "コンテンツ品質向上", CurrentScore: r.ContentQuality.OverallScore, ImpactWeight: 0.25},
		{Area: "新規性向上", CurrentScore: r.Novelty.NoveltyScore, ImpactWeight: 0.1},
	}
	for i := range areas {
		areas[i].ImprovementPotential = 1 - areas[i].CurrentScore
		areas[i].PriorityScore = areas[i].ImprovementPotential * areas[i].ImpactWeight
	}
	sort.SliceStable(areas, func(i, j int) bool {
		return areas[i].PriorityScore > areas[j].PriorityScore
	})
	return areas
}

func firstNMissing(items []MissingElement, n int) []MissingElement {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func defaultIfZero(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func containsKeyword(text, kw string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(kw))
}
