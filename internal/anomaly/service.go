// Package anomaly finds the unusual successes: conversations that were
// labeled successful but sit far from the common success patterns.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/pkg/vecmath"
)

const (
	MethodIsolationForest = "isolation_forest"
	MethodLOF             = "lof"

	DefaultContamination = 0.1

	previewLength = 200
)

// Meta is the conversation context carried alongside each vector.
type Meta struct {
	VectorID      uuid.UUID
	SessionID     uuid.UUID
	Text          string
	SuccessRate   float64
	CounselorName string
}

// Options configures a detection run.
type Options struct {
	Method        string
	Contamination float64
	// Persist replaces the stored results for the method when set.
	Persist bool
}

// StatPair compares a statistic between normal and outlier groups.
type StatPair struct {
	NormalAvg  float64 `json:"normal_avg"`
	OutlierAvg float64 `json:"outlier_avg"`
	NormalStd  float64 `json:"normal_std"`
	OutlierStd float64 `json:"outlier_std"`
}

// DistanceAnalysis summarizes outlier cosine distances from the normal
// centroid.
type DistanceAnalysis struct {
	AvgDistanceToCentroid float64 `json:"avg_distance_to_centroid"`
	MaxDistanceToCentroid float64 `json:"max_distance_to_centroid"`
	MinDistanceToCentroid float64 `json:"min_distance_to_centroid"`
}

// SuccessOutlier flags an outlier by its outcome statistics.
type SuccessOutlier struct {
	SessionID       uuid.UUID `json:"session_id"`
	SuccessRate     float64   `json:"success_rate"`
	PotentialFactor string    `json:"potential_factor"`
}

// LengthPattern flags an outlier with an extreme transcript length.
type LengthPattern struct {
	SessionID  uuid.UUID `json:"session_id"`
	TextLength int       `json:"text_length"`
	Pattern    string    `json:"pattern"`
}

// SpecialCharacteristics buckets outliers by what makes them special.
type SpecialCharacteristics struct {
	HighSuccessOutliers   []SuccessOutlier `json:"high_success_outliers"`
	LowSuccessOutliers    []SuccessOutlier `json:"low_success_outliers"`
	UnusualLengthPatterns []LengthPattern  `json:"unusual_length_patterns"`
}

// OutlierDetail is one outlier's summary row.
type OutlierDetail struct {
	Index              int       `json:"index"`
	SessionID          uuid.UUID `json:"session_id"`
	SuccessRate        float64   `json:"success_rate"`
	DistanceToCentroid float64   `json:"distance_to_centroid"`
	TextPreview        string    `json:"text_preview"`
}

// Report is the detailed pattern analysis of one detection run.
type Report struct {
	OutlierCount          int                    `json:"outlier_count"`
	SuccessRateComparison StatPair               `json:"success_rate_comparison"`
	LengthComparison      StatPair               `json:"length_comparison"`
	Distance              DistanceAnalysis       `json:"distance_analysis"`
	Special               SpecialCharacteristics `json:"special_characteristics"`
	Details               []OutlierDetail        `json:"outlier_details"`
}

// Result is a full detection outcome.
type Result struct {
	Method          string
	Contamination   float64
	Total           int
	OutlierIndices  []int
	Scores          []float64
	IsAnomaly       []bool
	Report          *Report
	Insights        []string
	Recommendations []string
}

// Service detects special success examples over the stored corpus.
type Service struct {
	vectorRepo  vectors.SuccessVectorRepo
	sessionRepo vectors.SessionRepo
	resultRepo  vectors.AnomalyResultRepo
	log         *logger.Logger
}

func NewService(
	vectorRepo vectors.SuccessVectorRepo,
	sessionRepo vectors.SessionRepo,
	resultRepo vectors.AnomalyResultRepo,
	log *logger.Logger,
) *Service {
	return &Service{
		vectorRepo:  vectorRepo,
		sessionRepo: sessionRepo,
		resultRepo:  resultRepo,
		log:         log.With("service", "AnomalyService"),
	}
}

// Run loads the full corpus, detects outliers, and optionally persists
// per-vector results for the method.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	dbc := dbctx.Context{Ctx: ctx}

	rows, err := s.vectorRepo.ListAll(dbc)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	vecs := make([][]float32, 0, len(rows))
	metas := make([]Meta, 0, len(rows))
	sessions := make(map[uuid.UUID]*domain.CounselingSession)

	for i := range rows {
		vec, decErr := domain.DecodeVector(rows[i].Embedding)
		if decErr != nil {
			return nil, fmt.Errorf("decode vector %s: %w", rows[i].ID, decErr)
		}
		session, ok := sessions[rows[i].SessionID]
		if !ok {
			session, err = s.sessionRepo.GetByID(dbc, rows[i].SessionID)
			if err != nil {
				return nil, fmt.Errorf("load session %s: %w", rows[i].SessionID, err)
			}
			sessions[rows[i].SessionID] = session
		}

		rate := 0.0
		if session.IsSuccess != nil && *session.IsSuccess {
			rate = 1.0
		}
		vecs = append(vecs, vec)
		metas = append(metas, Meta{
			VectorID:      rows[i].ID,
			SessionID:     session.ID,
			Text:          rows[i].ChunkText,
			SuccessRate:   rate,
			CounselorName: session.CounselorName,
		})
	}

	result, err := Detect(vecs, metas, opts)
	if err != nil {
		return nil, err
	}
	s.log.Info("Anomaly detection finished",
		"method", result.Method,
		"total", result.Total,
		"outliers", len(result.OutlierIndices),
	)

	if opts.Persist {
		if err := s.persist(ctx, result, metas); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Service) persist(ctx context.Context, result *Result, metas []Meta) error {
	params, err := json.Marshal(map[string]any{
		"method":              result.Method,
		"contamination_rate":  result.Contamination,
		"total_conversations": result.Total,
	})
	if err != nil {
		return err
	}

	rows := make([]domain.AnomalyResult, len(metas))
	for i := range metas {
		rows[i] = domain.AnomalyResult{
			VectorID:     metas[i].VectorID,
			Algorithm:    result.Method,
			AnomalyScore: result.Scores[i],
			IsAnomaly:    result.IsAnomaly[i],
			Parameters:   datatypes.JSON(params),
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	if err := s.resultRepo.DeleteByAlgorithm(dbc, result.Method); err != nil {
		return fmt.Errorf("clear previous %s results: %w", result.Method, err)
	}
	if err := s.resultRepo.CreateBatch(dbc, rows); err != nil {
		return fmt.Errorf("save anomaly results: %w", err)
	}
	return nil
}

// Detect runs outlier detection over in-memory vectors. Inputs are
// standardized per dimension before scoring.
func Detect(vecs [][]float32, metas []Meta, opts Options) (*Result, error) {
	if len(vecs) != len(metas) {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata entries", errors.ErrInvalidArgument, len(vecs), len(metas))
	}
	if len(vecs) < 2 {
		return nil, fmt.Errorf("%w: anomaly detection needs at least 2 vectors, have %d", errors.ErrInvalidArgument, len(vecs))
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", errors.ErrInvalidArgument, i, len(v), dim)
		}
	}

	contamination := opts.Contamination
	if contamination <= 0 {
		contamination = DefaultContamination
	}

	normalized := vecmath.Standardize(vecs)

	var scores []float64
	method := opts.Method
	switch method {
	case "", MethodIsolationForest:
		method = MethodIsolationForest
		scores = IsolationForestScores(normalized)
	case MethodLOF:
		scores = LOFScores(normalized, LOFNeighbors(len(normalized)))
	default:
		return nil, fmt.Errorf("%w: unknown detection method %q", errors.ErrInvalidArgument, opts.Method)
	}

	outliers := topFraction(scores, contamination)
	isAnomaly := make([]bool, len(scores))
	for _, i := range outliers {
		isAnomaly[i] = true
	}

	result := &Result{
		Method:         method,
		Contamination:  contamination,
		Total:          len(vecs),
		OutlierIndices: outliers,
		Scores:         scores,
		IsAnomaly:      isAnomaly,
		Report:         buildReport(vecs, metas, outliers),
	}
	result.Insights = insights(result.Report)
	result.Recommendations = recommendations()
	return result, nil
}

// topFraction returns the indices of the highest-scoring fraction,
// score descending with index order breaking ties.
func topFraction(scores []float64, fraction float64) []int {
	m := int(fraction * float64(len(scores)))
	if m <= 0 {
		return nil
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	out := append([]int(nil), order[:m]...)
	sort.Ints(out)
	return out
}

func buildReport(vecs [][]float32, metas []Meta, outliers []int) *Report {
	if len(outliers) == 0 {
		return &Report{}
	}

	isOutlier := make(map[int]struct{}, len(outliers))
	for _, i := range outliers {
		isOutlier[i] = struct{}{}
	}

	var normalVecs [][]float32
	var normalRates, outlierRates []float64
	var normalLengths, outlierLengths []float64
	for i := range metas {
		length := float64(len([]rune(metas[i].Text)))
		if _, ok := isOutlier[i]; ok {
			outlierRates = append(outlierRates, metas[i].SuccessRate)
			outlierLengths = append(outlierLengths, length)
		} else {
			normalVecs = append(normalVecs, vecs[i])
			normalRates = append(normalRates, metas[i].SuccessRate)
			normalLengths = append(normalLengths, length)
		}
	}

	centroid, _ := vecmath.Mean(normalVecs)
	distances := make([]float64, len(outliers))
	for i, idx := range outliers {
		if centroid != nil {
			distances[i] = vecmath.CosineDistance(centroid, vecs[idx])
		}
	}

	report := &Report{
		OutlierCount:          len(outliers),
		SuccessRateComparison: statPair(normalRates, outlierRates),
		LengthComparison:      statPair(normalLengths, outlierLengths),
		Distance:              distanceAnalysis(distances),
		Special:               specialCharacteristics(metas, outliers),
	}

	for i, idx := range outliers {
		preview := metas[idx].Text
		if runes := []rune(preview); len(runes) > previewLength {
			preview = string(runes[:previewLength]) + "..."
		}
		report.Details = append(report.Details, OutlierDetail{
			Index:              idx,
			SessionID:          metas[idx].SessionID,
			SuccessRate:        metas[idx].SuccessRate,
			DistanceToCentroid: distances[i],
			TextPreview:        preview,
		})
	}
	return report
}

func specialCharacteristics(metas []Meta, outliers []int) SpecialCharacteristics {
	var out SpecialCharacteristics
	for _, idx := range outliers {
		m := metas[idx]
		length := len([]rune(m.Text))

		if m.SuccessRate > 0.9 {
			out.HighSuccessOutliers = append(out.HighSuccessOutliers, SuccessOutlier{
				SessionID:       m.SessionID,
				SuccessRate:     m.SuccessRate,
				PotentialFactor: "exceptional_success_pattern",
			})
		}
		if m.SuccessRate < 0.5 {
			out.LowSuccessOutliers = append(out.LowSuccessOutliers, SuccessOutlier{
				SessionID:       m.SessionID,
				SuccessRate:     m.SuccessRate,
				PotentialFactor: "unusual_success_despite_low_rate",
			})
		}
		if length > 5000 || length < 200 {
			pattern := "very_short"
			if length > 5000 {
				pattern = "very_long"
			}
			out.UnusualLengthPatterns = append(out.UnusualLengthPatterns, LengthPattern{
				SessionID:  m.SessionID,
				TextLength: length,
				Pattern:    pattern,
			})
		}
	}
	return out
}

func insights(report *Report) []string {
	var out []string
	if report == nil {
		return out
	}

	if n := len(report.Special.HighSuccessOutliers); n > 0 {
		out = append(out, fmt.Sprintf(
			"%d件の例外的に高い成約率（90%%以上）の成功例を発見。これらの特殊なアプローチ手法を詳細分析することで、新たな成功パターンを発見できる可能性があります。", n))
	}
	if report.Distance.AvgDistanceToCentroid > 0.3 {
		out = append(out, "検出された特殊成功例は、一般的な成功パターンから大きく離れています。これらは独自のアプローチや特殊な状況での成功例である可能性があります。")
	}

	outlierAvg := report.SuccessRateComparison.OutlierAvg
	normalAvg := report.SuccessRateComparison.NormalAvg
	if outlierAvg > normalAvg*1.1 {
		out = append(out, "特殊成功例の平均成約率が通常例より高く、革新的なアプローチの可能性があります。")
	} else if outlierAvg < normalAvg*0.9 {
		out = append(out, "特殊成功例の中には成約率は低いが成功とラベルされた例があり、成約以外の価値（顧客満足度等）を重視した成功パターンの可能性があります。")
	}
	return out
}

func recommendations() []string {
	return []string{
		"特殊成功例を個別に詳細分析し、独自の成功要因を特定する",
		"高成約率の特殊例から新しい成功パターンを抽出する",
		"特殊例のアプローチを一般化できるか検討する",
		"異常例から学んだ要素を標準スクリプトに取り入れる",
	}
}

func statPair(normal, outlier []float64) StatPair {
	return StatPair{
		NormalAvg:  mean(normal),
		OutlierAvg: mean(outlier),
		NormalStd:  std(normal),
		OutlierStd: std(outlier),
	}
}

func distanceAnalysis(distances []float64) DistanceAnalysis {
	if len(distances) == 0 {
		return DistanceAnalysis{}
	}
	min, max := distances[0], distances[0]
	for _, d := range distances[1:] {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return DistanceAnalysis{
		AvgDistanceToCentroid: mean(distances),
		MaxDistanceToCentroid: max,
		MinDistanceToCentroid: min,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func std(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
