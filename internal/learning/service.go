// Package learning re-runs the analysis pipeline as new labeled
// conversations accumulate, and only promotes regenerated scripts when
// measured quality improves.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soratone/counsel-backend/internal/anomaly"
	"github.com/soratone/counsel-backend/internal/clustering"
	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/ingest"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/representatives"
	"github.com/soratone/counsel-backend/internal/scripts"
)

const (
	// MinNewVectors is the new-chunk count that triggers a re-run.
	MinNewVectors = 10
	// QualityImprovementThreshold is the minimum average quality gain
	// required before a regenerated script is promoted.
	QualityImprovementThreshold = 0.05
	// LearningIntervalDays triggers a re-run on schedule regardless of
	// data volume.
	LearningIntervalDays = 7

	maxSampleFailures    = 3
	qualityHistoryWindow = 10
	defaultBaseline      = 0.5
)

// Trend labels for the recent script quality series.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// QualityTrend summarizes recent generated-script quality.
type QualityTrend struct {
	Trend         string  `json:"trend"`
	RecentAverage float64 `json:"recent_average_quality"`
	SampleCount   int     `json:"sample_count"`
}

// TriggerInfo is the outcome of a trigger check.
type TriggerInfo struct {
	ShouldTrigger   bool         `json:"should_trigger"`
	Reasons         []string     `json:"trigger_reasons"`
	NewVectorCount  int64        `json:"new_vectors_count"`
	LastRunAt       *time.Time   `json:"last_learning_date,omitempty"`
	NextScheduledAt *time.Time   `json:"next_scheduled_learning,omitempty"`
	QualityTrend    QualityTrend `json:"quality_trend"`
}

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
)

// Result reports one learning execution.
type Result struct {
	LearningID         uuid.UUID     `json:"learning_id"`
	Status             string        `json:"status"`
	SkipReason         string        `json:"reason,omitempty"`
	Trigger            *TriggerInfo  `json:"trigger_info,omitempty"`
	NewVectors         int           `json:"new_vectors,omitempty"`
	ClusterResultID    uuid.UUID     `json:"cluster_result_id,omitempty"`
	ClusterCount       int           `json:"cluster_count,omitempty"`
	Representatives    int           `json:"representatives,omitempty"`
	Anomalies          int           `json:"anomalies,omitempty"`
	BaselineQuality    float64       `json:"baseline_quality"`
	NewQuality         float64       `json:"new_quality"`
	QualityImprovement float64       `json:"quality_improvement"`
	ActionTaken        string        `json:"action_taken,omitempty"`
	TestScriptIDs      []uuid.UUID   `json:"test_script_ids,omitempty"`
	ExecutionSecs      float64       `json:"execution_time"`
}

// Options tunes one execution.
type Options struct {
	// Force skips the trigger check.
	Force bool
	// Algorithm overrides the clustering algorithm; defaults to k-means
	// with automatic cluster count selection.
	Algorithm string
}

// Service orchestrates the full re-learning pipeline.
type Service struct {
	vectorRepo  vectors.SuccessVectorRepo
	sessionRepo vectors.SessionRepo
	resultRepo  vectors.ClusterResultRepo
	scriptRepo  vectors.GeneratedScriptRepo
	ingester    *ingest.Service
	clusterer   *clustering.Service
	reps        *representatives.Service
	anomalies   *anomaly.Service
	generator   *scripts.Generator
	analyzer    *scripts.Analyzer
	log         *logger.Logger
}

func NewService(
	vectorRepo vectors.SuccessVectorRepo,
	sessionRepo vectors.SessionRepo,
	resultRepo vectors.ClusterResultRepo,
	scriptRepo vectors.GeneratedScriptRepo,
	ingester *ingest.Service,
	clusterer *clustering.Service,
	reps *representatives.Service,
	anomalies *anomaly.Service,
	generator *scripts.Generator,
	analyzer *scripts.Analyzer,
	log *logger.Logger,
) *Service {
	return &Service{
		vectorRepo:  vectorRepo,
		sessionRepo: sessionRepo,
		resultRepo:  resultRepo,
		scriptRepo:  scriptRepo,
		ingester:    ingester,
		clusterer:   clusterer,
		reps:        reps,
		anomalies:   anomalies,
		generator:   generator,
		analyzer:    analyzer,
		log:         log.With("service", "LearningService"),
	}
}

// CheckTrigger decides whether a re-learning run is due: enough new
// vectors, a sustained quality decline, the scheduled interval elapsed,
// or no prior run at all.
func (s *Service) CheckTrigger(ctx context.Context) (*TriggerInfo, error) {
	dbc := dbctx.Context{Ctx: ctx}

	info := &TriggerInfo{}

	last, err := s.resultRepo.Latest(dbc)
	switch {
	case errors.IsNotFound(err):
		info.Reasons = append(info.Reasons, "初回学習実行")
		info.ShouldTrigger = true
	case err != nil:
		return nil, fmt.Errorf("load last clustering run: %w", err)
	default:
		info.LastRunAt = &last.CreatedAt
		next := last.CreatedAt.AddDate(0, 0, LearningIntervalDays)
		info.NextScheduledAt = &next
	}

	since := time.Now().AddDate(0, 0, -30)
	if info.LastRunAt != nil {
		since = *info.LastRunAt
	}
	count, err := s.vectorRepo.CountCreatedSince(dbc, since)
	if err != nil {
		return nil, fmt.Errorf("count new vectors: %w", err)
	}
	info.NewVectorCount = count
	if count >= MinNewVectors {
		info.Reasons = append(info.Reasons, fmt.Sprintf("新規会話数が閾値を超過: %d件", count))
		info.ShouldTrigger = true
	}

	trend, err := s.qualityTrend(dbc)
	if err != nil {
		return nil, err
	}
	info.QualityTrend = *trend
	if trend.Trend == TrendDeclining {
		info.Reasons = append(info.Reasons, "品質低下が継続的に観測")
		info.ShouldTrigger = true
	}

	if info.LastRunAt != nil && time.Since(*info.LastRunAt) >= LearningIntervalDays*24*time.Hour {
		info.Reasons = append(info.Reasons, "定期実行間隔に達した")
		info.ShouldTrigger = true
	}

	s.log.Info("Learning trigger checked",
		"should_trigger", info.ShouldTrigger,
		"new_vectors", count,
		"quality_trend", trend.Trend,
	)
	return info, nil
}

// qualityTrend compares the newer half of recent script scores against
// the older half.
func (s *Service) qualityTrend(dbc dbctx.Context) (*QualityTrend, error) {
	recent, err := s.scriptRepo.ListRecent(dbc, qualityHistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent scripts: %w", err)
	}

	scores := make([]float64, 0, len(recent))
	for _, rec := range recent {
		if score, ok := overallQualityOf(rec.QualityMetrics); ok {
			scores = append(scores, score)
		}
	}

	trend := &QualityTrend{Trend: TrendStable, SampleCount: len(scores)}
	if len(scores) == 0 {
		return trend, nil
	}
	trend.RecentAverage = mean(scores)
	if len(scores) < 4 {
		return trend, nil
	}

	// ListRecent is newest first.
	half := len(scores) / 2
	newer := mean(scores[:half])
	older := mean(scores[half:])
	switch {
	case newer < older-QualityImprovementThreshold:
		trend.Trend = TrendDeclining
	case newer > older+QualityImprovementThreshold:
		trend.Trend = TrendImproving
	}
	return trend, nil
}

// Execute runs the pipeline end to end: embedding of newly labeled
// conversations, clustering, representative extraction, anomaly
// refresh, then a test generation whose measured quality decides
// whether the new script is promoted.
func (s *Service) Execute(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{LearningID: uuid.New(), BaselineQuality: defaultBaseline}
	log := s.log.With("learning_id", result.LearningID.String())
	log.Info("Continuous learning started")

	if !opts.Force {
		trigger, err := s.CheckTrigger(ctx)
		if err != nil {
			return nil, err
		}
		result.Trigger = trigger
		if !trigger.ShouldTrigger {
			result.Status = StatusSkipped
			result.SkipReason = "学習実行条件を満たしていません"
			result.ExecutionSecs = time.Since(start).Seconds()
			log.Info("Continuous learning skipped")
			return result, nil
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	if trend, err := s.qualityTrend(dbc); err == nil && trend.SampleCount > 0 {
		result.BaselineQuality = trend.RecentAverage
	}

	ingested, err := s.ingester.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest new conversations: %w", err)
	}
	result.NewVectors = ingested.VectorsCreated

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = clustering.AlgorithmKMeans
	}
	outcome, err := s.clusterer.Run(ctx, clustering.Options{
		Algorithm:   algorithm,
		AutoSelectK: true,
	})
	if err != nil {
		return nil, fmt.Errorf("clustering: %w", err)
	}
	result.ClusterResultID = outcome.ClusterResultID
	result.ClusterCount = outcome.ClusterCount

	extracted, err := s.reps.Extract(ctx, outcome.ClusterResultID, representatives.Options{})
	if err != nil {
		return nil, fmt.Errorf("representative extraction: %w", err)
	}
	result.Representatives = extracted.Summary.TotalRepresentatives

	anomalyResult, err := s.anomalies.Run(ctx, anomaly.Options{Persist: true})
	if err != nil {
		return nil, fmt.Errorf("anomaly detection: %w", err)
	}
	result.Anomalies = len(anomalyResult.OutlierIndices)

	if err := s.evaluate(ctx, result, extracted); err != nil {
		return nil, err
	}

	result.Status = StatusCompleted
	result.ExecutionSecs = time.Since(start).Seconds()
	log.Info("Continuous learning completed",
		"cluster_result_id", result.ClusterResultID.String(),
		"representatives", result.Representatives,
		"anomalies", result.Anomalies,
		"quality_improvement", result.QualityImprovement,
		"action", result.ActionTaken,
		"elapsed_secs", result.ExecutionSecs,
	)
	return result, nil
}

// evaluate generates test scripts against sample failures and promotes
// them only when quality improves over the baseline.
func (s *Service) evaluate(ctx context.Context, result *Result, extracted *representatives.ExtractResult) error {
	dbc := dbctx.Context{Ctx: ctx}

	failures, err := s.sessionRepo.ListFailures(dbc, maxSampleFailures)
	if err != nil {
		return fmt.Errorf("load sample failures: %w", err)
	}

	patterns := s.successPatterns(ctx, result.ClusterResultID, extracted)

	var scores []float64
	for _, failure := range failures {
		gen, genErr := s.generator.Generate(ctx, scripts.GenerateInput{
			ClusterResultID: result.ClusterResultID,
			Failures: []scripts.FailureCase{{
				Text:          failure.Transcription,
				CounselorName: failure.CounselorName,
				Date:          failure.CreatedAt.Format("2006-01-02"),
			}},
		})
		if genErr != nil {
			s.log.Warn("Test script generation failed", "session_id", failure.ID.String(), "error", genErr)
			continue
		}
		report := s.analyzer.Analyze(gen.Script, scripts.BaseData{
			SuccessPatterns: patterns,
			SourceQuality: scripts.SourceQuality{
				SampleSize: result.Representatives,
			},
		})
		scores = append(scores, report.OverallQuality)
		result.TestScriptIDs = append(result.TestScriptIDs, gen.ScriptID)
	}

	if len(scores) == 0 {
		result.ActionTaken = "no_update"
		return nil
	}

	result.NewQuality = mean(scores)
	result.QualityImprovement = result.NewQuality - result.BaselineQuality

	if result.QualityImprovement >= QualityImprovementThreshold {
		result.ActionTaken = "model_updated"
		best := result.TestScriptIDs[argmax(scores)]
		if err := s.scriptRepo.UpdateStatus(dbc, best, scripts.StatusActive); err != nil {
			return fmt.Errorf("promote script %s: %w", best, err)
		}
	} else {
		result.ActionTaken = "no_update"
	}
	return nil
}

func (s *Service) successPatterns(ctx context.Context, clusterResultID uuid.UUID, extracted *representatives.ExtractResult) []scripts.SuccessPattern {
	patterns := make([]scripts.SuccessPattern, 0, len(extracted.Clusters))
	for _, cluster := range extracted.Clusters {
		chars, err := s.reps.Characteristics(ctx, clusterResultID, cluster.ClusterLabel)
		if err != nil {
			s.log.Warn("Cluster characteristics unavailable", "cluster_label", cluster.ClusterLabel, "error", err)
			continue
		}
		patterns = append(patterns, scripts.SuccessPattern{
			Name:     fmt.Sprintf("クラスタ%d", cluster.ClusterLabel),
			Keywords: chars.CommonKeywords,
		})
	}
	return patterns
}

func overallQualityOf(raw []byte) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var parsed struct {
		OverallQuality float64 `json:"overall_quality"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, false
	}
	return parsed.OverallQuality, true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
