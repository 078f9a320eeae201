// Package scripts turns clustered success patterns and failure
// conversations into improvement counseling scripts via the generation
// API, then scores the result.
package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/soratone/counsel-backend/internal/clients/openai"
	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/representatives"
	"github.com/soratone/counsel-backend/internal/search"
	"github.com/soratone/counsel-backend/internal/vectorstore"
)

const (
	generationMaxTokens   = 4000
	generationTemperature = 0.7

	mappingTopK      = 3
	mappingThreshold = 0.7

	// Published per-1K token prices for the generation model, USD.
	inputCostPer1K  = 0.03
	outputCostPer1K = 0.06
)

// Script lifecycle states persisted on domain.GeneratedScript.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// GenerateInput names the cluster run and failures to improve on.
type GenerateInput struct {
	ClusterResultID uuid.UUID
	Failures        []FailureCase
	Config          GenerationConfig
	Title           string
}

// Usage is the provider token accounting for one generation.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostEstimateUSD  float64 `json:"cost_estimate_usd"`
}

// GenerateMetadata describes one generation run.
type GenerateMetadata struct {
	GenerationID   uuid.UUID  `json:"generation_id"`
	Prompt         PromptMeta `json:"prompt_metadata"`
	Usage          Usage      `json:"openai_usage"`
	ProcessingSecs float64    `json:"processing_time"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GenerateResult is a structured script plus its validation scores.
type GenerateResult struct {
	ScriptID uuid.UUID        `json:"script_id"`
	Script   *Script          `json:"script"`
	Quality  ValidationScores `json:"quality_metrics"`
	Metadata GenerateMetadata `json:"generation_metadata"`
}

// Generator runs the full generation pipeline.
type Generator struct {
	ai         openai.Client
	reps       *representatives.Service
	searcher   *search.Service
	scriptRepo vectors.GeneratedScriptRepo
	log        *logger.Logger
}

func NewGenerator(
	ai openai.Client,
	reps *representatives.Service,
	searcher *search.Service,
	scriptRepo vectors.GeneratedScriptRepo,
	log *logger.Logger,
) *Generator {
	return &Generator{
		ai:         ai,
		reps:       reps,
		searcher:   searcher,
		scriptRepo: scriptRepo,
		log:        log.With("service", "ScriptGenerator"),
	}
}

// Generate builds the prompt from stored representatives and failure
// mappings, calls the generation API, structures and validates the
// output, and persists it as a draft script.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	start := time.Now()
	generationID := uuid.New()
	log := g.log.With("generation_id", generationID.String())
	log.Info("Script generation started")

	candidates, err := g.reps.ForScriptGeneration(ctx, in.ClusterResultID, 0)
	if err != nil {
		return nil, fmt.Errorf("load representatives: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no representatives available for cluster result %s",
			errors.ErrInvalidArgument, in.ClusterResultID)
	}

	mappings, err := g.mapFailures(ctx, in.Failures)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(candidates, mappings, in.Failures, in.Config)

	temp := generationTemperature
	gen, err := g.ai.GenerateText(ctx, prompt.System, prompt.User, openai.GenerateOptions{
		MaxTokens:   generationMaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("generate script: %w", err)
	}

	script := ParseResponse(gen.Text)
	quality := ValidateScript(script)

	result := &GenerateResult{
		Script:  script,
		Quality: quality,
		Metadata: GenerateMetadata{
			GenerationID: generationID,
			Prompt:       prompt.Meta,
			Usage: Usage{
				PromptTokens:     gen.PromptTokens,
				CompletionTokens: gen.CompletionTokens,
				TotalTokens:      gen.TotalTokens,
				CostEstimateUSD:  costEstimate(gen.PromptTokens, gen.CompletionTokens),
			},
			ProcessingSecs: time.Since(start).Seconds(),
			CreatedAt:      time.Now().UTC(),
		},
	}

	id, err := g.persist(ctx, in, result)
	if err != nil {
		return nil, err
	}
	result.ScriptID = id

	log.Info("Script generation completed",
		"script_id", id.String(),
		"overall_quality", quality.OverallQuality,
		"total_tokens", gen.TotalTokens,
		"elapsed_secs", result.Metadata.ProcessingSecs,
	)
	return result, nil
}

func (g *Generator) mapFailures(ctx context.Context, failures []FailureCase) ([]*search.MatchResult, error) {
	if len(failures) == 0 {
		return nil, nil
	}
	texts := make([]string, len(failures))
	for i, f := range failures {
		texts[i] = f.Text
	}
	mappings, err := g.searcher.MatchFailures(ctx, texts, search.Options{
		TopK:            mappingTopK,
		Threshold:       mappingThreshold,
		IncludeAnalysis: true,
		Filter:          vectorstore.Filter{},
	})
	if err != nil {
		return nil, fmt.Errorf("map failures to successes: %w", err)
	}
	return mappings, nil
}

func (g *Generator) persist(ctx context.Context, in GenerateInput, result *GenerateResult) (uuid.UUID, error) {
	content, err := json.Marshal(result.Script)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal script: %w", err)
	}
	metrics, err := json.Marshal(struct {
		ValidationScores
		Metadata GenerateMetadata `json:"generation_metadata"`
	}{result.Quality, result.Metadata})
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal quality metrics: %w", err)
	}

	title := in.Title
	if title == "" {
		title = fmt.Sprintf("改善スクリプト %s", time.Now().Format("2006-01-02 15:04"))
	}

	record := &domain.GeneratedScript{
		ID:              uuid.New(),
		Title:           title,
		Content:         datatypes.JSON(content),
		Status:          StatusDraft,
		QualityMetrics:  datatypes.JSON(metrics),
		ClusterResultID: &in.ClusterResultID,
	}
	if err := g.scriptRepo.Create(dbctx.Context{Ctx: ctx}, record); err != nil {
		return uuid.Nil, fmt.Errorf("persist script: %w", err)
	}
	return record.ID, nil
}

func costEstimate(promptTokens, completionTokens int) float64 {
	cost := float64(promptTokens)/1000*inputCostPer1K + float64(completionTokens)/1000*outputCostPer1K
	return math.Round(cost*10000) / 10000
}

// ValidationScores is the fast structural check run right after
// generation. The deeper analysis lives in Analyzer.
type ValidationScores struct {
	CompletenessScore   float64 `json:"completeness_score"`
	ContentQualityScore float64 `json:"content_quality_score"`
	StructureScore      float64 `json:"structure_score"`
	ActionabilityScore  float64 `json:"actionability_score"`
	OverallQuality      float64 `json:"overall_quality"`
}

var validationKeywords = []string{
	"成約率", "顧客", "カウンセリング", "脱毛", "効果", "料金",
	"相談", "安心", "体験", "提案", "改善", "具体的",
}

var validationIndicators = []string{
	"具体的", "例えば", "ポイント", "コツ", "方法", "テクニック",
	"言い回し", "表現", "アプローチ", "話し方",
}

// ValidateScript scores the structural completeness of a parsed script.
func ValidateScript(s *Script) ValidationScores {
	v := ValidationScores{
		CompletenessScore:   completenessScore(s),
		ContentQualityScore: contentQualityScore(s),
		StructureScore:      phasePresenceScore(s),
		ActionabilityScore:  actionabilityScore(s),
	}
	v.OverallQuality = v.CompletenessScore*0.3 +
		v.ContentQualityScore*0.3 +
		v.StructureScore*0.2 +
		v.ActionabilityScore*0.2
	return v
}

func completenessScore(s *Script) float64 {
	sections := []string{
		s.SuccessFactorsAnalysis,
		s.ImprovementPoints,
		s.CounselingScript.Opening + s.CounselingScript.NeedsAssessment +
			s.CounselingScript.SolutionProposal + s.CounselingScript.Closing,
		s.PracticalImprovements,
	}
	present := 0
	for _, sec := range sections {
		if len([]rune(sec)) > 50 {
			present++
		}
	}
	return float64(present) / float64(len(sections))
}

func contentQualityScore(s *Script) float64 {
	analysis := s.SuccessFactorsAnalysis + " " + s.ImprovementPoints + " " + s.PracticalImprovements

	found := 0
	for _, kw := range validationKeywords {
		if containsKeyword(analysis, kw) {
			found++
		}
	}
	keywordScore := float64(found) / float64(len(validationKeywords))

	length := len([]rune(analysis))
	lengthScore := 0.5
	if length > 500 {
		lengthScore = math.Min(1.0, float64(length)/2000)
	}
	return (keywordScore + lengthScore) / 2
}

func phasePresenceScore(s *Script) float64 {
	phases := []string{
		s.CounselingScript.Opening,
		s.CounselingScript.NeedsAssessment,
		s.CounselingScript.SolutionProposal,
		s.CounselingScript.Closing,
	}
	present := 0
	for _, p := range phases {
		if len([]rune(p)) > 30 {
			present++
		}
	}
	return float64(present) / float64(len(phases))
}

func actionabilityScore(s *Script) float64 {
	found := 0
	for _, ind := range validationIndicators {
		if containsKeyword(s.PracticalImprovements, ind) {
			found++
		}
	}
	return float64(found) / float64(len(validationIndicators))
}
