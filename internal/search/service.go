// Package search maps failed counseling conversations to their most
// similar successful ones and explains what the failures are missing.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soratone/counsel-backend/internal/embedding"
	"github.com/soratone/counsel-backend/internal/keywords"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/vectorstore"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.7

	maxImprovementHints = 3
	maxImprovementAreas = 5

	batchConcurrency = 4
)

// Options tunes one failure-to-success search.
type Options struct {
	TopK            int
	Threshold       float64
	IncludeAnalysis bool
	Filter          vectorstore.Filter
}

// FailureAnalysis describes the query side of a match.
type FailureAnalysis struct {
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding_vector"`
	TokenCount int       `json:"token_count"`
}

// SuccessMatch is one similar successful conversation, annotated with
// what the failure could borrow from it.
type SuccessMatch struct {
	VectorID         uuid.UUID `json:"vector_id"`
	SessionID        uuid.UUID `json:"session_id"`
	ChunkText        string    `json:"chunk_text"`
	Similarity       float64   `json:"similarity_score"`
	ImprovementHints []string  `json:"improvement_hints,omitempty"`
	KeyDifferences   []string  `json:"key_differences,omitempty"`
}

// SimilarityDistribution summarizes match score spread.
type SimilarityDistribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Summary aggregates a match set.
type Summary struct {
	TotalFound          int                    `json:"total_found"`
	AvgSimilarity       float64                `json:"avg_similarity"`
	TopImprovementAreas []string               `json:"top_improvement_areas"`
	Distribution        SimilarityDistribution `json:"similarity_distribution"`
}

// MatchResult is a full failure-to-success lookup.
type MatchResult struct {
	Failure FailureAnalysis `json:"failure_analysis"`
	Matches []SuccessMatch  `json:"similar_successes"`
	Summary *Summary        `json:"analysis_summary,omitempty"`
}

// Service runs similarity search for failure transcripts.
type Service struct {
	embedder *embedding.Service
	store    vectorstore.Store
	vocab    *keywords.Config
	log      *logger.Logger
}

func NewService(embedder *embedding.Service, store vectorstore.Store, vocab *keywords.Config, log *logger.Logger) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		vocab:    vocab,
		log:      log.With("service", "SearchService"),
	}
}

// MatchFailure embeds a failed conversation, finds the nearest
// successful ones, and (optionally) analyzes what separates them.
func (s *Service) MatchFailure(ctx context.Context, failureText string, opts Options) (*MatchResult, error) {
	if failureText == "" {
		return nil, fmt.Errorf("%w: failure conversation text is empty", errors.ErrInvalidArgument)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	queryVec, err := s.embedder.EmbedForSearch(ctx, failureText)
	if err != nil {
		return nil, fmt.Errorf("embed failure conversation: %w", err)
	}

	hits, err := s.store.Search(ctx, queryVec, opts.TopK, opts.Threshold, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	result := &MatchResult{
		Failure: FailureAnalysis{
			Text:       failureText,
			Embedding:  queryVec,
			TokenCount: embedding.CountTokens(failureText),
		},
	}

	for _, hit := range hits {
		match := SuccessMatch{
			VectorID:   hit.Vector.ID,
			SessionID:  hit.Vector.SessionID,
			ChunkText:  hit.Vector.ChunkText,
			Similarity: hit.Similarity,
		}
		if opts.IncludeAnalysis {
			match.ImprovementHints = s.improvementHints(failureText, hit.Vector.ChunkText)
			match.KeyDifferences = s.keyDifferences(failureText, hit.Vector.ChunkText)
		}
		result.Matches = append(result.Matches, match)
	}

	if opts.IncludeAnalysis && len(result.Matches) > 0 {
		result.Summary = s.summarize(failureText, result.Matches)
	}

	s.log.Info("Failure conversation matched",
		"matches", len(result.Matches),
		"top_k", opts.TopK,
		"threshold", opts.Threshold,
	)
	return result, nil
}

// improvementHints maps the important keywords present in the success
// but absent from the failure to concrete advice, at most three hints.
func (s *Service) improvementHints(failureText, successText string) []string {
	failureWords := toSet(s.vocab.ExtractKeywords(failureText))

	var hints []string
	for _, kw := range s.vocab.ExtractKeywords(successText) {
		if _, present := failureWords[kw]; present {
			continue
		}
		if advice, ok := s.vocab.ImprovementHints[kw]; ok {
			hints = append(hints, advice)
			if len(hints) == maxImprovementHints {
				return hints
			}
		}
	}
	if len(hints) == 0 {
		hints = append(hints, s.vocab.DefaultHint)
	}
	return hints
}

// keyDifferences names the structural contrasts between the texts.
func (s *Service) keyDifferences(failureText, successText string) []string {
	var out []string

	failureLen := float64(len([]rune(failureText)))
	successLen := float64(len([]rune(successText)))
	if successLen > failureLen*1.5 {
		out = append(out, "成功例はより詳細な説明を含んでいます")
	} else if successLen < failureLen*0.7 {
		out = append(out, "成功例はより簡潔で要点を絞った構成です")
	}

	if keywords.CountContaining(successText, s.vocab.Positive) > keywords.CountContaining(failureText, s.vocab.Positive) {
		out = append(out, "成功例はよりポジティブな表現を使用しています")
	}
	return out
}

func (s *Service) summarize(failureText string, matches []SuccessMatch) *Summary {
	sims := make([]float64, len(matches))
	var sum float64
	for i, m := range matches {
		sims[i] = m.Similarity
		sum += m.Similarity
	}
	sorted := append([]float64(nil), sims...)
	sort.Float64s(sorted)

	failureWords := toSet(s.vocab.ExtractKeywords(failureText))
	counts := make(map[string]int)
	var order []string
	for _, m := range matches {
		for _, kw := range s.vocab.ExtractKeywords(m.ChunkText) {
			if _, present := failureWords[kw]; present {
				continue
			}
			if counts[kw] == 0 {
				order = append(order, kw)
			}
			counts[kw]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxImprovementAreas {
		order = order[:maxImprovementAreas]
	}

	return &Summary{
		TotalFound:          len(matches),
		AvgSimilarity:       round3(sum / float64(len(matches))),
		TopImprovementAreas: order,
		Distribution: SimilarityDistribution{
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
			Median: sorted[len(sorted)/2],
		},
	}
}

// MatchFailures runs MatchFailure over several transcripts with bounded
// concurrency, preserving input order.
func (s *Service) MatchFailures(ctx context.Context, failureTexts []string, opts Options) ([]*MatchResult, error) {
	results := make([]*MatchResult, len(failureTexts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, text := range failureTexts {
		i, text := i, text
		g.Go(func() error {
			res, err := s.MatchFailure(gctx, text, opts)
			if err != nil {
				return fmt.Errorf("failure %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
