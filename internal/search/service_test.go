package search

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/embedding"
	"github.com/soratone/counsel-backend/internal/keywords"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/vectorstore"
)

type fixedEmbedder struct{ dim int }

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

type stubStore struct {
	matches []vectorstore.Match
	calls   int
}

func (s *stubStore) Search(_ context.Context, _ []float32, topK int, _ float64, _ vectorstore.Filter) ([]vectorstore.Match, error) {
	s.calls++
	if len(s.matches) > topK {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func successMatch(text string, sim float64) vectorstore.Match {
	return vectorstore.Match{
		Vector: domain.SuccessVector{
			ID:        uuid.New(),
			SessionID: uuid.New(),
			ChunkText: text,
		},
		Similarity: sim,
	}
}

func newTestService(t *testing.T, store vectorstore.Store) *Service {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	embedder := embedding.NewService(&fixedEmbedder{dim: 8}, log, embedding.Options{Dim: 8})
	return NewService(embedder, store, keywords.Default(), log)
}

func TestMatchFailureAnnotatesMatches(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{
		successMatch("効果、料金、体験について丁寧にご説明しました。", 0.92),
		successMatch("無料の体験コースをご提案しました。", 0.81),
	}}
	svc := newTestService(t, store)

	res, err := svc.MatchFailure(context.Background(), "本日はご来店ありがとうございます。", Options{IncludeAnalysis: true})
	if err != nil {
		t.Fatalf("MatchFailure: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(res.Matches))
	}
	if res.Failure.TokenCount == 0 {
		t.Fatal("token count not computed")
	}

	first := res.Matches[0]
	if len(first.ImprovementHints) == 0 || len(first.ImprovementHints) > 3 {
		t.Fatalf("hints = %v, want 1..3 entries", first.ImprovementHints)
	}
	for _, h := range first.ImprovementHints {
		if h == keywords.Default().DefaultHint {
			t.Fatalf("got fallback hint despite keyword gaps: %v", first.ImprovementHints)
		}
	}
}

func TestMatchFailureFallbackHint(t *testing.T) {
	// Success text shares all its important keywords with the failure,
	// so no concrete hint applies.
	store := &stubStore{matches: []vectorstore.Match{
		successMatch("効果、とても良いです。", 0.88),
	}}
	svc := newTestService(t, store)

	res, err := svc.MatchFailure(context.Background(), "効果、いかがでしょうか。", Options{IncludeAnalysis: true})
	if err != nil {
		t.Fatalf("MatchFailure: %v", err)
	}
	hints := res.Matches[0].ImprovementHints
	if len(hints) != 1 || hints[0] != keywords.Default().DefaultHint {
		t.Fatalf("hints = %v, want only the default hint", hints)
	}
}

func TestKeyDifferences(t *testing.T) {
	svc := newTestService(t, &stubStore{})

	short := "短い返答。"
	long := strings.Repeat("安心して効果を実感いただけるよう丁寧にご案内します。", 4)

	diffs := svc.keyDifferences(short, long)
	if !contains(diffs, "成功例はより詳細な説明を含んでいます") {
		t.Fatalf("diffs = %v, want detail difference", diffs)
	}
	if !contains(diffs, "成功例はよりポジティブな表現を使用しています") {
		t.Fatalf("diffs = %v, want positive-tone difference", diffs)
	}

	diffs = svc.keyDifferences(long, short)
	if !contains(diffs, "成功例はより簡潔で要点を絞った構成です") {
		t.Fatalf("diffs = %v, want brevity difference", diffs)
	}
}

func TestSummaryDistribution(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{
		successMatch("料金、説明。", 0.9),
		successMatch("料金、保証。", 0.8),
		successMatch("体験、提案。", 0.7),
	}}
	svc := newTestService(t, store)

	res, err := svc.MatchFailure(context.Background(), "こんにちは。", Options{IncludeAnalysis: true})
	if err != nil {
		t.Fatalf("MatchFailure: %v", err)
	}
	sum := res.Summary
	if sum == nil {
		t.Fatal("summary missing")
	}
	if sum.TotalFound != 3 {
		t.Fatalf("total = %d, want 3", sum.TotalFound)
	}
	if sum.AvgSimilarity != 0.8 {
		t.Fatalf("avg = %v, want 0.8", sum.AvgSimilarity)
	}
	if sum.Distribution.Min != 0.7 || sum.Distribution.Max != 0.9 || sum.Distribution.Median != 0.8 {
		t.Fatalf("distribution = %+v", sum.Distribution)
	}
	if len(sum.TopImprovementAreas) == 0 || sum.TopImprovementAreas[0] != "料金" {
		t.Fatalf("areas = %v, want 料金 ranked first", sum.TopImprovementAreas)
	}
}

func TestMatchFailureEmptyText(t *testing.T) {
	svc := newTestService(t, &stubStore{})
	if _, err := svc.MatchFailure(context.Background(), "", Options{}); !errors.IsInvalidArgument(err) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestMatchFailuresPreservesOrder(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{
		successMatch("効果の説明。", 0.85),
	}}
	svc := newTestService(t, store)

	texts := []string{"会話その一。", "会話その二。", "会話その三。"}
	results, err := svc.MatchFailures(context.Background(), texts, Options{})
	if err != nil {
		t.Fatalf("MatchFailures: %v", err)
	}
	if len(results) != len(texts) {
		t.Fatalf("results = %d, want %d", len(results), len(texts))
	}
	for i, res := range results {
		if res == nil || res.Failure.Text != texts[i] {
			t.Fatalf("result %d out of order: %+v", i, res)
		}
	}
	if store.calls != len(texts) {
		t.Fatalf("store calls = %d, want %d", store.calls, len(texts))
	}
}

func contains(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}
