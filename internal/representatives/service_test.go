package representatives

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/soratone/counsel-backend/internal/data/repos/testutil"
	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/keywords"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
)

func TestExtractSelectsPrimaryPerCluster(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	session := testutil.SeedSession(t, tx, "counselor-a")
	text := strings.Repeat("効果や料金について安心して相談できました。", 7)

	var seeded []domain.SuccessVector
	for i := 0; i < 4; i++ {
		vec := []float32{float32(i % 2), float32(1 - i%2)}
		v := testutil.SeedSuccessVector(t, tx, session.ID, i, text, vec)
		seeded = append(seeded, *v)
	}

	resultRepo := vectors.NewClusterResultRepo(tx, log)
	assignRepo := vectors.NewClusterAssignmentRepo(tx, log)
	vectorRepo := vectors.NewSuccessVectorRepo(tx, log)
	sessionRepo := vectors.NewSessionRepo(tx, log)
	repRepo := vectors.NewRepresentativeRepo(tx, log)

	result := &domain.ClusterResult{Algorithm: "kmeans", ClusterCount: 2}
	if err := resultRepo.Create(dbc, result); err != nil {
		t.Fatalf("create cluster result: %v", err)
	}

	dist := 0.1
	assignments := make([]domain.ClusterAssignment, len(seeded))
	for i := range seeded {
		assignments[i] = domain.ClusterAssignment{
			VectorID:           seeded[i].ID,
			ClusterResultID:    result.ID,
			ClusterLabel:       i % 2,
			DistanceToCentroid: &dist,
		}
	}
	if err := assignRepo.CreateBatch(dbc, assignments); err != nil {
		t.Fatalf("create assignments: %v", err)
	}

	svc := NewService(resultRepo, assignRepo, vectorRepo, sessionRepo, repRepo, keywords.Default(), log)
	out, err := svc.Extract(ctx, result.ID, Options{MaxPerCluster: 2, MinQuality: 0.1})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if out.Summary.TotalClusters != 2 {
		t.Fatalf("expected 2 clusters, got %d", out.Summary.TotalClusters)
	}
	for _, c := range out.Clusters {
		if len(c.Representatives) == 0 || !c.Representatives[0].IsPrimary {
			t.Fatalf("cluster %d missing a primary representative", c.ClusterLabel)
		}
		for _, rep := range c.Representatives[1:] {
			if rep.IsPrimary {
				t.Fatalf("cluster %d has more than one primary", c.ClusterLabel)
			}
		}
	}

	// A second run replaces, never accumulates.
	if _, err := svc.Extract(ctx, result.ID, Options{MaxPerCluster: 2, MinQuality: 0.1}); err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	stored, err := repRepo.ListByClusterResult(dbc, result.ID)
	if err != nil {
		t.Fatalf("list stored: %v", err)
	}
	if len(stored) != out.Summary.TotalRepresentatives {
		t.Fatalf("re-extraction accumulated rows: %d stored, %d expected", len(stored), out.Summary.TotalRepresentatives)
	}
}

func TestExtractUnknownRun(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	svc := NewService(
		vectors.NewClusterResultRepo(tx, log),
		vectors.NewClusterAssignmentRepo(tx, log),
		vectors.NewSuccessVectorRepo(tx, log),
		vectors.NewSessionRepo(tx, log),
		vectors.NewRepresentativeRepo(tx, log),
		keywords.Default(),
		log,
	)
	if _, err := svc.Extract(context.Background(), uuid.New(), Options{}); err == nil {
		t.Fatal("unknown clustering run should error")
	}
}

func TestRankedKeywordsFrequencyOrder(t *testing.T) {
	vocab := keywords.Default()
	// Keyword runs are maximal kana/kanji sequences, so candidates are
	// isolated by punctuation.
	text := "脱毛、効果。脱毛、料金。脱毛、安心。効果、高い。"
	kws := rankedKeywords(text, vocab)
	if len(kws) < 2 || kws[0] != "脱毛" {
		t.Fatalf("most frequent keyword should rank first, got %v", kws)
	}
	if kws[1] != "効果" {
		t.Fatalf("second most frequent keyword should rank next, got %v", kws)
	}
}

func TestDescribeCluster(t *testing.T) {
	if got := describeCluster(nil); got != "特徴的なキーワードが見つかりませんでした" {
		t.Fatalf("empty keywords description wrong: %q", got)
	}
	got := describeCluster([]string{"効果", "料金", "安心", "体験", "相談", "余分"})
	if got != "主要キーワード: 効果、料金、安心、体験、相談" {
		t.Fatalf("description should join the top five keywords: %q", got)
	}
}
