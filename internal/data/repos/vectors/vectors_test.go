package vectors

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/soratone/counsel-backend/internal/data/repos/testutil"
	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	pkgerrors "github.com/soratone/counsel-backend/internal/pkg/errors"
)

func TestSuccessVectorInsertionOrder(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	session := testutil.SeedSession(t, tx, "counselor-a")
	repo := NewSuccessVectorRepo(gdb, log)

	batch := make([]domain.SuccessVector, 3)
	for i := range batch {
		raw, err := domain.EncodeVector([]float32{float32(i), 1})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		batch[i] = domain.SuccessVector{
			SessionID:  session.ID,
			ChunkText:  "チャンク",
			Embedding:  raw,
			ChunkIndex: i,
		}
	}
	if err := repo.CreateBatch(dbc, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	all, err := repo.ListAll(dbc)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d vectors, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Fatalf("seq not monotonically increasing: %d then %d", all[i-1].Seq, all[i].Seq)
		}
	}
	if all[0].ChunkIndex != 0 || all[2].ChunkIndex != 2 {
		t.Fatalf("insertion order not preserved: %+v", all)
	}
}

func TestSessionListSuccessful(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewSessionRepo(gdb, log)
	good := testutil.SeedSession(t, tx, "counselor-a")

	pending := testutil.SeedSession(t, tx, "counselor-b")
	if err := tx.Model(pending).Update("transcription_status", "pending").Error; err != nil {
		t.Fatalf("update fixture: %v", err)
	}
	failed := testutil.SeedSession(t, tx, "counselor-c")
	if err := repo.UpdateSuccessLabel(dbc, failed.ID, false); err != nil {
		t.Fatalf("UpdateSuccessLabel: %v", err)
	}

	got, err := repo.ListSuccessful(dbc)
	if err != nil {
		t.Fatalf("ListSuccessful: %v", err)
	}
	if len(got) != 1 || got[0].ID != good.ID {
		t.Fatalf("expected only the completed successful session, got %d rows", len(got))
	}
}

func TestSessionUpdateSuccessLabelMissing(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewSessionRepo(gdb, log)
	if err := repo.UpdateSuccessLabel(dbc, uuid.New(), true); err != pkgerrors.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRepresentativeReplaceIsAtomicSwap(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	vecs := testutil.SeedVectorCorpus(t, tx, 4, 4)
	resultRepo := NewClusterResultRepo(gdb, log)
	result := &domain.ClusterResult{Algorithm: "kmeans", ClusterCount: 2}
	if err := resultRepo.Create(dbc, result); err != nil {
		t.Fatalf("create cluster result: %v", err)
	}

	repo := NewRepresentativeRepo(gdb, log)
	first := []domain.ClusterRepresentative{
		{VectorID: vecs[0].ID, ClusterLabel: 0, QualityScore: 0.9, IsPrimary: true},
		{VectorID: vecs[1].ID, ClusterLabel: 0, QualityScore: 0.7},
	}
	if err := repo.ReplaceForClusterResult(dbc, result.ID, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	second := []domain.ClusterRepresentative{
		{VectorID: vecs[2].ID, ClusterLabel: 1, QualityScore: 0.8, IsPrimary: true},
	}
	if err := repo.ReplaceForClusterResult(dbc, result.ID, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := repo.ListByClusterResult(dbc, result.ID)
	if err != nil {
		t.Fatalf("ListByClusterResult: %v", err)
	}
	if len(got) != 1 || got[0].VectorID != vecs[2].ID {
		t.Fatalf("replace should leave only the new set, got %+v", got)
	}

	primaries, err := repo.ListPrimary(dbc, result.ID)
	if err != nil {
		t.Fatalf("ListPrimary: %v", err)
	}
	if len(primaries) != 1 || !primaries[0].IsPrimary {
		t.Fatalf("expected one primary representative, got %d", len(primaries))
	}
}

func TestGeneratedScriptStatus(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewGeneratedScriptRepo(gdb, log)
	s := &domain.GeneratedScript{Title: "改善スクリプト", Content: []byte(`{"counseling_script":{}}`)}
	if err := repo.Create(dbc, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Status != "" && s.Status != "draft" {
		t.Fatalf("unexpected initial status %q", s.Status)
	}

	if err := repo.UpdateStatus(dbc, s.ID, "published"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err := repo.GetByID(dbc, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != "published" {
		t.Fatalf("status = %q, want published", got.Status)
	}
}
