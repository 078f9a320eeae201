package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/soratone/counsel-backend/internal/data/repos/testutil"
)

func TestSearchOrdersBySimilarity(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	session := testutil.SeedSession(t, tx, "counselor-a")
	testutil.SeedSuccessVector(t, tx, session.ID, 0, "完全一致", []float32{1, 0, 0, 0})
	testutil.SeedSuccessVector(t, tx, session.ID, 1, "部分一致", []float32{1, 1, 0, 0})
	testutil.SeedSuccessVector(t, tx, session.ID, 2, "直交", []float32{0, 0, 1, 0})

	store := NewPostgresStore(tx, log, 4)
	matches, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 10, 0.5, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("threshold 0.5 should keep 2 of 3 vectors, got %d", len(matches))
	}
	if matches[0].Vector.ChunkText != "完全一致" {
		t.Fatalf("best match should come first, got %q", matches[0].Vector.ChunkText)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Fatalf("matches not sorted descending: %v then %v", matches[0].Similarity, matches[1].Similarity)
	}
}

func TestSearchTieBreaksOnInsertionOrder(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	session := testutil.SeedSession(t, tx, "counselor-a")
	first := testutil.SeedSuccessVector(t, tx, session.ID, 0, "先", []float32{1, 0})
	testutil.SeedSuccessVector(t, tx, session.ID, 1, "後", []float32{1, 0})

	store := NewPostgresStore(tx, log, 2)
	matches, err := store.Search(context.Background(), []float32{1, 0}, 1, 0.0, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Vector.ID != first.ID {
		t.Fatalf("equal scores should prefer the earlier insertion")
	}
}

func TestSearchCounselorFilter(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	sessionA := testutil.SeedSession(t, tx, "counselor-a")
	sessionB := testutil.SeedSession(t, tx, "counselor-b")
	testutil.SeedSuccessVector(t, tx, sessionA.ID, 0, "Aの会話", []float32{1, 0})
	testutil.SeedSuccessVector(t, tx, sessionB.ID, 0, "Bの会話", []float32{1, 0})

	store := NewPostgresStore(tx, log, 2)
	matches, err := store.Search(context.Background(), []float32{1, 0}, 10, 0.0, Filter{CounselorName: "counselor-b"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Vector.SessionID != sessionB.ID {
		t.Fatalf("filter should restrict to counselor-b, got %d matches", len(matches))
	}
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	store := NewPostgresStore(tx, log, 4)
	_, err := store.Search(context.Background(), []float32{1, 0}, 10, 0.0, Filter{})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *OperationError, got %T", err)
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	q := []float32{0.1, 0.2, 0.3}
	k1, err := cacheKey(q, 5, 0.7, Filter{CounselorName: "a"})
	if err != nil {
		t.Fatalf("cacheKey: %v", err)
	}
	k2, err := cacheKey(q, 5, 0.7, Filter{CounselorName: "a"})
	if err != nil {
		t.Fatalf("cacheKey: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("same inputs should produce the same key")
	}

	k3, _ := cacheKey(q, 6, 0.7, Filter{CounselorName: "a"})
	if k1 == k3 {
		t.Fatalf("topK must be part of the key")
	}
	k4, _ := cacheKey(q, 5, 0.7, Filter{CounselorName: "b"})
	if k1 == k4 {
		t.Fatalf("filters must be part of the key")
	}
	k5, _ := cacheKey([]float32{0.1, 0.2, 0.4}, 5, 0.7, Filter{CounselorName: "a"})
	if k1 == k5 {
		t.Fatalf("query vector must be part of the key")
	}
}
