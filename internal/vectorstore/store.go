// Package vectorstore provides similarity search over stored success
// conversation vectors. The Postgres implementation scans embeddings
// brute-force, which holds up well at the corpus sizes this pipeline
// sees; the Store interface keeps a dedicated vector database swappable
// in behind it.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/pkg/vecmath"
)

// Filter narrows a search to a slice of the corpus.
type Filter struct {
	CounselorName string     `json:"counselor_name,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	SessionIDs    []string   `json:"session_ids,omitempty"`
}

// Match is one search hit.
type Match struct {
	Vector     domain.SuccessVector `json:"vector"`
	Similarity float64              `json:"similarity"`
}

// Store looks up stored success vectors by cosine similarity.
type Store interface {
	// Search returns up to topK vectors with similarity >= threshold,
	// ordered by descending similarity. Ties break on insertion order.
	Search(ctx context.Context, query []float32, topK int, threshold float64, filter Filter) ([]Match, error)
}

// OperationError wraps a failed store operation with its name.
type OperationError struct {
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("vectorstore %s: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

type postgresStore struct {
	db  *gorm.DB
	log *logger.Logger
	dim int
}

// NewPostgresStore builds a brute-force cosine store over the
// success_vectors table. dim is the expected embedding width; queries
// of any other width are rejected.
func NewPostgresStore(db *gorm.DB, log *logger.Logger, dim int) Store {
	return &postgresStore{
		db:  db,
		log: log.With("service", "PostgresVectorStore"),
		dim: dim,
	}
}

func (s *postgresStore) Search(ctx context.Context, query []float32, topK int, threshold float64, filter Filter) ([]Match, error) {
	if len(query) != s.dim {
		return nil, &OperationError{Operation: "search", Err: fmt.Errorf("query dimension %d, store dimension %d", len(query), s.dim)}
	}
	if topK <= 0 {
		return []Match{}, nil
	}

	q := s.db.WithContext(ctx).Model(&domain.SuccessVector{})
	if filter.CounselorName != "" || filter.DateFrom != nil || filter.DateTo != nil {
		q = q.Joins("JOIN counseling_sessions ON counseling_sessions.id = success_vectors.session_id")
		if filter.CounselorName != "" {
			q = q.Where("counseling_sessions.counselor_name = ?", filter.CounselorName)
		}
		if filter.DateFrom != nil {
			q = q.Where("counseling_sessions.created_at >= ?", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			q = q.Where("counseling_sessions.created_at <= ?", *filter.DateTo)
		}
	}
	if len(filter.SessionIDs) > 0 {
		q = q.Where("success_vectors.session_id IN ?", filter.SessionIDs)
	}

	var rows []domain.SuccessVector
	if err := q.Order("success_vectors.seq ASC").Find(&rows).Error; err != nil {
		return nil, &OperationError{Operation: "search", Err: err}
	}

	matches := make([]Match, 0, len(rows))
	for i := range rows {
		vec, err := domain.DecodeVector(rows[i].Embedding)
		if err != nil {
			s.log.Warn("Skipping vector with undecodable embedding",
				"vector_id", rows[i].ID.String(),
				"error", err.Error(),
			)
			continue
		}
		if len(vec) != s.dim {
			continue
		}
		sim := vecmath.Cosine(query, vec)
		if sim >= threshold {
			matches = append(matches, Match{Vector: rows[i], Similarity: sim})
		}
	}

	// Stable sort preserves the seq ordering of the scan for equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
