// Package ingest turns labeled-successful counseling sessions into
// stored embedding vectors. It is the bridge between raw session rows
// and the analytical corpus the clustering and search layers read.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/embedding"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

const (
	// minTranscriptRunes rejects transcripts too short to carry a
	// meaningful conversation.
	minTranscriptRunes = 100
	// minDistinctRunes rejects garbled transcripts; real Japanese
	// conversation text never repeats this few characters.
	minDistinctRunes = 10
)

// Result summarizes one ingest sweep.
type Result struct {
	SessionsSeen     int `json:"sessions_seen"`
	SessionsEmbedded int `json:"sessions_embedded"`
	SessionsSkipped  int `json:"sessions_skipped"`
	SessionsRejected int `json:"sessions_rejected"`
	VectorsCreated   int `json:"vectors_created"`
}

// Service embeds successful session transcripts that have no stored
// vectors yet.
type Service struct {
	sessionRepo vectors.SessionRepo
	vectorRepo  vectors.SuccessVectorRepo
	embedder    *embedding.Service
	log         *logger.Logger
}

func NewService(
	sessionRepo vectors.SessionRepo,
	vectorRepo vectors.SuccessVectorRepo,
	embedder *embedding.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		vectorRepo:  vectorRepo,
		embedder:    embedder,
		log:         log.With("service", "IngestService"),
	}
}

// Run sweeps all successful completed sessions, validates their
// transcripts, and embeds the ones not yet in the vector corpus. A
// session that fails embedding is logged and skipped so one bad
// transcript cannot sink the sweep.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	dbc := dbctx.Context{Ctx: ctx}

	sessions, err := s.sessionRepo.ListSuccessful(dbc)
	if err != nil {
		return nil, fmt.Errorf("load successful sessions: %w", err)
	}

	result := &Result{SessionsSeen: len(sessions)}
	for i := range sessions {
		session := &sessions[i]

		existing, err := s.vectorRepo.ListBySessionID(dbc, session.ID)
		if err != nil {
			return nil, fmt.Errorf("check vectors for session %s: %w", session.ID, err)
		}
		if len(existing) > 0 {
			result.SessionsSkipped++
			continue
		}

		if !ValidTranscript(session.Transcription) {
			s.log.Warn("Transcript rejected by quality check", "session_id", session.ID.String())
			result.SessionsRejected++
			continue
		}

		created, err := s.embedSession(ctx, dbc, session)
		if err != nil {
			s.log.Warn("Session embedding failed", "session_id", session.ID.String(), "error", err)
			result.SessionsRejected++
			continue
		}
		result.SessionsEmbedded++
		result.VectorsCreated += created
	}

	s.log.Info("Ingest sweep finished",
		"seen", result.SessionsSeen,
		"embedded", result.SessionsEmbedded,
		"skipped", result.SessionsSkipped,
		"rejected", result.SessionsRejected,
		"vectors", result.VectorsCreated,
	)
	return result, nil
}

func (s *Service) embedSession(ctx context.Context, dbc dbctx.Context, session *domain.CounselingSession) (int, error) {
	chunks, err := s.embedder.EmbedWithChunking(ctx, []string{session.Transcription})
	if err != nil {
		return 0, err
	}

	rows := make([]domain.SuccessVector, 0, len(chunks))
	for _, chunk := range chunks {
		emb, encErr := domain.EncodeVector(chunk.Vector)
		if encErr != nil {
			return 0, fmt.Errorf("encode vector: %w", encErr)
		}
		meta, metaErr := json.Marshal(chunk.Meta)
		if metaErr != nil {
			return 0, fmt.Errorf("encode chunk metadata: %w", metaErr)
		}
		rows = append(rows, domain.SuccessVector{
			SessionID:  session.ID,
			ChunkText:  chunk.Text,
			Embedding:  emb,
			Metadata:   meta,
			ChunkIndex: chunk.Meta.ChunkIndex,
		})
	}
	if err := s.vectorRepo.CreateBatch(dbc, rows); err != nil {
		return 0, fmt.Errorf("store vectors: %w", err)
	}
	return len(rows), nil
}

// ValidTranscript reports whether a transcript is usable analysis
// input: long enough to carry a conversation and varied enough not to
// be garbled.
func ValidTranscript(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < minTranscriptRunes {
		return false
	}
	distinct := make(map[rune]struct{})
	for _, r := range trimmed {
		distinct[r] = struct{}{}
	}
	return len(distinct) >= minDistinctRunes
}
