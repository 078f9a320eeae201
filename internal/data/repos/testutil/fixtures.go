package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/domain"
)

// SeedSession inserts a completed, successful session and returns it.
func SeedSession(t *testing.T, tx *gorm.DB, counselorName string) *domain.CounselingSession {
	t.Helper()
	s := &domain.CounselingSession{
		ID:                  uuid.New(),
		FileURL:             "https://storage.example.com/audio/" + uuid.NewString() + ".mp3",
		FileName:            "session.mp3",
		FileSize:            1024,
		FileType:            "audio/mpeg",
		IsSuccess:           boolPtr(true),
		CounselorName:       counselorName,
		TranscriptionStatus: "completed",
	}
	if err := tx.Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

// SeedTranscribedSession inserts a completed, successful session with
// the given transcription text.
func SeedTranscribedSession(t *testing.T, tx *gorm.DB, counselorName, transcription string) *domain.CounselingSession {
	t.Helper()
	s := SeedSession(t, tx, counselorName)
	if err := tx.Model(s).Update("transcription", transcription).Error; err != nil {
		t.Fatalf("seed transcription: %v", err)
	}
	s.Transcription = transcription
	return s
}

// SeedFailureSession inserts a completed, unsuccessful session with the
// given transcription text.
func SeedFailureSession(t *testing.T, tx *gorm.DB, counselorName, transcription string) *domain.CounselingSession {
	t.Helper()
	s := &domain.CounselingSession{
		ID:                  uuid.New(),
		FileURL:             "https://storage.example.com/audio/" + uuid.NewString() + ".mp3",
		FileName:            "session.mp3",
		FileSize:            1024,
		FileType:            "audio/mpeg",
		Transcription:       transcription,
		IsSuccess:           boolPtr(false),
		CounselorName:       counselorName,
		TranscriptionStatus: "completed",
	}
	if err := tx.Create(s).Error; err != nil {
		t.Fatalf("seed failure session: %v", err)
	}
	return s
}

// SeedSuccessVector inserts one embedded chunk for a session.
func SeedSuccessVector(t *testing.T, tx *gorm.DB, sessionID uuid.UUID, chunkIndex int, text string, vec []float32) *domain.SuccessVector {
	t.Helper()
	raw, err := domain.EncodeVector(vec)
	if err != nil {
		t.Fatalf("encode fixture vector: %v", err)
	}
	v := &domain.SuccessVector{
		ID:         uuid.New(),
		SessionID:  sessionID,
		ChunkText:  text,
		Embedding:  raw,
		ChunkIndex: chunkIndex,
	}
	if err := tx.Create(v).Error; err != nil {
		t.Fatalf("seed success vector: %v", err)
	}
	return v
}

// SeedVectorCorpus creates a session and n chunks whose embeddings are
// one-hot-ish vectors of width dim, useful for similarity assertions.
func SeedVectorCorpus(t *testing.T, tx *gorm.DB, n, dim int) []domain.SuccessVector {
	t.Helper()
	session := SeedSession(t, tx, "fixture-counselor")
	out := make([]domain.SuccessVector, 0, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		vec[i%dim] = 1
		v := SeedSuccessVector(t, tx, session.ID, i, fmt.Sprintf("会話チャンク%d", i), vec)
		out = append(out, *v)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
