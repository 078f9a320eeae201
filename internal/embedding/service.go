package embedding

import (
	"context"
	"time"

	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

// Embedder is the vectorization provider.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

const (
	// DefaultMaxTokens bounds a single embedded chunk.
	DefaultMaxTokens = 512
	// DefaultBatchSize bounds one provider call.
	DefaultBatchSize = 20
	// DefaultDim is the provider's embedding width; zero-vector
	// fallbacks are minted at this size.
	DefaultDim = 1536

	batchPause = 100 * time.Millisecond
	itemPause  = 50 * time.Millisecond
)

// ChunkMeta locates an embedded chunk within its source text.
type ChunkMeta struct {
	OriginalIndex int `json:"original_index"`
	ChunkIndex    int `json:"chunk_index"`
	TotalChunks   int `json:"total_chunks"`
	TokenCount    int `json:"token_count"`
}

// ChunkEmbedding pairs a chunk with its vector and provenance.
type ChunkEmbedding struct {
	Text   string
	Vector []float32
	Meta   ChunkMeta
}

// Service turns transcript text into embedding vectors, chunking long
// inputs and batching provider calls.
type Service struct {
	client    Embedder
	log       *logger.Logger
	maxTokens int
	batchSize int
	dim       int
}

// Options overrides Service defaults; zero fields keep the default.
type Options struct {
	MaxTokens int
	BatchSize int
	Dim       int
}

func NewService(client Embedder, log *logger.Logger, opts Options) *Service {
	s := &Service{
		client:    client,
		log:       log.With("service", "EmbeddingService"),
		maxTokens: DefaultMaxTokens,
		batchSize: DefaultBatchSize,
		dim:       DefaultDim,
	}
	if opts.MaxTokens > 0 {
		s.maxTokens = opts.MaxTokens
	}
	if opts.BatchSize > 0 {
		s.batchSize = opts.BatchSize
	}
	if opts.Dim > 0 {
		s.dim = opts.Dim
	}
	return s
}

// Dim reports the embedding width the service expects.
func (s *Service) Dim() int { return s.dim }

// MaxTokens reports the per-chunk token budget.
func (s *Service) MaxTokens() int { return s.maxTokens }

// EmbedText vectorizes a single text without chunking.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch vectorizes texts in provider-sized batches, preserving
// input order. The output always has one vector per input; any batch
// failure fails the whole call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := s.client.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
		if end < len(texts) {
			time.Sleep(batchPause)
		}
	}
	return out, nil
}

// EmbedWithChunking splits each input that exceeds the token budget,
// embeds all resulting chunks in batches, and returns one entry per
// chunk with provenance metadata. Per-chunk provider failures degrade
// to zero vectors so one bad chunk cannot sink a whole ingest run.
func (s *Service) EmbedWithChunking(ctx context.Context, texts []string) ([]ChunkEmbedding, error) {
	var all []ChunkEmbedding

	for textIdx, text := range texts {
		tokens := CountTokens(text)
		if tokens <= s.maxTokens {
			all = append(all, ChunkEmbedding{
				Text: text,
				Meta: ChunkMeta{OriginalIndex: textIdx, ChunkIndex: 0, TotalChunks: 1, TokenCount: tokens},
			})
			continue
		}
		chunks := SplitByTokens(text, s.maxTokens)
		for chunkIdx, chunk := range chunks {
			all = append(all, ChunkEmbedding{
				Text: chunk,
				Meta: ChunkMeta{
					OriginalIndex: textIdx,
					ChunkIndex:    chunkIdx,
					TotalChunks:   len(chunks),
					TokenCount:    CountTokens(chunk),
				},
			})
		}
	}

	if err := s.fillVectors(ctx, all); err != nil {
		return nil, err
	}
	return all, nil
}

// fillVectors embeds all chunk texts in provider-sized batches. A batch
// failure falls back to one call per chunk; a chunk that still fails
// gets a zero vector.
func (s *Service) fillVectors(ctx context.Context, chunks []ChunkEmbedding) error {
	for start := 0; start < len(chunks); start += s.batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		inputs := make([]string, len(batch))
		for i := range batch {
			inputs[i] = batch[i].Text
		}

		vecs, err := s.client.Embed(ctx, inputs)
		if err == nil {
			for i := range batch {
				batch[i].Vector = vecs[i]
			}
			if end < len(chunks) {
				time.Sleep(batchPause)
			}
			continue
		}

		s.log.Error("Embedding batch failed; retrying chunks individually",
			"batch_start", start,
			"batch_size", len(batch),
			"error", err.Error(),
		)
		for i := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			vec, itemErr := s.EmbedText(ctx, batch[i].Text)
			if itemErr != nil {
				s.log.Error("Embedding chunk failed; substituting zero vector",
					"chunk_size", batch[i].Meta.TokenCount,
					"error", itemErr.Error(),
				)
				vec = make([]float32, s.dim)
			}
			batch[i].Vector = vec
			time.Sleep(itemPause)
		}
	}
	return nil
}

// EmbedForSearch vectorizes a query transcript without persisting it.
// Over-budget transcripts are represented by their first chunk.
func (s *Service) EmbedForSearch(ctx context.Context, conversationText string) ([]float32, error) {
	searchText := conversationText
	if CountTokens(conversationText) > s.maxTokens {
		searchText = SplitByTokens(conversationText, s.maxTokens)[0]
	}

	vec, err := s.EmbedText(ctx, searchText)
	if err != nil {
		return nil, err
	}
	s.log.Info("Search query vectorized", "dim", len(vec))
	return vec, nil
}
