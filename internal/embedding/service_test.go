package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

type fakeEmbedder struct {
	dim      int
	calls    int
	failText string
	failAll  bool
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.failAll {
		return nil, errors.New("provider down")
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if f.failText != "" && len(inputs) == 1 && in == f.failText {
			return nil, errors.New("bad input")
		}
		if f.failText != "" && len(inputs) > 1 {
			for _, s := range inputs {
				if s == f.failText {
					return nil, errors.New("bad batch")
				}
			}
		}
		vec := make([]float32, f.dim)
		vec[0] = float32(len([]rune(in)))
		out[i] = vec
	}
	return out, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestCountTokensEstimate(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Fatalf("empty text: got %d, want 0", got)
	}
	if got := CountTokens("ab"); got != 1 {
		t.Fatalf("short text floors at 1, got %d", got)
	}
	long := strings.Repeat("あ", 400)
	if got := CountTokens(long); got != 100 {
		t.Fatalf("400 runes: got %d, want 100", got)
	}
}

func TestSplitByTokensWindows(t *testing.T) {
	text := strings.Repeat("あ", 1000)
	chunks := SplitByTokens(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks[:2] {
		if n := len([]rune(c)); n != 400 {
			t.Fatalf("chunk %d has %d runes, want 400", i, n)
		}
	}
	var total int
	for _, c := range chunks {
		total += len([]rune(c))
	}
	if total != 1000 {
		t.Fatalf("chunks drop runes: total %d", total)
	}
}

func TestChunkConversationKeepsTurnsWhole(t *testing.T) {
	turns := []string{
		strings.Repeat("あ", 200),
		strings.Repeat("い", 200),
		strings.Repeat("う", 200),
	}
	text := strings.Join(turns, "。") + "。"

	// Budget of 110 tokens fits two 50-token turns per chunk at most.
	chunks := ChunkConversation(text, 110)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, turns[0]) || !strings.Contains(chunks[0].Text, turns[1]) {
		t.Fatalf("first chunk should hold the first two turns intact: %q", chunks[0].Text)
	}
	if !strings.Contains(chunks[1].Text, turns[2]) {
		t.Fatalf("second chunk should hold the third turn intact")
	}
}

func TestChunkConversationOversizedTurn(t *testing.T) {
	text := strings.Repeat("あ", 2000) // one 500-token utterance, no boundaries
	chunks := ChunkConversation(text, 100)
	if len(chunks) != 1 {
		t.Fatalf("an unsplittable turn should become one oversized chunk, got %d", len(chunks))
	}
	if chunks[0].TokenCount <= 100 {
		t.Fatalf("oversized chunk should keep its real token count, got %d", chunks[0].TokenCount)
	}
}

func TestEmbedWithChunkingMetadata(t *testing.T) {
	fe := &fakeEmbedder{dim: 8}
	svc := NewService(fe, testLogger(t), Options{MaxTokens: 100, Dim: 8})

	short := strings.Repeat("あ", 40)   // 10 tokens, one chunk
	long := strings.Repeat("い", 1000) // 250 tokens, three chunks

	out, err := svc.EmbedWithChunking(context.Background(), []string{short, long})
	if err != nil {
		t.Fatalf("EmbedWithChunking: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d chunk embeddings, want 4", len(out))
	}

	if m := out[0].Meta; m.OriginalIndex != 0 || m.ChunkIndex != 0 || m.TotalChunks != 1 || m.TokenCount != 10 {
		t.Fatalf("short text metadata wrong: %+v", m)
	}
	for i, ce := range out[1:] {
		m := ce.Meta
		if m.OriginalIndex != 1 || m.ChunkIndex != i || m.TotalChunks != 3 {
			t.Fatalf("long text chunk %d metadata wrong: %+v", i, m)
		}
		if len(ce.Vector) != 8 {
			t.Fatalf("chunk %d vector dim %d, want 8", i, len(ce.Vector))
		}
	}
}

func TestEmbedWithChunkingZeroVectorFallback(t *testing.T) {
	bad := strings.Repeat("あ", 40)
	good := strings.Repeat("い", 40)
	fe := &fakeEmbedder{dim: 8, failText: bad}
	svc := NewService(fe, testLogger(t), Options{MaxTokens: 100, Dim: 8})

	out, err := svc.EmbedWithChunking(context.Background(), []string{good, bad})
	if err != nil {
		t.Fatalf("EmbedWithChunking: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
	if out[0].Vector[0] == 0 {
		t.Fatalf("good chunk should have a real vector")
	}
	for i, v := range out[1].Vector {
		if v != 0 {
			t.Fatalf("failed chunk should degrade to a zero vector, index %d = %v", i, v)
		}
	}
	if len(out[1].Vector) != 8 {
		t.Fatalf("zero vector should match configured dim, got %d", len(out[1].Vector))
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	fe := &fakeEmbedder{dim: 4}
	svc := NewService(fe, testLogger(t), Options{BatchSize: 2, Dim: 4})

	texts := []string{"あ", "ああ", "あああ", "ああああ", "あああああ"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("output length %d, input length %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Fatalf("vector %d out of order: %v", i, v[0])
		}
	}
	if fe.calls != 3 {
		t.Fatalf("batch size 2 over 5 inputs should take 3 calls, got %d", fe.calls)
	}

	empty, err := svc.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty input should yield empty output, got %d", len(empty))
	}
}

func TestEmbedForSearchUsesFirstChunk(t *testing.T) {
	fe := &fakeEmbedder{dim: 4}
	svc := NewService(fe, testLogger(t), Options{MaxTokens: 100, Dim: 4})

	long := strings.Repeat("あ", 1000)
	vec, err := svc.EmbedForSearch(context.Background(), long)
	if err != nil {
		t.Fatalf("EmbedForSearch: %v", err)
	}
	// Fake encodes the input rune count into vec[0]; the first window is
	// 400 runes.
	if vec[0] != 400 {
		t.Fatalf("expected first 400-rune chunk to be embedded, got length %v", vec[0])
	}
}
