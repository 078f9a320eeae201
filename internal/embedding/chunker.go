package embedding

import (
	"regexp"
	"strings"
)

// Chunk is a conversation slice small enough to embed in one call.
type Chunk struct {
	Text       string
	TokenCount int
}

// Utterance boundaries: Japanese sentence enders and line breaks.
var turnSplitPattern = regexp.MustCompile(`[。！？\n]+`)

// SplitSpeakerTurns breaks a transcript into utterances. Blank segments
// are dropped and surrounding whitespace trimmed.
func SplitSpeakerTurns(text string) []string {
	parts := turnSplitPattern.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ChunkConversation packs whole utterances into chunks of at most
// maxTokens estimated tokens. Utterances are never split across chunks;
// an utterance that alone exceeds the budget becomes its own oversized
// chunk rather than being cut mid-sentence.
func ChunkConversation(text string, maxTokens int) []Chunk {
	turns := SplitSpeakerTurns(text)

	var chunks []Chunk
	var sb strings.Builder
	currentTokens := 0

	flush := func() {
		t := strings.TrimSpace(sb.String())
		if t != "" {
			chunks = append(chunks, Chunk{Text: t, TokenCount: currentTokens})
		}
		sb.Reset()
		currentTokens = 0
	}

	for _, turn := range turns {
		turnTokens := CountTokens(turn)
		if currentTokens > 0 && currentTokens+turnTokens > maxTokens {
			flush()
		}
		sb.WriteString(turn)
		sb.WriteString(" ")
		currentTokens += turnTokens
	}
	flush()

	return chunks
}
