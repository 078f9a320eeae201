package embedding

import "strings"

// runesPerToken approximates the cl100k tokenizer for mixed
// Japanese/English transcript text. The estimate only has to be stable
// and conservative enough to keep chunks under the provider limit.
const runesPerToken = 4

// CountTokens estimates the token count of text.
func CountTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	est := n / runesPerToken
	if est < 1 {
		est = 1
	}
	return est
}

// SplitByTokens cuts text into consecutive windows of at most maxTokens
// estimated tokens, with no regard for sentence boundaries. Used when a
// single utterance is itself too long to embed whole.
func SplitByTokens(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	window := maxTokens * runesPerToken
	if len(runes) <= window {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+window-1)/window)
	for start := 0; start < len(runes); start += window {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
