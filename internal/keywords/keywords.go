// Package keywords holds the domain vocabulary used by scoring and
// analysis. The compiled-in defaults target Japanese beauty-salon
// counseling transcripts; deployments for other verticals override them
// with a YAML file pointed at by KEYWORD_CONFIG_PATH.
package keywords

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full keyword vocabulary. Zero-value slices in a YAML
// override fall back to the defaults, so a file may replace only the
// lists it cares about.
type Config struct {
	// Important terms whose presence raises content quality.
	Important []string `yaml:"important"`
	// Positive terms that indicate a reassuring, effective tone.
	Positive []string `yaml:"positive"`
	// Negative terms that indicate hesitation or objections.
	Negative []string `yaml:"negative"`
	// ImprovementHints maps an important term to the advice shown when a
	// failure transcript is missing it.
	ImprovementHints map[string]string `yaml:"improvement_hints"`
	// DefaultHint is returned when no specific hint applies.
	DefaultHint string `yaml:"default_hint"`
	// ActionIndicators mark concrete, practicable advice in a script.
	ActionIndicators []string `yaml:"action_indicators"`
	// ExpertTerms are industry vocabulary counted for the expertise score.
	ExpertTerms []string `yaml:"expert_terms"`
	// InnovationKeywords flag novel approaches in generated scripts.
	InnovationKeywords []string `yaml:"innovation_keywords"`
	// StopWords are dropped during keyword extraction.
	StopWords []string `yaml:"stop_words"`

	stopSet map[string]struct{}
}

// Default returns the built-in vocabulary.
func Default() *Config {
	c := &Config{
		Important: []string{
			"効果", "料金", "安心", "体験", "相談", "無料", "カウンセリング",
			"脱毛", "痛み", "期間", "回数", "保証", "技術", "安全",
		},
		Positive: []string{
			"満足", "安心", "効果的", "快適", "信頼", "安全", "丁寧",
			"親切", "分かりやすい", "おすすめ",
		},
		Negative: []string{
			"痛い", "高い", "不安", "心配", "迷う", "悩む",
		},
		ImprovementHints: map[string]string{
			"効果": "より具体的な効果の説明を含める",
			"料金": "料金体系の明確な説明を追加",
			"安心": "顧客の不安を軽減する表現を使用",
			"体験": "体験談や事例を活用",
			"相談": "相談しやすい雰囲気作りを重視",
		},
		DefaultHint: "成功例のトーンや構成を参考にしてみてください",
		ActionIndicators: []string{
			"具体的", "例えば", "ポイント", "コツ", "方法", "テクニック",
			"言い回し", "表現", "アプローチ", "話し方", "手順", "ステップ",
		},
		ExpertTerms: []string{
			"脱毛", "美容", "カウンセリング", "成約", "顧客", "クライアント",
			"レーザー", "光脱毛", "IPL", "医療", "施術", "契約", "料金プラン",
			"カウンセラー", "エステ", "サロン", "クリニック",
		},
		InnovationKeywords: []string{
			"新しい", "革新的", "独自", "画期的", "効果的", "改善された",
			"アプローチ", "手法", "テクニック", "戦略",
		},
		StopWords: []string{
			"です", "ます", "ある", "いる", "する", "なる", "れる", "られる",
			"こと", "もの", "ため", "よう", "から", "まで", "など",
		},
	}
	c.buildSets()
	return c
}

// Load returns the default vocabulary merged with the optional YAML
// override named by KEYWORD_CONFIG_PATH.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("KEYWORD_CONFIG_PATH"))
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a YAML override and merges it over the defaults.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword config %s: %w", path, err)
	}
	var override Config
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse keyword config %s: %w", path, err)
	}

	c := Default()
	if len(override.Important) > 0 {
		c.Important = override.Important
	}
	if len(override.Positive) > 0 {
		c.Positive = override.Positive
	}
	if len(override.Negative) > 0 {
		c.Negative = override.Negative
	}
	if len(override.ImprovementHints) > 0 {
		c.ImprovementHints = override.ImprovementHints
	}
	if strings.TrimSpace(override.DefaultHint) != "" {
		c.DefaultHint = override.DefaultHint
	}
	if len(override.ActionIndicators) > 0 {
		c.ActionIndicators = override.ActionIndicators
	}
	if len(override.ExpertTerms) > 0 {
		c.ExpertTerms = override.ExpertTerms
	}
	if len(override.InnovationKeywords) > 0 {
		c.InnovationKeywords = override.InnovationKeywords
	}
	if len(override.StopWords) > 0 {
		c.StopWords = override.StopWords
	}
	c.buildSets()
	return c, nil
}

func (c *Config) buildSets() {
	c.stopSet = make(map[string]struct{}, len(c.StopWords))
	for _, w := range c.StopWords {
		c.stopSet[w] = struct{}{}
	}
}

// IsStopWord reports whether w is filtered from extracted keywords.
func (c *Config) IsStopWord(w string) bool {
	_, ok := c.stopSet[w]
	return ok
}

// Runs of two or more kana/kanji characters approximate content words.
// Proper tokenization would need a morphological analyzer; substring
// matching over these runs is accurate enough for density scoring.
var jpWordPattern = regexp.MustCompile(`[ぁ-んァ-ヶー一-龠]{2,}`)

// ExtractKeywords pulls candidate content words from text, dropping
// stop words and duplicates. Order follows first appearance.
func (c *Config) ExtractKeywords(text string) []string {
	matches := jpWordPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, w := range matches {
		if c.IsStopWord(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// ExtractKeywordFrequencies returns content words with occurrence
// counts, stop words excluded.
func (c *Config) ExtractKeywordFrequencies(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range jpWordPattern.FindAllString(text, -1) {
		if c.IsStopWord(w) {
			continue
		}
		counts[w]++
	}
	return counts
}

// CountContaining counts how many terms appear in text at least once.
func CountContaining(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

// CountOccurrences sums every occurrence of every term in text.
func CountOccurrences(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(text, t)
	}
	return n
}
