package scripts

import (
	"fmt"
	"strings"
	"time"

	"github.com/soratone/counsel-backend/internal/embedding"
	"github.com/soratone/counsel-backend/internal/representatives"
	"github.com/soratone/counsel-backend/internal/search"
)

const (
	// maxPromptTokens bounds the assembled prompt; sections are compacted
	// in reverse importance order when the budget is exceeded.
	maxPromptTokens = 15000

	systemPrompt = "あなたは美容脱毛業界の専門カウンセリングアドバイザーです。データに基づいて実用的で効果的な改善スクリプトを生成してください。"
)

// FailureCase is one failed conversation submitted for improvement.
type FailureCase struct {
	Text          string `json:"text"`
	CounselorName string `json:"counselor_name,omitempty"`
	Date          string `json:"date,omitempty"`
}

// GenerationConfig tunes prompt construction.
type GenerationConfig struct {
	FocusAreas              []string
	TargetSuccessRate       float64
	IncludeDetailedAnalysis bool
}

func (c *GenerationConfig) applyDefaults() {
	if len(c.FocusAreas) == 0 {
		c.FocusAreas = []string{"opening", "needs_assessment", "solution_proposal", "closing"}
	}
	if c.TargetSuccessRate <= 0 {
		c.TargetSuccessRate = 0.8
	}
}

// Prompt is a fully assembled generation request.
type Prompt struct {
	System string
	User   string
	Meta   PromptMeta
}

// PromptMeta records how the prompt was built.
type PromptMeta struct {
	TokenCount          int            `json:"token_count"`
	InitialTokenCount   int            `json:"initial_token_count"`
	OptimizationApplied bool           `json:"optimization_applied"`
	SectionTokens       map[string]int `json:"sections"`
	CreatedAt           time.Time      `json:"created_at"`
}

// promptSections keeps assembly order stable.
var promptSectionOrder = []string{
	"role", "success_patterns", "failure_to_success",
	"target_failures", "output_requirements", "constraints",
}

// compactionOrder lists sections from most to least expendable, with the
// fraction trimmed from each when the prompt exceeds the token budget.
var compactionOrder = []struct {
	name string
	rate float64
}{
	{"constraints", 0.3},
	{"failure_to_success", 0.2},
	{"success_patterns", 0.25},
	{"target_failures", 0.15},
	{"output_requirements", 0.15},
	{"role", 0.15},
}

// BuildPrompt assembles the script-generation prompt from cluster
// representatives, failure-to-success mappings, and the target failures.
func BuildPrompt(
	reps []representatives.ScriptCandidate,
	mappings []*search.MatchResult,
	failures []FailureCase,
	cfg GenerationConfig,
) Prompt {
	cfg.applyDefaults()

	sections := map[string]string{
		"role":                rolePrompt(cfg.TargetSuccessRate),
		"success_patterns":    formatSuccessPatterns(reps),
		"failure_to_success":  formatFailureMappings(mappings),
		"target_failures":     formatFailureCases(failures, cfg.FocusAreas),
		"output_requirements": outputRequirements(cfg.FocusAreas, cfg.IncludeDetailedAnalysis),
		"constraints":         constraintsGuidelines(),
	}

	initial := assemble(sections)
	initialTokens := embedding.CountTokens(initial)

	optimized := false
	if initialTokens > maxPromptTokens {
		compactSections(sections, maxPromptTokens)
		optimized = true
	}
	final := assemble(sections)

	sectionTokens := make(map[string]int, len(sections))
	for name, content := range sections {
		sectionTokens[name] = embedding.CountTokens(content)
	}

	return Prompt{
		System: systemPrompt,
		User:   final,
		Meta: PromptMeta{
			TokenCount:          embedding.CountTokens(final),
			InitialTokenCount:   initialTokens,
			OptimizationApplied: optimized,
			SectionTokens:       sectionTokens,
			CreatedAt:           time.Now().UTC(),
		},
	}
}

func assemble(sections map[string]string) string {
	parts := make([]string, 0, len(promptSectionOrder))
	for _, name := range promptSectionOrder {
		parts = append(parts, sections[name])
	}
	return strings.Join(parts, "\n\n")
}

func compactSections(sections map[string]string, targetTokens int) {
	for _, step := range compactionOrder {
		content, ok := sections[step.name]
		if !ok {
			continue
		}
		keep := int(float64(embedding.CountTokens(content)) * (1 - step.rate))
		sections[step.name] = truncateToTokens(content, keep)

		total := 0
		for _, c := range sections {
			total += embedding.CountTokens(c)
		}
		if total <= targetTokens {
			return
		}
	}
}

func truncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(text)
	limit := maxTokens * 4
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func rolePrompt(targetSuccessRate float64) string {
	return fmt.Sprintf(`あなたは美容脱毛業界のカウンセリング専門家として、過去の成功・失敗事例を分析し、成約率%.0f%%以上を目標とする改善スクリプトを生成する専門AIです。

## あなたの専門性
- 美容脱毛業界での豊富なカウンセリング経験
- 顧客心理と成約要因の深い理解
- データドリブンな改善提案スキル
- 実用的で自然な会話スクリプト作成能力

## 分析アプローチ
1. クラスタリングされた成功パターンの特徴抽出
2. 失敗→成功の転換要因分析
3. 顧客ニーズと効果的な対応方法の特定
4. 実践的で即効性のある改善案提示`, targetSuccessRate*100)
}

func formatSuccessPatterns(reps []representatives.ScriptCandidate) string {
	if len(reps) == 0 {
		return "## 成功パターン分析\n分析に十分な成功事例データがありません。"
	}

	var b strings.Builder
	b.WriteString("## 成功パターン分析（クラスタリング結果）\n\n")
	for i, rep := range reps {
		counselor := rep.SessionInfo.CounselorName
		if counselor == "" {
			counselor = "不明"
		}
		fmt.Fprintf(&b, `### 成功パターン%d (クラスタ%d)
**品質スコア**: %.2f
**特徴**: %s
**代表例**:
`+"```\n%s\n```"+`
**カウンセラー**: %s
**共通キーワード**: %s

`,
			i+1, rep.ClusterLabel,
			rep.QualityScore,
			rep.Characteristics.Description,
			truncateRunes(rep.Text, 300),
			counselor,
			strings.Join(firstN(rep.Characteristics.CommonKeywords, 5), ", "),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFailureMappings(mappings []*search.MatchResult) string {
	if len(mappings) == 0 {
		return "## 失敗→成功の改善パターン\n対応する改善パターンが見つかりませんでした。"
	}

	var b strings.Builder
	b.WriteString("## 失敗→成功の改善パターン\n\n")
	n := 0
	for _, mapping := range mappings {
		if mapping == nil || len(mapping.Matches) == 0 {
			continue
		}
		n++
		best := mapping.Matches[0]
		fmt.Fprintf(&b, `### 改善パターン%d
**失敗事例の特徴**:
- テキスト: %s
- 問題要因: %s

**類似成功事例** (類似度: %.2f):
`+"```\n%s\n```"+`

**改善ヒント**:
%s

`,
			n,
			truncateRunes(mapping.Failure.Text, 200),
			strings.Join(best.KeyDifferences, ", "),
			best.Similarity,
			truncateRunes(best.ChunkText, 250),
			formatHints(best.ImprovementHints),
		)
	}
	if n == 0 {
		return "## 失敗→成功の改善パターン\n対応する改善パターンが見つかりませんでした。"
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFailureCases(failures []FailureCase, focusAreas []string) string {
	if len(failures) == 0 {
		return "## 分析対象の失敗事例\n分析対象の失敗事例が指定されていません。"
	}

	var b strings.Builder
	b.WriteString("## 分析対象の失敗事例\n\n")
	fmt.Fprintf(&b, "**改善フォーカス領域**: %s\n\n", strings.Join(focusAreas, ", "))
	for i, failure := range failures {
		counselor := failure.CounselorName
		if counselor == "" {
			counselor = "不明"
		}
		date := failure.Date
		if date == "" {
			date = "不明"
		}
		fmt.Fprintf(&b, `### 失敗事例%d
**会話内容**:
`+"```\n%s\n```"+`
**メタデータ**: カウンセラー: %s, 時期: %s

`,
			i+1, truncateRunes(failure.Text, 400), counselor, date)
	}
	return strings.TrimRight(b.String(), "\n")
}

var phaseRequirements = map[string]string{
	"opening":           "#### A. オープニング\n- 信頼関係構築の言い回し\n- 効果的な導入トーク\n- 緊張緩和テクニック",
	"needs_assessment":  "#### B. ニーズ確認\n- 的確な質問技法\n- 潜在ニーズの引き出し方\n- 共感的傾聴のポイント",
	"solution_proposal": "#### C. ソリューション提案\n- 顧客ニーズに合わせた提案方法\n- 効果的な価値訴求\n- 不安解消のアプローチ",
	"closing":           "#### D. クロージング\n- 自然な契約導入\n- 決断サポート技法\n- 次ステップの明確化",
}

func outputRequirements(focusAreas []string, includeDetailedAnalysis bool) string {
	var b strings.Builder
	b.WriteString(`## 出力要求

以下の構造で改善スクリプトを生成してください:

### 1. 成功パターン別共通要因分析
各クラスタの特徴と有効性を分析し、共通する成功要素を抽出してください。

### 2. 失敗→成功への具体的改善ポイント
- 失敗事例の根本的問題点
- 類似状況での成功要因との詳細比較
- すぐに実践できる具体的改善提案

### 3. 改善カウンセリングスクリプト
以下のフェーズ別に実用的なスクリプトを作成:

`)
	for _, area := range focusAreas {
		if req, ok := phaseRequirements[area]; ok {
			b.WriteString(req + "\n\n")
		}
	}
	b.WriteString(`### 4. 実用的な改善ポイント
- 即座に実践できる具体的なアドバイス
- 成功事例からの効果的な言い回し例
- 避けるべき表現や行動

### 5. 期待される効果
- 想定される成約率改善度
- 顧客満足度向上ポイント
- 長期的な効果予測`)

	if includeDetailedAnalysis {
		b.WriteString(`

### 6. 詳細分析レポート
- 統計的根拠とデータ裏付け
- リスク要因と対策
- 継続的改善のための指標`)
	}
	return b.String()
}

func constraintsGuidelines() string {
	return `## 制約条件・品質ガイドライン

### 業界特化要件
- 美容脱毛業界のカウンセリングに特化した内容
- 法的コンプライアンス（医療広告ガイドライン等）遵守
- 業界用語の適切な使用

### 成約率重視
- 成約率向上を最優先目標とする
- 顧客の納得感を重視した自然な流れ
- 強引な営業手法は避ける

### 実用性重視
- 実際の会話で自然に使える表現
- カウンセラーが覚えやすい構成
- 即座に実践可能な具体性

### 品質基準
- 根拠となるデータへの言及
- 段階的で論理的な構成
- 明確で分かりやすい言葉遣い
- 顧客視点での価値提示

### 出力形式
- Markdown形式での構造化
- 具体例と抽象的概念のバランス
- セクション間の一貫性維持`
}

func formatHints(hints []string) string {
	if len(hints) == 0 {
		return "具体的な改善ヒントを分析中です。"
	}
	lines := make([]string, len(hints))
	for i, h := range hints {
		lines[i] = fmt.Sprintf("  %d. %s", i+1, h)
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
