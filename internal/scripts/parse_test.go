package scripts

import (
	"strings"
	"testing"
)

const sampleResponse = `## 1. 成功パターン別共通要因分析
成功事例に共通するのは、効果と料金を具体的な数値とともに説明し、顧客の不安に先回りして答えている点です。カウンセリングの序盤で信頼関係を築けていることも大きな要因です。

## 2. 失敗→成功への具体的改善ポイント
失敗事例では料金の説明が曖昧なまま提案に進んでおり、顧客の安心感が得られていません。成功事例のように体験コースを起点に段階的に提案することが有効です。

## 3. 改善カウンセリングスクリプト

#### A. オープニング
「本日はご来店いただきありがとうございます。まずはリラックスしてお話をお聞かせください。」と伝え、緊張を和らげます。

#### B. ニーズ確認
「これまでに脱毛のご経験はありますか。気になる部位やご予算があればお聞かせください。」と開かれた質問で潜在ニーズを引き出します。

#### C. ソリューション提案
「お伺いした内容ですと、まず無料の体験コースで効果を実感いただくのがおすすめです。」と顧客の状況に合わせて提案します。

#### D. クロージング
「ご不明な点があればいつでもご相談ください。本日お申し込みいただくと初回料金の割引がございます。」と自然に次のステップへ導きます。

## 4. 実用的な改善ポイント
具体的には、例えば料金表を見せながら説明する方法が有効です。話し方のポイントは、顧客の言葉を繰り返して共感を示すテクニックです。

## 5. 期待される効果
成約率の向上と顧客満足度の改善が期待できます。
`

func TestParseResponseSections(t *testing.T) {
	script := ParseResponse(sampleResponse)

	if !strings.Contains(script.SuccessFactorsAnalysis, "信頼関係") {
		t.Errorf("success factors not parsed: %q", script.SuccessFactorsAnalysis)
	}
	if !strings.Contains(script.ImprovementPoints, "体験コース") {
		t.Errorf("improvement points not parsed: %q", script.ImprovementPoints)
	}
	if !strings.Contains(script.PracticalImprovements, "料金表") {
		t.Errorf("practical improvements not parsed: %q", script.PracticalImprovements)
	}
	if !strings.Contains(script.ExpectedEffects, "成約率") {
		t.Errorf("expected effects not parsed: %q", script.ExpectedEffects)
	}
	if script.RawContent != sampleResponse {
		t.Error("raw content not preserved")
	}
}

func TestParseResponsePhases(t *testing.T) {
	script := ParseResponse(sampleResponse)
	cs := script.CounselingScript

	checks := []struct {
		name, content, want string
	}{
		{"opening", cs.Opening, "リラックス"},
		{"needs_assessment", cs.NeedsAssessment, "気になる部位"},
		{"solution_proposal", cs.SolutionProposal, "体験コース"},
		{"closing", cs.Closing, "割引"},
	}
	for _, c := range checks {
		if !strings.Contains(c.content, c.want) {
			t.Errorf("phase %s = %q, want it to contain %q", c.name, c.content, c.want)
		}
	}
	if strings.Contains(cs.Opening, "ニーズ確認") {
		t.Errorf("opening bleeds into next phase: %q", cs.Opening)
	}
}

func TestParseResponseUnstructured(t *testing.T) {
	raw := "構造化されていない応答テキストです。"
	script := ParseResponse(raw)

	if script.RawContent != raw {
		t.Error("raw content not preserved")
	}
	if script.SuccessFactorsAnalysis != "" || script.CounselingScript.Opening != "" {
		t.Error("unstructured response should parse to empty sections")
	}
}

func TestValidateScriptCompleteScript(t *testing.T) {
	script := ParseResponse(sampleResponse)
	v := ValidateScript(script)

	if v.StructureScore != 1.0 {
		t.Errorf("structure = %v, want 1.0 with all four phases present", v.StructureScore)
	}
	if v.CompletenessScore != 1.0 {
		t.Errorf("completeness = %v, want 1.0", v.CompletenessScore)
	}
	if v.ActionabilityScore == 0 {
		t.Error("actionability should pick up the concrete phrasing markers")
	}
	if v.OverallQuality <= 0.5 {
		t.Errorf("overall = %v, want > 0.5 for a complete script", v.OverallQuality)
	}
}

func TestValidateScriptMissingPhases(t *testing.T) {
	script := &Script{
		SuccessFactorsAnalysis: strings.Repeat("分析", 40),
		ImprovementPoints:      strings.Repeat("改善", 40),
		PracticalImprovements:  strings.Repeat("実用", 40),
	}
	v := ValidateScript(script)

	if v.StructureScore != 0 {
		t.Errorf("structure = %v, want 0 with no phases", v.StructureScore)
	}
	if v.CompletenessScore != 0.75 {
		t.Errorf("completeness = %v, want 0.75 with script body missing", v.CompletenessScore)
	}
}
