package scripts

import (
	"regexp"
	"strings"
	"time"
)

// CounselingScript holds the four conversation phases of a script.
type CounselingScript struct {
	Opening          string `json:"opening"`
	NeedsAssessment  string `json:"needs_assessment"`
	SolutionProposal string `json:"solution_proposal"`
	Closing          string `json:"closing"`
}

// Script is the structured form of a generated improvement script.
type Script struct {
	SuccessFactorsAnalysis string           `json:"success_factors_analysis"`
	ImprovementPoints      string           `json:"improvement_points"`
	CounselingScript       CounselingScript `json:"counseling_script"`
	PracticalImprovements  string           `json:"practical_improvements"`
	ExpectedEffects        string           `json:"expected_effects"`
	DetailedAnalysis       string           `json:"detailed_analysis,omitempty"`
	RawContent             string           `json:"raw_content"`
	ParsedAt               time.Time        `json:"parsed_at"`
}

// AllText joins every textual field for keyword and density analysis.
func (s *Script) AllText() string {
	return strings.Join([]string{
		s.SuccessFactorsAnalysis,
		s.ImprovementPoints,
		s.PracticalImprovements,
		s.ExpectedEffects,
		s.CounselingScript.Opening,
		s.CounselingScript.NeedsAssessment,
		s.CounselingScript.SolutionProposal,
		s.CounselingScript.Closing,
	}, " ")
}

var headerPattern = regexp.MustCompile(`^#{2,3}\s+(.+)`)

// ParseResponse structures the model's markdown output. Unrecognized or
// absent sections come back empty; the raw text is always preserved.
func ParseResponse(raw string) *Script {
	sections := extractSections(raw)

	script := &Script{
		SuccessFactorsAnalysis: sections["成功パターン別共通要因分析"],
		ImprovementPoints:      sections["失敗→成功への具体的改善ポイント"],
		CounselingScript: CounselingScript{
			Opening:          extractPhase(sections, "オープニング"),
			NeedsAssessment:  extractPhase(sections, "ニーズ確認"),
			SolutionProposal: extractPhase(sections, "ソリューション提案"),
			Closing:          extractPhase(sections, "クロージング"),
		},
		PracticalImprovements: sections["実用的な改善ポイント"],
		ExpectedEffects:       sections["期待される効果"],
		DetailedAnalysis:      sections["詳細分析レポート"],
		RawContent:            raw,
		ParsedAt:              time.Now().UTC(),
	}
	return script
}

// extractSections splits markdown on ## / ### headers. Numbering
// prefixes like "1. " are stripped so section names match regardless of
// how the model numbers them.
func extractSections(text string) map[string]string {
	sections := make(map[string]string)
	var current string
	var content []string

	flush := func() {
		if current != "" && len(content) > 0 {
			sections[current] = strings.TrimSpace(strings.Join(content, "\n"))
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := headerPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = normalizeHeader(m[1])
			content = content[:0]
			continue
		}
		if current != "" {
			content = append(content, line)
		}
	}
	flush()
	return sections
}

var sectionNumberPrefix = regexp.MustCompile(`^\d+[\.．]\s*`)

func normalizeHeader(h string) string {
	return sectionNumberPrefix.ReplaceAllString(strings.TrimSpace(h), "")
}

// phaseVariations maps a phase to the header forms models produce.
var phaseVariations = map[string][]string{
	"オープニング":     {"オープニング", "A. オープニング"},
	"ニーズ確認":      {"ニーズ確認", "B. ニーズ確認"},
	"ソリューション提案":  {"ソリューション提案", "C. ソリューション提案"},
	"クロージング":     {"クロージング", "D. クロージング"},
}

func extractPhase(sections map[string]string, phase string) string {
	scriptSection := sections["改善カウンセリングスクリプト"]
	if scriptSection == "" {
		return ""
	}
	for _, variation := range phaseVariations[phase] {
		if content := extractSubsection(scriptSection, variation); content != "" {
			return content
		}
	}
	return ""
}

// extractSubsection pulls the lines between a #### (or bold) marker
// naming the subsection and the next such marker.
func extractSubsection(text, name string) string {
	var content []string
	inTarget := false

	for _, line := range strings.Split(text, "\n") {
		isMarker := strings.Contains(line, "####") ||
			(strings.HasPrefix(line, "**") && strings.HasSuffix(strings.TrimSpace(line), "**"))

		if strings.Contains(line, name) && (strings.Contains(line, "####") || strings.Contains(line, "**")) {
			inTarget = true
			continue
		}
		if inTarget && isMarker {
			break
		}
		if inTarget {
			content = append(content, line)
		}
	}
	return strings.TrimSpace(strings.Join(content, "\n"))
}
