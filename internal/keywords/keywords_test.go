package keywords

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileOverridesOnlyGivenLists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	raw := "important:\n  - 査定\n  - 契約\ndefault_hint: 別のヒント\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Important) != 2 || cfg.Important[0] != "査定" {
		t.Fatalf("important = %v", cfg.Important)
	}
	if cfg.DefaultHint != "別のヒント" {
		t.Fatalf("default hint = %q", cfg.DefaultHint)
	}
	// Lists absent from the file keep the defaults.
	if len(cfg.Positive) == 0 || len(cfg.StopWords) == 0 {
		t.Fatal("defaults dropped for untouched lists")
	}
	if !cfg.IsStopWord("です") {
		t.Fatal("stop word set not rebuilt after merge")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExtractKeywordsDropsStopWords(t *testing.T) {
	cfg := Default()
	got := extractedSet(cfg, "効果、料金。です。")
	if _, ok := got["です"]; ok {
		t.Fatal("stop word survived extraction")
	}
	if _, ok := got["効果"]; !ok {
		t.Fatalf("keywords = %v", got)
	}
}

// extractedSet collects ExtractKeywords output into a set.
func extractedSet(c *Config, text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range c.ExtractKeywords(text) {
		out[w] = struct{}{}
	}
	return out
}
