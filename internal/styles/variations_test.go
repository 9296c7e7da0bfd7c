package styles

import (
	"fmt"
	"strings"
	"testing"

	"shotpack/internal/domain"
)

func TestCatalogCoversAllStyles(t *testing.T) {
	for _, style := range domain.Styles {
		info, ok := Lookup(style)
		if !ok {
			t.Fatalf("Lookup(%s) missing", style)
		}
		if info.ID != style || info.Prompt == "" || info.Name == "" {
			t.Fatalf("Lookup(%s) = %+v, incomplete", style, info)
		}
	}
	if _, ok := Lookup("neon"); ok {
		t.Fatal("Lookup accepted an unknown style")
	}
}

func TestBuildPromptsDeterministicAndDistinct(t *testing.T) {
	info, _ := Lookup(domain.StyleMarble)

	first := BuildPrompts(info.Prompt)
	second := BuildPrompts(info.Prompt)
	if first != second {
		t.Fatal("BuildPrompts is not deterministic")
	}

	seen := make(map[string]int, len(first))
	for i, prompt := range first {
		if prev, dup := seen[prompt]; dup {
			t.Fatalf("prompts %d and %d are identical", prev, i)
		}
		seen[prompt] = i
	}
}

func TestBuildPromptsCarryGuardrails(t *testing.T) {
	info, _ := Lookup(domain.StyleLoft)
	prompts := BuildPrompts(info.Prompt)

	for i, prompt := range prompts {
		if !strings.HasPrefix(prompt, strings.TrimSpace(info.Prompt)) {
			t.Fatalf("prompt %d does not start with the base style prompt", i)
		}
		label := fmt.Sprintf("VARIATION %d OF %d", i+1, domain.PackSize)
		if !strings.Contains(prompt, label) {
			t.Fatalf("prompt %d missing %q", i, label)
		}
		for _, clause := range []string{identityClause, exclusionClause, realismClause, shadowClause, strictBanClause} {
			if !strings.Contains(prompt, clause) {
				t.Fatalf("prompt %d missing guardrail clause %q", i, clause[:20])
			}
		}
	}
}
