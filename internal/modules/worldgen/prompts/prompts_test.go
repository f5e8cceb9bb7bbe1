package prompts

import (
	"strings"
	"testing"
)

func TestCatalogLoads(t *testing.T) {
	for _, name := range []string{PromptAnalyze, PromptDesign, PromptContent, PromptComponent, PromptImage} {
		if _, err := load(); err != nil {
			t.Fatalf("load: %v", err)
		}
		if _, ok := registry[name]; !ok {
			t.Fatalf("prompt %q missing from catalog", name)
		}
	}
}

func TestRenderAnalyze(t *testing.T) {
	sys, user, err := Render(PromptAnalyze, Input{Title: "Sterne", SourceContent: "Die Sonne ist ein Stern."})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(sys, "JSON") {
		t.Fatalf("system prompt must ask for JSON: %q", sys)
	}
	if !strings.Contains(user, "Die Sonne ist ein Stern.") || !strings.Contains(user, "Sterne") {
		t.Fatalf("user prompt missing input: %q", user)
	}
}

func TestRenderRequiresFields(t *testing.T) {
	if _, _, err := Render(PromptAnalyze, Input{Title: "Sterne", SourceContent: "  "}); err == nil {
		t.Fatalf("expected required field error")
	}
	if _, _, err := Render("nope", Input{}); err == nil {
		t.Fatalf("expected unknown prompt error")
	}
}

func TestParseCatalogRejectsUnknownField(t *testing.T) {
	bad := []byte("prompts:\n  - name: x\n    system: s\n    user: u\n    required: [Nope]\n")
	if _, err := parseCatalog(bad); err == nil {
		t.Fatalf("expected unknown field error")
	}
	dup := []byte("prompts:\n  - name: x\n    user: a\n  - name: x\n    user: b\n")
	if _, err := parseCatalog(dup); err == nil {
		t.Fatalf("expected duplicate error")
	}
}
