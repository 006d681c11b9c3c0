package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obiente/interviewd/internal/store"
)

func TestDefaultComplete(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for name, v := range map[string]string{
		"system": s.System, "keynotes_prefix": s.KeynotesPrefix, "keynotes": s.Keynotes,
		"questions": s.Questions, "answers": s.Answers, "summary": s.Summary,
	} {
		if strings.TrimSpace(v) == "" {
			t.Errorf("default prompt %q is empty", name)
		}
	}
	if s.KeynotesPrefix != "key points discussed:" {
		t.Errorf("KeynotesPrefix = %q", s.KeynotesPrefix)
	}
}

func TestRenderSystem(t *testing.T) {
	s, _ := Default()
	got, err := Render(s.System, store.Session{Name: "Ada", Title: "CTO", CompanyName: "Acme", JobDescription: "Platform lead"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"Acme", "Ada, CTO", "Role: Platform lead"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "About the client") {
		t.Errorf("empty company description should be omitted:\n%s", got)
	}
}

func TestRenderBadTemplate(t *testing.T) {
	if _, err := Render("{{.Nope", store.Session{}); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Render("{{.Nope}}", store.Session{}); err == nil {
		t.Error("expected execution error for unknown field")
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("keynotes: \"Just list notes.\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Keynotes != "Just list notes." {
		t.Errorf("Keynotes = %q", s.Keynotes)
	}
	def, _ := Default()
	if s.Summary != def.Summary {
		t.Error("missing keys should keep defaults")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
