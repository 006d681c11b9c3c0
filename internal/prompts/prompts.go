// Package prompts holds the generation prompt templates.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/obiente/interviewd/internal/store"
)

//go:embed default.yaml
var defaultYAML []byte

// Set is a complete set of prompt templates.
type Set struct {
	System         string `yaml:"system"`
	KeynotesPrefix string `yaml:"keynotes_prefix"`
	Keynotes       string `yaml:"keynotes"`
	Questions      string `yaml:"questions"`
	Answers        string `yaml:"answers"`
	Summary        string `yaml:"summary"`
}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(defaultYAML, &s); err != nil {
		return nil, fmt.Errorf("parsing default prompts: %w", err)
	}
	return &s, nil
}

// Load reads a prompt file and fills any missing entry from the defaults.
// An empty path returns the defaults.
func Load(path string) (*Set, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts file: %w", err)
	}
	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing prompts file: %w", err)
	}
	merge(&s.System, override.System)
	merge(&s.KeynotesPrefix, override.KeynotesPrefix)
	merge(&s.Keynotes, override.Keynotes)
	merge(&s.Questions, override.Questions)
	merge(&s.Answers, override.Answers)
	merge(&s.Summary, override.Summary)
	return s, nil
}

func merge(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// Render executes a template against the session record.
func Render(tmpl string, sess store.Session) (string, error) {
	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing prompt template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, sess); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
