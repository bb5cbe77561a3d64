package template

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplatesYAML is the embedded template set. The init command
// writes it out as a starting point for user customization.
//
//go:embed defaults.yaml
var DefaultTemplatesYAML []byte

// Template is a named extraction task: prompts, expected output fields and
// dispatch hints. Templates are immutable at run time.
type Template struct {
	Name           string   `yaml:"name"`
	Category       string   `yaml:"category"`
	SystemPrompt   string   `yaml:"system_prompt"`
	UserPrompt     string   `yaml:"user_prompt"`
	RequiredFields []string `yaml:"required_fields"`
	// Provider pins a specific LLM provider; empty uses the default.
	Provider string `yaml:"provider"`
	CostTier string `yaml:"cost_tier"`
}

// Render substitutes named {{placeholder}} values into the user prompt and
// returns the system and user prompts.
func (t Template) Render(values map[string]string) (system, user string) {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return t.SystemPrompt, strings.NewReplacer(pairs...).Replace(t.UserPrompt)
}

// Validate checks a parsed LLM response against the template's required
// fields and returns the missing ones.
func (t Template) Validate(parsed map[string]any) []string {
	var missing []string
	for _, field := range t.RequiredFields {
		v, ok := parsed[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Library is the set of loaded templates, in definition order.
type Library struct {
	templates map[string]Template
	order     []string
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadLibrary parses the embedded defaults and, when path names an existing
// file, overlays the user's template definitions (same-name templates
// replace the defaults, new ones are appended).
func LoadLibrary(path string) (*Library, error) {
	lib := &Library{templates: make(map[string]Template)}
	if err := lib.merge(DefaultTemplatesYAML); err != nil {
		return nil, fmt.Errorf("parsing built-in templates: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := lib.merge(data); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	return lib, nil
}

func (l *Library) merge(data []byte) error {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for _, t := range f.Templates {
		if t.Name == "" {
			return fmt.Errorf("template with empty name")
		}
		if _, exists := l.templates[t.Name]; !exists {
			l.order = append(l.order, t.Name)
		}
		l.templates[t.Name] = t
	}
	return nil
}

// Get returns a template by name.
func (l *Library) Get(name string) (Template, bool) {
	t, ok := l.templates[name]
	return t, ok
}

// Names returns all template names in definition order.
func (l *Library) Names() []string {
	return append([]string(nil), l.order...)
}
