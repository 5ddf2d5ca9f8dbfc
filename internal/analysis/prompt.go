package analysis

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

// Prompt is a template pair loaded from YAML.
type Prompt struct {
	Slug           string   `yaml:"slug"`
	Description    string   `yaml:"description,omitempty"`
	Variables      []string `yaml:"variables,omitempty"`
	SystemTemplate string   `yaml:"system_template"`
	UserTemplate   string   `yaml:"user_template"`
}

var languageInstructions = map[Language]string{
	English: "Write every free-text field in English.",
	French:  "Rédige tous les champs de texte libre en français.",
}

var (
	promptsOnce sync.Once
	prompts     map[string]*Prompt
	promptsErr  error
)

// LoadPrompt parses one prompt definition.
func LoadPrompt(source string, data []byte) (*Prompt, error) {
	var p Prompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}
	p.Slug = strings.TrimSpace(p.Slug)
	if p.Slug == "" {
		return nil, fmt.Errorf("prompt %s missing slug", source)
	}
	if strings.TrimSpace(p.SystemTemplate) == "" {
		return nil, fmt.Errorf("prompt %s missing system_template", source)
	}
	if strings.TrimSpace(p.UserTemplate) == "" {
		return nil, fmt.Errorf("prompt %s missing user_template", source)
	}
	return &p, nil
}

// DefaultPrompts returns the embedded prompt set keyed by slug.
func DefaultPrompts() (map[string]*Prompt, error) {
	promptsOnce.Do(func() {
		prompts, promptsErr = loadEmbedded()
	})
	return prompts, promptsErr
}

func loadEmbedded() (map[string]*Prompt, error) {
	entries, err := promptFS.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	result := make(map[string]*Prompt, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := promptFS.ReadFile("prompts/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded prompt %s: %w", entry.Name(), err)
		}
		p, err := LoadPrompt(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		if _, dup := result[p.Slug]; dup {
			return nil, fmt.Errorf("duplicate prompt slug: %s", p.Slug)
		}
		result[p.Slug] = p
	}
	return result, nil
}

func promptFor(op Operation) (*Prompt, error) {
	set, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	p, ok := set[string(op)]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", op)
	}
	return p, nil
}

// Render fills both templates with vars.
func (p *Prompt) Render(vars map[string]string) (system, user string) {
	return render(p.SystemTemplate, vars), render(p.UserTemplate, vars)
}

// render resolves {{#if name}}...{{/if}} blocks, then substitutes {{name}}
// in a single pass so values containing braces are never re-expanded.
func render(template string, vars map[string]string) string {
	text := collapseBlankLines(applyConditionals(template, vars))

	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, "{{"+key+"}}", vars[key])
	}
	text = strings.NewReplacer(pairs...).Replace(text)

	return strings.TrimSpace(text)
}

func applyConditionals(template string, vars map[string]string) string {
	const open, closeTag = "{{#if", "{{/if}}"
	result := template
	for {
		start := strings.Index(result, open)
		if start < 0 {
			return result
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd < 0 {
			return result
		}
		tagEnd += start
		end := strings.Index(result[tagEnd:], closeTag)
		if end < 0 {
			return result
		}
		end += tagEnd

		name := strings.TrimSpace(result[start+len(open) : tagEnd])
		body := ""
		if strings.TrimSpace(vars[name]) != "" {
			body = result[tagEnd+2 : end]
		}
		result = result[:start] + body + result[end+len(closeTag):]
	}
}

// collapseBlankLines squeezes runs of blank lines left by empty blocks.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		isBlank := strings.TrimSpace(line) == ""
		if isBlank && blank {
			continue
		}
		blank = isBlank
		if isBlank {
			line = ""
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
