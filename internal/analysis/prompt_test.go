package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPromptsCoverEveryOperation(t *testing.T) {
	set, err := DefaultPrompts()
	require.NoError(t, err)
	for _, op := range Operations {
		p, ok := set[string(op)]
		require.True(t, ok, op)
		assert.NotEmpty(t, p.SystemTemplate)
		assert.NotEmpty(t, p.UserTemplate)
	}
}

func TestLoadPromptValidates(t *testing.T) {
	_, err := LoadPrompt("bad.yaml", []byte("system_template: hi\nuser_template: there\n"))
	assert.ErrorContains(t, err, "missing slug")

	_, err = LoadPrompt("bad.yaml", []byte("slug: x\nuser_template: there\n"))
	assert.ErrorContains(t, err, "missing system_template")

	_, err = LoadPrompt("bad.yaml", []byte("slug: [unterminated"))
	assert.ErrorContains(t, err, "parse prompt")
}

func TestRender(t *testing.T) {
	template := "Hello {{name}}.\n{{#if extra}}Extra: {{extra}}\n{{/if}}\n\nBye."

	assert.Equal(t, "Hello Ada.\n\nBye.", render(template, map[string]string{"name": "Ada"}))
	assert.Equal(t, "Hello Ada.\nExtra: more\n\nBye.", render(template, map[string]string{"name": "Ada", "extra": "more"}))
}

func TestRenderDoesNotExpandValues(t *testing.T) {
	got := render("A={{a}} B={{b}}", map[string]string{"a": "{{b}}", "b": "x"})
	assert.Equal(t, "A={{b}} B=x", got)
}

func TestRenderKeepsBlankLinesInValues(t *testing.T) {
	got := render("CV:\n{{cv}}", map[string]string{"cv": "one\n\n\n\ntwo"})
	assert.Equal(t, "CV:\none\n\n\n\ntwo", got)
}
