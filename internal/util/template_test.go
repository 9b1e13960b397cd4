package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hello {{.Name}}!", map[string]any{"Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", out)
}

func TestRenderTemplate_PlainTextFastPath(t *testing.T) {
	out, err := RenderTemplate("no markers here", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)
}

func TestRenderTemplate_Funcs(t *testing.T) {
	out, err := RenderTemplate(
		`{{.Missing | default "n/a"}} {{upper .Word}} {{join ", " .Items}}`,
		map[string]any{"Word": "go", "Items": []any{"a", "b"}},
	)
	require.NoError(t, err)
	assert.Equal(t, "n/a GO a, b", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{.Unclosed", nil)
	assert.Error(t, err)
}
