package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownService_Render(t *testing.T) {
	m := NewMarkdownService()

	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{"paragraph", "hello", []string{"<p>hello</p>"}},
		{"emphasis", "**bold** and *it*", []string{"<strong>bold</strong>", "<em>it</em>"}},
		{"code block", "```go\nfmt.Println(1)\n```", []string{"<pre><code", "fmt.Println(1)"}},
		{"gfm table", "| a | b |\n|---|---|\n| 1 | 2 |", []string{"<table>", "<td>1</td>"}},
		{"gfm strikethrough", "~~gone~~", []string{"<del>gone</del>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := m.Render(tt.input)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestMarkdownService_RenderSanitizes(t *testing.T) {
	m := NewMarkdownService()

	out, err := m.Render("hi <script>alert(1)</script> <a href=\"javascript:alert(1)\">x</a>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")
}

func TestMarkdownService_PlainText(t *testing.T) {
	m := NewMarkdownService()

	out, err := m.Render("**Tom & Jerry** say <hi>")
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry say", m.PlainText(out))
	assert.Equal(t, "", m.PlainText(""))
}

func TestMarkdownService_Name(t *testing.T) {
	assert.Equal(t, "markdown", NewMarkdownService().Name())
}
