package services

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"gaiachat/internal/logger"
)

// MarkdownService turns model replies (GitHub-flavoured markdown) into sanitized HTML
// for storage and display, and strips HTML back to plain text for terminals.
type MarkdownService struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewMarkdownService creates a ready-to-use MarkdownService.
func NewMarkdownService() *MarkdownService {
	return &MarkdownService{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// Raw HTML from the model is passed through and then sanitized below.
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

// Name returns the service name "markdown" for registration.
func (m *MarkdownService) Name() string {
	return "markdown"
}

// Initialize is a no-op; the renderer is built by the constructor.
func (m *MarkdownService) Initialize(_ context.Context) error {
	logger.Debug("MarkdownService initialized successfully")
	return nil
}

// Render converts markdown to sanitized HTML.
func (m *MarkdownService) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return m.policy.Sanitize(buf.String()), nil
}

// PlainText strips every tag from rendered HTML and unescapes entities.
func (m *MarkdownService) PlainText(rendered string) string {
	text := html.UnescapeString(m.strict.Sanitize(rendered))
	return strings.TrimSpace(text)
}
