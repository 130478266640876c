package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the markdown wrap width when the terminal width is unknown.
const DefaultWordWrap = 80

// RenderMarkdown renders a help page for the terminal. styleType is a glamour
// standard style ("dark", "light", "notty"); unknown styles fall back to
// auto-detection and then to the source text.
func RenderMarkdown(source, styleType string, width int) string {
	if width <= 0 {
		width = DefaultWordWrap
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styleType),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		renderer, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
	}
	if err != nil {
		return source
	}

	rendered, err := renderer.Render(source)
	if err != nil {
		return source
	}
	return strings.TrimRight(rendered, "\n") + "\n"
}
