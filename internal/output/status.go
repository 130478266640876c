package output

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// StatusSeparator joins status line segments.
const StatusSeparator = " │ "

// StatusLine joins the non-empty segments and cuts the result to width
// terminal cells, keeping ANSI styling intact. A width of zero or less disables
// truncation.
func StatusLine(width int, segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(ansi.Strip(s)) != "" {
			parts = append(parts, s)
		}
	}
	line := strings.Join(parts, StatusSeparator)
	if width <= 0 || ansi.StringWidth(line) <= width {
		return line
	}
	return ansi.Truncate(line, width, "…")
}
