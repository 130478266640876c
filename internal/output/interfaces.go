// Package output renders gaiachat's terminal client output: semantic lines for
// chat roles and notices, markdown help pages and the wallet status line.
// Styling is injected through a StyleProvider so output degrades to plain text.
package output

// StyleProvider supplies a style per semantic type.
type StyleProvider interface {
	// GetStyle returns the style for a semantic type.
	GetStyle(semantic SemanticType) TextStyle

	// IsAvailable reports whether styled output can be produced.
	IsAvailable() bool

	// GetThemeType returns "dark" or "light" for markdown rendering.
	GetThemeType() string
}

// TextStyle renders text. lipgloss.Style satisfies it.
type TextStyle interface {
	Render(strs ...string) string
}

// SemanticType is the meaning of a line, used to pick its style.
type SemanticType string

const (
	// SemanticPlain is text without semantic meaning.
	SemanticPlain SemanticType = "plain"
	// SemanticInfo is an informational notice.
	SemanticInfo SemanticType = "info"
	// SemanticSuccess reports a completed action.
	SemanticSuccess SemanticType = "success"
	// SemanticWarning reports a recoverable problem.
	SemanticWarning SemanticType = "warning"
	// SemanticError reports a failure.
	SemanticError SemanticType = "error"

	// SemanticUser is a message typed by the user.
	SemanticUser SemanticType = "user"
	// SemanticAssistant is a reply from the model.
	SemanticAssistant SemanticType = "assistant"
	// SemanticPending is a placeholder for a reply in flight.
	SemanticPending SemanticType = "pending"

	// SemanticMuted is secondary detail.
	SemanticMuted SemanticType = "muted"
	// SemanticHighlight is emphasised text such as a CID or URL.
	SemanticHighlight SemanticType = "highlight"
)
