package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ChatTheme is the lipgloss palette of the terminal client.
type ChatTheme struct {
	renderer *lipgloss.Renderer
	styles   map[SemanticType]lipgloss.Style
}

// NewChatTheme builds the palette for the terminal behind w.
func NewChatTheme(w io.Writer) *ChatTheme {
	r := lipgloss.NewRenderer(w)
	return newChatTheme(r)
}

// NewChatThemeWithProfile builds the palette for a fixed colour profile.
func NewChatThemeWithProfile(w io.Writer, profile termenv.Profile) *ChatTheme {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)
	return newChatTheme(r)
}

func newChatTheme(r *lipgloss.Renderer) *ChatTheme {
	return &ChatTheme{
		renderer: r,
		styles: map[SemanticType]lipgloss.Style{
			SemanticPlain:     r.NewStyle(),
			SemanticInfo:      r.NewStyle().Foreground(lipgloss.Color("39")),
			SemanticSuccess:   r.NewStyle().Foreground(lipgloss.Color("46")),
			SemanticWarning:   r.NewStyle().Foreground(lipgloss.Color("214")),
			SemanticError:     r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
			SemanticUser:      r.NewStyle().Foreground(lipgloss.Color("33")).Bold(true).SetString("you>"),
			SemanticAssistant: r.NewStyle().Foreground(lipgloss.Color("99")).SetString("gaia>"),
			SemanticPending:   r.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).SetString("gaia>"),
			SemanticMuted:     r.NewStyle().Foreground(lipgloss.Color("240")),
			SemanticHighlight: r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		},
	}
}

// GetStyle implements StyleProvider.
func (t *ChatTheme) GetStyle(semantic SemanticType) TextStyle {
	if s, ok := t.styles[semantic]; ok {
		return s
	}
	return t.styles[SemanticPlain]
}

// IsAvailable reports whether the terminal renders colour.
func (t *ChatTheme) IsAvailable() bool {
	return t.renderer.ColorProfile() != termenv.Ascii
}

// GetThemeType follows the terminal background.
func (t *ChatTheme) GetThemeType() string {
	if t.renderer.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
