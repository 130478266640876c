package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Printer writes semantic lines, styled when a provider is available.
// It is safe for use by the shell loop and the wallet watcher at once.
type Printer struct {
	styleProvider StyleProvider
	writer        io.Writer
	plain         bool

	mu sync.Mutex
}

// NewPrinter creates a Printer writing plain lines to stdout unless options say otherwise.
func NewPrinter(options ...Option) *Printer {
	p := &Printer{writer: os.Stdout}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Print outputs text without any semantic styling.
func (p *Printer) Print(text string) {
	p.output(SemanticPlain, text, false)
}

// Printf outputs formatted text without any semantic styling.
func (p *Printer) Printf(format string, args ...interface{}) {
	p.output(SemanticPlain, fmt.Sprintf(format, args...), false)
}

// Println outputs text with a newline without any semantic styling.
func (p *Printer) Println(text string) {
	p.output(SemanticPlain, text, true)
}

// Info outputs informational text.
func (p *Printer) Info(text string) {
	p.output(SemanticInfo, text, true)
}

// Success outputs success text.
func (p *Printer) Success(text string) {
	p.output(SemanticSuccess, text, true)
}

// Warning outputs warning text.
func (p *Printer) Warning(text string) {
	p.output(SemanticWarning, text, true)
}

// Error outputs error text.
func (p *Printer) Error(text string) {
	p.output(SemanticError, text, true)
}

// User echoes a message typed by the user.
func (p *Printer) User(text string) {
	p.output(SemanticUser, text, true)
}

// Assistant prints a model reply.
func (p *Printer) Assistant(text string) {
	p.output(SemanticAssistant, text, true)
}

// Pending prints a placeholder for a reply in flight.
func (p *Printer) Pending(text string) {
	p.output(SemanticPending, text, true)
}

// Muted prints secondary detail.
func (p *Printer) Muted(text string) {
	p.output(SemanticMuted, text, true)
}

// Highlight prints emphasised text.
func (p *Printer) Highlight(text string) {
	p.output(SemanticHighlight, text, true)
}

// Field prints "label: value" with the value highlighted.
func (p *Printer) Field(label, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(p.style(SemanticMuted).Render(label+":") + " " + p.style(SemanticHighlight).Render(value) + "\n")
}

func (p *Printer) output(semantic SemanticType, text string, addNewline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.style(semantic).Render(text)
	if addNewline && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	p.write(out)
}

func (p *Printer) write(text string) {
	_, _ = fmt.Fprint(p.writer, text)
}

func (p *Printer) style(semantic SemanticType) TextStyle {
	if p.IsStylable() {
		return p.styleProvider.GetStyle(semantic)
	}
	return NewPlainStyleProvider().GetStyle(semantic)
}

// IsStylable reports whether lines are coloured.
func (p *Printer) IsStylable() bool {
	return !p.plain && p.styleProvider != nil && p.styleProvider.IsAvailable()
}

// ThemeType is the glamour style matching the printer's palette.
func (p *Printer) ThemeType() string {
	if !p.IsStylable() {
		return "notty"
	}
	return p.styleProvider.GetThemeType()
}
