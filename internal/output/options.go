package output

import "io"

// Option configures a Printer.
type Option func(*Printer)

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(p *Printer) {
		if w != nil {
			p.writer = w
		}
	}
}

// WithStyles colours lines through provider. A nil provider keeps plain output.
func WithStyles(provider StyleProvider) Option {
	return func(p *Printer) {
		if provider != nil {
			p.styleProvider = provider
		}
	}
}

// ForTerminal writes to w with a ChatTheme matched to w's colour support.
// Pipes and dumb terminals get plain prefixes.
func ForTerminal(w io.Writer) Option {
	return func(p *Printer) {
		WithWriter(w)(p)
		WithStyles(NewChatTheme(w))(p)
	}
}

// PlainText turns colours off; role prefixes and notice markers stay.
func PlainText() Option {
	return func(p *Printer) {
		p.plain = true
	}
}
