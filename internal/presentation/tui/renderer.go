package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders markdown using glamour.
// Output to a terminal follows its light/dark background; anything else
// gets the plain "notty" style.
func NewRenderer(tty bool) func(string) (string, error) {
	style := glamour.WithStandardStyle("notty")
	if tty {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
