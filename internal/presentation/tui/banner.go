package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Testflow ASCII banner.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{" _            _    __ _               ", "#818cf8"},
		{"| |_ ___  ___| |_ / _| | _____      __", "#a78bfa"},
		{"| __/ _ \\/ __| __| |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{"| ||  __/\\__ \\ |_|  _| | (_) \\ V  V / ", "#e879f9"},
		{" \\__\\___||___/\\__|_| |_|\\___/ \\_/\\_/  ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
