package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"   __           _  __ _               ", "#34d399"},
	{"  / _| ___  ___| |/ _| | _____      __", "#2dd4bf"},
	{" | |_ / _ \\/ _ \\ | |_| |/ _ \\ \\ /\\ / /", "#22d3ee"},
	{" |  _|  __/  __/ |  _| | (_) \\ V  V / ", "#38bdf8"},
	{" |_|  \\___|\\___|_|_| |_|\\___/ \\_/\\_/  ", "#60a5fa"},
}

// PrintBanner writes the feelflow banner and version to w.
// Colors follow the terminal profile, so pipes get plain text.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String(" v"+version).Faint())
	fmt.Fprintln(w)
}
