package report

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	badgeAccepted = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	badgeRejected = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9"))
)

// Renderer writes markdown to a terminal with glamour, or as plain text
// when the output is not a terminal.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer creates a renderer for w. Styling is enabled only when w is a
// terminal and plain is false.
func NewRenderer(w io.Writer, plain bool) *Renderer {
	width, styled := terminalWidth(w)
	if plain || !styled {
		return &Renderer{}
	}
	if width > 120 {
		width = 120
	}

	customStyle := styles.DraculaStyleConfig
	customStyle.Code = ansi.StyleBlock{
		StylePrimitive: ansi.StylePrimitive{
			Color:           stringPtr("229"),
			BackgroundColor: stringPtr(""),
		},
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStyles(customStyle),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{md: md}
}

func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}
	return width, true
}

// Styled reports whether output is rendered with glamour.
func (r *Renderer) Styled() bool {
	return r.md != nil
}

// Render converts markdown for display.
func (r *Renderer) Render(markdown string) string {
	if r.md == nil {
		return markdown
	}
	out, err := r.md.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// Badge returns the outcome label, colored when the renderer is styled.
func (r *Renderer) Badge(passed bool) string {
	label := "REJECTED"
	style := badgeRejected
	if passed {
		label = "ACCEPTED"
		style = badgeAccepted
	}
	if r.md == nil {
		return "[" + label + "]"
	}
	return style.Render(label)
}

func stringPtr(s string) *string {
	return &s
}
