package helper

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	AppName    = "CodeSage"
	AppVersion = "v1.0"
)

// Printer writes the progress report to out and diagnostics to errOut
type Printer struct {
	out    io.Writer
	errOut io.Writer

	banner  lipgloss.Style
	title   lipgloss.Style
	divider string
}

func NewPrinter(out, errOut io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:    out,
		errOut: errOut,
		banner: r.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Padding(0, 8).
			Bold(true),
		title:   r.NewStyle().Bold(true),
		divider: strings.Repeat("─", 40),
	}
}

func (p *Printer) Out() io.Writer {
	return p.out
}

func (p *Printer) Banner() {
	fmt.Fprintf(p.out, "\n%s\n", p.banner.Render(AppName+" "+AppVersion))
}

func (p *Printer) Section(title string) {
	fmt.Fprintf(p.out, "\n%s\n  %s\n%s\n", p.divider, p.title.Render(title), p.divider)
}

func (p *Printer) Status(format string, args ...interface{}) {
	fmt.Fprintf(p.out, "  → %s\n", fmt.Sprintf(format, args...))
}

func (p *Printer) Result(text string) {
	fmt.Fprintf(p.out, "\n%s\n", text)
}

// Error writes the single diagnostic line of a failed run
func (p *Printer) Error(err error) {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	fmt.Fprintf(p.errOut, "[error] %s\n", msg)
}
