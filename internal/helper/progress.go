package helper

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

type ProgressReporter interface {
	Start(total int)
	Add(n int)
	Finish()
}

type noopProgress struct{}

func (noopProgress) Start(int) {}
func (noopProgress) Add(int)   {}
func (noopProgress) Finish()   {}

type barProgress struct {
	w    io.Writer
	desc string
	bar  *progressbar.ProgressBar
}

// NewProgress returns a progress bar on w when w is a terminal, otherwise a no-op
func NewProgress(w io.Writer, desc string) ProgressReporter {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return noopProgress{}
	}
	return &barProgress{w: w, desc: desc}
}

func (p *barProgress) Start(total int) {
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription("  "+p.desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *barProgress) Add(n int) {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(n)
}

func (p *barProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
