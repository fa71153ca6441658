package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/vbp1/tablerepl/internal/replicate"
)

// printer writes user-facing diagnostics. Colours are used only when the
// destination is a terminal.
type printer struct {
	w    io.Writer
	bad  *color.Color
	warn *color.Color
	good *color.Color
	hint *color.Color
}

func newPrinter(w io.Writer) *printer {
	p := &printer{
		w:    w,
		bad:  color.New(color.FgHiRed, color.Bold),
		warn: color.New(color.FgHiYellow),
		good: color.New(color.FgGreen),
		hint: color.New(color.FgCyan),
	}
	colored := isTerminal(w) && os.Getenv("NO_COLOR") == ""
	for _, c := range []*color.Color{p.bad, p.warn, p.good, p.hint} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// failure prints err classified by its kind, followed by the remediation hint.
func (p *printer) failure(err error) {
	kind := replicate.KindOf(err)
	label := "error"
	if kind != 0 {
		label = kind.String()
	}
	p.bad.Fprintf(p.w, "%s: ", label)
	fmt.Fprintln(p.w, err)
	if h := replicate.HintOf(err); h != "" {
		p.warn.Fprintln(p.w, "To resolve, run:")
		p.hint.Fprintln(p.w, h)
	}
}

func (p *printer) warning(msg string, err error) {
	p.warn.Fprintf(p.w, "%s: ", msg)
	fmt.Fprintln(p.w, err)
}

func (p *printer) success(msg string) {
	p.good.Fprintln(p.w, msg)
}

// step prints one cleanup step outcome and, for a failure, its hint.
func (p *printer) step(s replicate.StageResult) {
	fmt.Fprintf(p.w, "%-20s ", s.Stage)
	if s.Err == nil {
		p.good.Fprintln(p.w, s.Outcome)
		return
	}
	p.bad.Fprint(p.w, s.Outcome)
	fmt.Fprintf(p.w, ": %v\n", s.Err)
	if h := replicate.HintOf(s.Err); h != "" {
		p.hint.Fprintln(p.w, h)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
