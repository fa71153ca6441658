// Package progress renders pipeline stage progress.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Display modes.
const (
	ModeAuto  = "auto"
	ModeBar   = "bar"
	ModePlain = "plain"
	ModeNone  = "none"
)

// Tracker follows a fixed number of sequential stages.
type Tracker interface {
	// Begin announces the stage that is about to run.
	Begin(stage string)
	// Advance marks the current stage as completed.
	Advance()
	// Finish releases the display; ok=false aborts a bar mid-way.
	Finish(ok bool)
}

// ResolveMode maps "auto" to bar on a terminal and none otherwise.
func ResolveMode(mode string, isTTY bool) (string, error) {
	switch mode {
	case ModeBar, ModePlain, ModeNone:
		return mode, nil
	case ModeAuto, "":
		if isTTY {
			return ModeBar, nil
		}
		return ModeNone, nil
	}
	return "", fmt.Errorf("progress mode must be one of auto|bar|plain|none, got %q", mode)
}

// New returns a tracker for a resolved mode writing to w.
func New(mode string, total int, w io.Writer) Tracker {
	switch mode {
	case ModeBar:
		return newBar(total, w)
	case ModePlain:
		return &plain{w: w, total: total}
	}
	return Nop{}
}

// Nop discards progress.
type Nop struct{}

func (Nop) Begin(string) {}
func (Nop) Advance()     {}
func (Nop) Finish(bool)  {}

type plain struct {
	w     io.Writer
	total int
	n     int
	start time.Time
}

func (p *plain) Begin(stage string) {
	if p.start.IsZero() {
		p.start = time.Now()
	}
	fmt.Fprintf(p.w, "[%d/%d] %s\n", p.n+1, p.total, stage)
}

func (p *plain) Advance() { p.n++ }

func (p *plain) Finish(ok bool) {
	state := "done"
	if !ok {
		state = "aborted"
	}
	fmt.Fprintf(p.w, "%s after %d/%d stages (%s)\n", state, p.n, p.total, time.Since(p.start).Round(time.Millisecond))
}

type bar struct {
	p   *mpb.Progress
	bar *mpb.Bar

	mu    sync.Mutex
	stage string
}

func newBar(total int, w io.Writer) *bar {
	b := &bar{}
	b.p = mpb.New(mpb.WithOutput(w), mpb.WithWidth(30), mpb.WithRefreshRate(100*time.Millisecond))
	b.bar = b.p.New(int64(total), mpb.BarStyle().Lbound("|").Rbound("|"),
		mpb.PrependDecorators(decor.Any(func(decor.Statistics) string { return b.current() }, decor.WC{W: 10, C: decor.DSyncWidth})),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")))
	return b
}

func (b *bar) current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stage
}

func (b *bar) Begin(stage string) {
	b.mu.Lock()
	b.stage = stage
	b.mu.Unlock()
}

func (b *bar) Advance() { b.bar.Increment() }

func (b *bar) Finish(ok bool) {
	if ok {
		b.bar.SetTotal(-1, true)
	} else {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
