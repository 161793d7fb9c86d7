package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kiranshivaraju/jobclock/internal/timer"
	"github.com/pterm/pterm"
)

const barWidth = 30

// terminalRenderer redraws the timer on a single line and prints notices
// on their own lines.
type terminalRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

func newTerminalRenderer(out io.Writer, color bool) *terminalRenderer {
	return &terminalRenderer{out: out, color: color}
}

func (r *terminalRenderer) Render(f timer.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\r\x1b[2K%s", r.line(f))
}

func (r *terminalRenderer) Notice(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out)
	r.printer(pterm.Warning).Println(err.Error())
}

func (r *terminalRenderer) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out)
	r.printer(pterm.Info).Println(msg)
}

func (r *terminalRenderer) line(f timer.Frame) string {
	clock := f.Formatted
	bar := progressBar(f.Percent)
	switch {
	case f.Overrun:
		clock = r.style(pterm.FgRed, clock)
		bar = r.style(pterm.FgRed, bar)
	case f.State == timer.StateRunning:
		clock = r.style(pterm.FgGreen, clock)
	}

	status := string(f.State)
	if f.Status != "" {
		status = f.Status
	}
	return fmt.Sprintf("%s %s %5.1f%%  [%s]  %s", clock, bar, f.Percent, status, controlsHint(f.Controls))
}

func (r *terminalRenderer) style(color pterm.Color, s string) string {
	if !r.color {
		return s
	}
	return color.Sprint(s)
}

func (r *terminalRenderer) printer(p pterm.PrefixPrinter) *pterm.PrefixPrinter {
	if !r.color {
		p.Prefix.Style = pterm.NewStyle()
		p.MessageStyle = pterm.NewStyle()
	}
	return p.WithWriter(r.out)
}

func progressBar(percent float64) string {
	filled := int(percent / 100 * barWidth)
	filled = max(0, min(filled, barWidth))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

func controlsHint(c timer.Controls) string {
	var opts []string
	if c.Start {
		opts = append(opts, "start")
	}
	if c.Pause {
		opts = append(opts, "pause <reason>")
	}
	if c.Resume {
		opts = append(opts, "resume")
	}
	if c.Stop {
		opts = append(opts, "stop")
	}
	opts = append(opts, "quit")
	return strings.Join(opts, " | ")
}
