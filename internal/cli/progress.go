package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"imgdiff/internal/diff"
)

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	timeoutStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("202"))
)

// newStatusSink picks a progress renderer: a single redrawn line when
// stderr is a terminal, log lines otherwise.
func (r *Root) newStatusSink() diff.StatusSink {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return &termProgress{w: os.Stderr}
	}
	return &logProgress{log: r.log}
}

// termProgress redraws one carriage-return line on a terminal.
type termProgress struct {
	w io.Writer
}

func (p *termProgress) Progress(pos, total int) {
	percent := float64(pos) / float64(total) * 100
	line := fmt.Sprintf("comparing offsets %d/%d (%.0f%%)", pos, total, percent)
	fmt.Fprintf(p.w, "\r%s", progressStyle.Render(line))
}

func (p *termProgress) Done(elapsed time.Duration) {
	fmt.Fprintf(p.w, "\r✓ compared all offsets in %.1fs        \n", elapsed.Seconds())
}

func (p *termProgress) TimedOut(elapsed time.Duration) {
	line := fmt.Sprintf("timed out after %.1fs, skipping highlighting", elapsed.Seconds())
	fmt.Fprintf(p.w, "\r%s\n", timeoutStyle.Render(line))
}

// logProgress reports through the logger when there is no terminal.
type logProgress struct {
	log *slog.Logger
}

func (p *logProgress) Progress(pos, total int) {
	p.log.Info("alignment progress", "pos", pos, "total", total)
}

func (p *logProgress) Done(elapsed time.Duration) {
	p.log.Info("alignment complete", "duration_ms", elapsed.Milliseconds())
}

func (p *logProgress) TimedOut(elapsed time.Duration) {
	p.log.Warn("alignment timed out, skipping highlighting", "duration_ms", elapsed.Milliseconds())
}
