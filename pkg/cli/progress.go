package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/replicate/cacheplayer/pkg/player"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))  // dark green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))   // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // yellow
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))  // blue
	streamStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // grey
)

// Progress prints item notifications as single lines. Progress lines are throttled to one per Interval.
type Progress struct {
	player.NopObserver

	Out      io.Writer
	Interval time.Duration
	// Quiet suppresses progress lines but keeps the final outcome.
	Quiet bool

	now       func() time.Time
	lastPrint time.Time
}

func NewProgress(out io.Writer, quiet bool) *Progress {
	return &Progress{Out: out, Interval: 500 * time.Millisecond, Quiet: quiet, now: time.Now}
}

func (p *Progress) ReadyToPlay(item *player.Item) {
	if p.Quiet {
		return
	}
	info, _ := item.ContentInfo()
	size := "unknown size"
	if info.ContentLength >= 0 {
		size = humanize.IBytes(uint64(info.ContentLength))
	}
	source := "network"
	if item.IsLocal() {
		source = "cache"
	}
	p.printf(pendingStyle, "◉ %s (%s, %s from %s)", item.URL(), info.ContentType, size, source)
}

func (p *Progress) FailedToPlay(item *player.Item, err error) {
	p.printf(errorStyle, "✗ cannot play %s: %v", item.URL(), err)
}

func (p *Progress) PlaybackStalled(*player.Item) {
	if p.Quiet {
		return
	}
	p.printf(warningStyle, "! waiting for data")
}

func (p *Progress) DownloadProgress(_ *player.Item, bytesSoFar, bytesExpected int64) {
	if p.Quiet {
		return
	}
	now := p.clock()
	if !p.lastPrint.IsZero() && now.Sub(p.lastPrint) < p.Interval {
		return
	}
	p.lastPrint = now
	if bytesExpected > 0 {
		p.printf(streamStyle, "→ %s / %s (%.0f%%)", humanize.IBytes(uint64(bytesSoFar)),
			humanize.IBytes(uint64(bytesExpected)), float64(bytesSoFar)*100/float64(bytesExpected))
		return
	}
	p.printf(streamStyle, "→ %s", humanize.IBytes(uint64(bytesSoFar)))
}

func (p *Progress) DownloadFinished(_ *player.Item, path string) {
	p.printf(successStyle, "✓ cached at %s", path)
}

func (p *Progress) DownloadFailed(item *player.Item, err error) {
	p.printf(errorStyle, "✗ download of %s failed: %v", item.URL(), err)
}

func (p *Progress) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func (p *Progress) printf(style lipgloss.Style, format string, args ...interface{}) {
	if p.Out == nil {
		return
	}
	fmt.Fprintln(p.Out, style.Render(fmt.Sprintf(format, args...)))
}
