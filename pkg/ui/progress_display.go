package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay is the single-line crawl progress shown when the TUI is
// off. In verbose mode every user gets its own line instead.
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	direction string
	total     int
	resolved  int
	errored   int
	current   string
	startTime time.Time
	verbose   bool
}

// NewProgressDisplay creates a display writing to stdout
func NewProgressDisplay(verbose bool) *ProgressDisplay {
	return NewProgressDisplayTo(os.Stdout, verbose)
}

// NewProgressDisplayTo creates a display writing to w
func NewProgressDisplayTo(w io.Writer, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       w,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

// StartCrawl resets the counters for a new crawl
func (p *ProgressDisplay) StartCrawl(direction string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.direction = direction
	p.total = total
	p.resolved = 0
	p.errored = 0
	p.current = ""
	p.startTime = time.Now()

	fmt.Fprintf(p.out, "%s crawling %s lists of %d users\n", Magenta("→"), direction, total)
}

// UserResolved counts one resolved user
func (p *ProgressDisplay) UserResolved(id string, neighbours int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resolved++
	p.current = id
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s • %d %ss\n", Green("✓"), id, neighbours, p.direction)
		return
	}
	p.printProgress()
}

// UserErrored counts one user recorded as an error user
func (p *ProgressDisplay) UserErrored(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errored++
	p.current = id
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s • %v\n", Red("✗"), id, err)
		return
	}
	p.printProgress()
}

// Waiting shows a back-off notice
func (p *ProgressDisplay) Waiting(reason string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n%s %s, waiting %s\n", Yellow("⚠"), reason, formatDuration(d))
}

// CheckpointSaved notes a checkpoint in verbose mode
func (p *ProgressDisplay) CheckpointSaved(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verbose {
		fmt.Fprintf(p.out, "%s checkpoint %s\n", Dim("•"), name)
	}
}

// FinishCrawl prints the summary
func (p *ProgressDisplay) FinishCrawl(s CrawlSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark := Green("✓")
	if s.Err != nil {
		mark = Yellow("■")
	}
	fmt.Fprintf(p.out, "\n\n%s Crawled %s lists: %d resolved, %d errors\n", mark, s.Direction, s.Resolved, s.Errored)

	rate := 0.0
	if s.Elapsed > 0 {
		rate = float64(s.Resolved+s.Errored) / s.Elapsed.Minutes()
	}
	fmt.Fprintf(p.out, "  %s %s (%.1f users/min)\n", Dim("•"), formatDuration(s.Elapsed), rate)
	if s.Remaining > 0 {
		fmt.Fprintf(p.out, "  %s %d users left for the next run\n", Dim("•"), s.Remaining)
	}
	if s.Backup != "" {
		fmt.Fprintf(p.out, "  %s backup %s\n", Dim("•"), s.Backup)
	}
	if s.Err != nil {
		fmt.Fprintf(p.out, "  %s stopped: %v\n", Dim("•"), s.Err)
	}
}

// printProgress prints the progress line; callers hold the lock
func (p *ProgressDisplay) printProgress() {
	done := p.resolved + p.errored
	elapsed := time.Since(p.startTime)

	progress := 1.0
	if p.total > 0 {
		progress = float64(done) / float64(p.total)
	}
	if progress > 1 {
		progress = 1
	}
	const barWidth = 20
	filled := int(progress * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	rate := 0.0
	if elapsed > 0 {
		rate = float64(done) / elapsed.Minutes()
	}

	line := fmt.Sprintf("%s [%s] %d/%d • %.1f/min • %s",
		Cyan(p.direction),
		bar,
		done,
		p.total,
		rate,
		p.eta(done, elapsed),
	)
	if p.current != "" {
		line += fmt.Sprintf(" • %s", p.current)
	}
	if p.errored > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", p.errored)))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

func (p *ProgressDisplay) eta(done int, elapsed time.Duration) string {
	if done == 0 || elapsed <= 0 {
		return "calculating..."
	}
	remaining := p.total - done
	if remaining <= 0 {
		return "0s"
	}
	perUser := elapsed / time.Duration(done)
	return formatDuration(perUser * time.Duration(remaining))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

var _ Reporter = (*ProgressDisplay)(nil)
