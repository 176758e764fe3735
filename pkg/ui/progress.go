package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// TileTracker keeps track of a matrix build
type TileTracker struct {
	mu        sync.Mutex
	out       io.Writer
	Total     int
	Computed  int
	Skipped   int
	StartTime time.Time
}

// NewTileTracker creates a tracker for total tiles
func NewTileTracker(w io.Writer, total int) *TileTracker {
	return &TileTracker{
		out:       w,
		Total:     total,
		StartTime: time.Now(),
	}
}

// Record counts one tile. Skipped tiles were already on disk.
func (tt *TileTracker) Record(mode string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if mode == "skipped" {
		tt.Skipped++
	} else {
		tt.Computed++
	}
	if tt.out != nil {
		fmt.Fprintf(tt.out, "\r%s %s", Green("[TILES]"), tt.progressLocked())
	}
}

// Done returns the number of tiles handled so far
func (tt *TileTracker) Done() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.Computed + tt.Skipped
}

// Progress returns a formatted progress bar
func (tt *TileTracker) Progress() string {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.progressLocked()
}

func (tt *TileTracker) progressLocked() string {
	const width = 20
	done := tt.Computed + tt.Skipped
	progress := 1.0
	if tt.Total > 0 {
		progress = float64(done) / float64(tt.Total)
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))

	bar := strings.Repeat(ProgressBar, filled) +
		strings.Repeat(ProgressEmpty, width-filled)

	return fmt.Sprintf("[%s] %d/%d (%d skipped)", bar, done, tt.Total, tt.Skipped)
}

// Rate returns computed tiles per minute
func (tt *TileTracker) Rate() float64 {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	elapsed := time.Since(tt.StartTime).Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(tt.Computed) / elapsed
}
