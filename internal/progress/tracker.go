// Package progress renders a terminal progress bar over chunk inference.
// Chunk resolutions arrive from concurrent workers, so the counter is atomic.
package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker tracks chunk inference progress.
type Tracker struct {
	bar       *progressbar.ProgressBar
	total     int64
	resolved  atomic.Int64
	degraded  atomic.Int64
	startTime time.Time
	quiet     bool
}

// New creates a tracker for totalChunks chunks. When quiet is set, no bar is
// drawn and only the summary line is printed.
func New(totalChunks int, quiet bool) *Tracker {
	t := &Tracker{
		total:     int64(totalChunks),
		startTime: time.Now(),
		quiet:     quiet,
	}
	if !quiet {
		t.bar = progressbar.NewOptions(
			totalChunks,
			progressbar.OptionSetDescription("Inferring"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("chunks"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	return t
}

// ChunkDone records one resolved chunk.
func (t *Tracker) ChunkDone() {
	t.resolved.Add(1)
	if t.bar != nil {
		t.bar.Add(1)
	}
}

// SetDegraded records how many chunks fell back to heuristics, for the
// summary line. Known only once all outcomes are in.
func (t *Tracker) SetDegraded(n int64) {
	t.degraded.Store(n)
}

// Resolved returns the number of chunks recorded so far.
func (t *Tracker) Resolved() int64 {
	return t.resolved.Load()
}

// Finish closes the bar and prints a one-line summary.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
		fmt.Println()
	}
	elapsed := time.Since(t.startTime).Round(time.Millisecond)
	if d := t.degraded.Load(); d > 0 {
		fmt.Printf("Inferred %d/%d chunks in %s (%d degraded to heuristics)\n",
			t.resolved.Load(), t.total, elapsed, d)
	} else {
		fmt.Printf("Inferred %d/%d chunks in %s\n", t.resolved.Load(), t.total, elapsed)
	}
}
