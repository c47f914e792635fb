// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar implements progress bar functionality that must be
// manually managed. That is, the Display() function must be called
// whenever an updated progress bar should be printed.
//
// ProgressBar is not safe for concurrent use.
type ProgressBar struct {
	out             io.Writer
	width           float64
	maxProgress     float64
	currentProgress float64
	bar             strings.Builder
	startTime       time.Time
}

// New returns a new ProgressBar that is width characters wide, writes
// to out, and reaches 100% after max calls to Increment(). If max <= 0
// the bar only reports the number of increments and the elapsed time.
func New(out io.Writer, width, max int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		width:       float64(width),
		maxProgress: float64(max),
		startTime:   time.Now(),
	}
}

// Increment increments the internal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	if p.maxProgress <= 0 || p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Progress returns the number of increments so far
func (p *ProgressBar) Progress() int {
	return int(p.currentProgress)
}

// String returns the current progress bar followed by status
func (p *ProgressBar) String(status string) string {
	p.bar.Reset()
	elapsed := time.Since(p.startTime).Truncate(time.Second)

	if p.maxProgress <= 0 {
		fmt.Fprintf(&p.bar, "[%v steps | elapsed: %v]", p.currentProgress,
			elapsed)
	} else {
		p.bar.WriteString("|")
		currentProg := p.currentProgress / p.maxProgress * p.width
		for i := 0.0; i < currentProg; i++ {
			p.bar.WriteString("█")
		}
		for i := currentProg; i < p.width; i++ {
			p.bar.WriteString(" ")
		}
		fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]",
			p.currentProgress/p.maxProgress*100, elapsed)
	}

	if status != "" {
		p.bar.WriteString(" " + status)
	}
	return p.bar.String()
}

// Display prints the progress bar over the previously displayed one
func (p *ProgressBar) Display(status string) {
	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.String(status))
}

// Close moves the output past the progress bar
func (p *ProgressBar) Close() {
	fmt.Fprintln(p.out)
}
