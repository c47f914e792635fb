package tracker

import (
	"fmt"
	"io"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	"github.com/samuelfneumann/pointmass/utils/progressbar"
)

// Progress displays a progress bar of training in a terminal, redrawn
// every refresh steps
type Progress struct {
	bar     *progressbar.ProgressBar
	refresh int
}

// NewProgress returns a new Progress tracker writing to out. If
// maxSteps > 0 the bar is full after maxSteps steps.
func NewProgress(out io.Writer, maxSteps, refresh int) *Progress {
	if refresh < 1 {
		refresh = 1
	}
	return &Progress{
		bar:     progressbar.New(out, 40, maxSteps),
		refresh: refresh,
	}
}

// Track advances the progress bar by one step
func (p *Progress) Track(m metric.Metric, s pointmass.SimState) {
	p.bar.Increment()
	if m.Step%p.refresh == 0 || m.Terminal {
		p.bar.Display(fmt.Sprintf("episode %v | ε %.3f | distance %.3f",
			m.Episode, m.Epsilon, s.Distance()))
	}
}

// Close moves the terminal output past the progress bar
func (p *Progress) Close() {
	p.bar.Close()
}
