package tracker

import (
	"fmt"
	"image/color"
	"os"
	"sync"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Plot renders learning curves of a run to a PNG file when saved. The
// top panel shows the reward of each step with a moving average, and
// the bottom panel shows the critic and actor losses of each learning
// step.
type Plot struct {
	mu       sync.Mutex
	filename string
	smooth   int

	rewards plotter.XYs
	critic  plotter.XYs
	actor   plotter.XYs
}

// NewPlot returns a new Plot which saves to filename. Rewards are
// smoothed with a moving average over smooth steps.
func NewPlot(filename string, smooth int) *Plot {
	if smooth < 1 {
		smooth = 1
	}
	return &Plot{filename: filename, smooth: smooth}
}

// Track records the reward and losses of m
func (p *Plot) Track(m metric.Metric, _ pointmass.SimState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := float64(m.Step)
	p.rewards = append(p.rewards, plotter.XY{X: step, Y: m.Reward})
	if m.Learned {
		p.critic = append(p.critic, plotter.XY{X: step, Y: m.CriticLoss})
		p.actor = append(p.actor, plotter.XY{X: step, Y: m.ActorLoss})
	}
}

// Reset discards the data of the previous run
func (p *Plot) Reset(string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rewards = nil
	p.critic = nil
	p.actor = nil
}

// Save renders the learning curves to the Plot's file
func (p *Plot) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.rewards) == 0 {
		return fmt.Errorf("save: no metrics to plot")
	}

	rewardPlot := plot.New()
	rewardPlot.Title.Text = "Reward"
	rewardPlot.X.Label.Text = "Step"
	rewardPlot.Y.Label.Text = "Reward"

	rewards, err := plotter.NewLine(p.rewards)
	if err != nil {
		return fmt.Errorf("save: could not create reward line: %v", err)
	}
	rewards.Color = color.Gray{Y: 180}
	average, err := plotter.NewLine(movingAverage(p.rewards, p.smooth))
	if err != nil {
		return fmt.Errorf("save: could not create average line: %v", err)
	}
	average.Color = color.RGBA{B: 200, A: 255}
	rewardPlot.Add(rewards, average)
	rewardPlot.Legend.Add("Reward", rewards)
	rewardPlot.Legend.Add(fmt.Sprintf("%v-step average", p.smooth), average)

	lossPlot := plot.New()
	lossPlot.Title.Text = "Loss"
	lossPlot.X.Label.Text = "Step"
	lossPlot.Y.Label.Text = "Loss"
	if len(p.critic) > 0 {
		critic, err := plotter.NewLine(p.critic)
		if err != nil {
			return fmt.Errorf("save: could not create critic line: %v", err)
		}
		critic.Color = color.RGBA{R: 200, A: 255}
		actor, err := plotter.NewLine(p.actor)
		if err != nil {
			return fmt.Errorf("save: could not create actor line: %v", err)
		}
		actor.Color = color.RGBA{G: 150, A: 255}
		lossPlot.Add(critic, actor)
		lossPlot.Legend.Add("Critic", critic)
		lossPlot.Legend.Add("Actor", actor)
	}

	img := vgimg.New(8*vg.Inch, 8*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 2,
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 3 * vg.Millimeter,
	}
	plots := [][]*plot.Plot{{rewardPlot}, {lossPlot}}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	file, err := os.Create(p.filename)
	if err != nil {
		return fmt.Errorf("save: could not create plot file: %v", err)
	}
	defer file.Close()

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(file); err != nil {
		return fmt.Errorf("save: could not write plot: %v", err)
	}
	return nil
}

// movingAverage returns the trailing average of the last window Y
// values at each point of xys
func movingAverage(xys plotter.XYs, window int) plotter.XYs {
	out := make(plotter.XYs, len(xys))
	sum := 0.0
	for i := range xys {
		sum += xys[i].Y
		if i >= window {
			sum -= xys[i-window].Y
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = plotter.XY{X: xys[i].X, Y: sum / float64(n)}
	}
	return out
}
