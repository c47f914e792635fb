package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/samuelfneumann/pointmass/metric"
	"gonum.org/v1/gonum/stat"
)

// Summary is an offline Advisor which describes the statistics of the
// metric window
type Summary struct {
	// Slopes of the reward per step smaller than Flat in magnitude are
	// reported as flat
	Flat float64

	// Mean critic losses above HighLoss are reported as high
	HighLoss float64
}

// NewSummary returns a Summary with default thresholds
func NewSummary() *Summary {
	return &Summary{Flat: 1e-3, HighLoss: 1.0}
}

// Advise summarises the reward trend, losses, and exploration of the
// metric window
func (s *Summary) Advise(ctx context.Context,
	metrics []metric.Metric) (string, error) {
	if len(metrics) == 0 {
		return "", fmt.Errorf("advise: no metrics")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("advise: %v", err)
	}

	steps := make([]float64, len(metrics))
	rewards := make([]float64, len(metrics))
	var criticLosses, actorLosses []float64
	episodes := 0
	for i, m := range metrics {
		steps[i] = float64(m.Step)
		rewards[i] = m.Reward
		if m.Learned {
			criticLosses = append(criticLosses, m.CriticLoss)
			actorLosses = append(actorLosses, m.ActorLoss)
		}
		if m.Terminal {
			episodes++
		}
	}
	first, last := metrics[0], metrics[len(metrics)-1]

	var b strings.Builder
	mean, std := stat.MeanStdDev(rewards, nil)
	fmt.Fprintf(&b, "Steps %v-%v: mean reward %.3f (σ %.3f), %v episode(s) "+
		"finished. ", first.Step, last.Step, mean, std, episodes)

	if len(rewards) > 1 {
		_, slope := stat.LinearRegression(steps, rewards, nil, false)
		switch {
		case slope > s.Flat:
			fmt.Fprintf(&b, "Reward is improving (%+.4f per step). ", slope)
		case slope < -s.Flat:
			fmt.Fprintf(&b, "Reward is declining (%+.4f per step). ", slope)
		default:
			b.WriteString("Reward is flat. ")
		}
	}

	if len(criticLosses) == 0 {
		b.WriteString("The agent is still warming up and has not learned. ")
	} else {
		criticLoss := stat.Mean(criticLosses, nil)
		fmt.Fprintf(&b, "Mean critic loss %.4f, mean actor loss %.4f. ",
			criticLoss, stat.Mean(actorLosses, nil))
		if criticLoss > s.HighLoss {
			b.WriteString("Critic loss is high; value estimates are " +
				"still unstable. ")
		}
	}

	fmt.Fprintf(&b, "Exploration ε = %.3f.", last.Epsilon)
	return b.String(), nil
}
