// Package metric implements the record emitted for each training step
package metric

import "fmt"

// Metric summarises a single tick of training. Losses and the action
// value are 0 on ticks where the agent did not learn.
type Metric struct {
	Step       int     `json:"step"`
	Reward     float64 `json:"reward"`
	CriticLoss float64 `json:"criticLoss"`
	ActorLoss  float64 `json:"actorLoss"`
	QValue     float64 `json:"qValue"`

	Episode  int     `json:"episode"`
	Epsilon  float64 `json:"epsilon"`
	Terminal bool    `json:"terminal"` // Whether the tick ended an episode
	Learned  bool    `json:"learned"`
}

func (m Metric) String() string {
	return fmt.Sprintf("Step %v | Episode %v | Reward: %.4f | Critic Loss: "+
		"%.5f | Actor Loss: %.5f | Q: %.4f | ε: %.3f", m.Step, m.Episode,
		m.Reward, m.CriticLoss, m.ActorLoss, m.QValue, m.Epsilon)
}

// Last returns the last n metrics of ms, or all of ms if it holds fewer
// than n metrics. The returned slice is a copy.
func Last(ms []Metric, n int) []Metric {
	if n < 0 {
		n = 0
	}
	if n > len(ms) {
		n = len(ms)
	}
	out := make([]Metric, n)
	copy(out, ms[len(ms)-n:])
	return out
}
