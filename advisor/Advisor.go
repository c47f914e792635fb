// Package advisor implements advisory collaborators which comment on a
// window of recent training metrics. Advice is purely informational and
// never influences training.
package advisor

import (
	"context"

	"github.com/samuelfneumann/pointmass/metric"
)

// Fallback is the report stored when an Advisor fails
const Fallback = "Advisor unavailable."

// WindowSize is the number of recent metrics sent to an Advisor
const WindowSize = 25

// Advisor returns a textual report on a window of recent metrics. The
// metrics are a read-only snapshot in step order.
type Advisor interface {
	Advise(ctx context.Context, metrics []metric.Metric) (string, error)
}

// Func adapts an ordinary function to an Advisor
type Func func(ctx context.Context, metrics []metric.Metric) (string, error)

// Advise calls f(ctx, metrics)
func (f Func) Advise(ctx context.Context,
	metrics []metric.Metric) (string, error) {
	return f(ctx, metrics)
}
