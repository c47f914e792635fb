package tracker

import (
	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"
)

// Logger logs a summary of training every interval steps and at the
// end of each episode
type Logger struct {
	logger   *zap.Logger
	interval int
	runID    string

	episodeReturn float64
}

// NewLogger returns a new Logger which logs to logger. If interval <= 0
// only the ends of episodes are logged.
func NewLogger(logger *zap.Logger, interval int) *Logger {
	return &Logger{logger: logger, interval: interval}
}

// Track logs m if it falls on the logging interval or ends an episode
func (l *Logger) Track(m metric.Metric, s pointmass.SimState) {
	l.episodeReturn += m.Reward

	if l.interval > 0 && m.Step%l.interval == 0 {
		l.logger.Info("training",
			zap.String("run", l.runID),
			zap.Int("step", m.Step),
			zap.Int("episode", m.Episode),
			zap.Float64("reward", m.Reward),
			zap.Float64("criticLoss", m.CriticLoss),
			zap.Float64("actorLoss", m.ActorLoss),
			zap.Float64("q", m.QValue),
			zap.Float64("epsilon", m.Epsilon),
			zap.Bool("learned", m.Learned),
		)
	}

	if m.Terminal {
		l.logger.Debug("episode finished",
			zap.String("run", l.runID),
			zap.Int("step", m.Step),
			zap.Int("episode", m.Episode),
			zap.Float64("return", l.episodeReturn),
			zap.Float64("distance", s.Distance()),
		)
		l.episodeReturn = 0
	}
}

// Reset logs the start of a new run
func (l *Logger) Reset(runID string) {
	l.runID = runID
	l.episodeReturn = 0
	l.logger.Info("run reset", zap.String("run", runID))
}
