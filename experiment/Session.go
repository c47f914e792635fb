package experiment

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/samuelfneumann/pointmass/agent"
	"github.com/samuelfneumann/pointmass/agent/nonlinear/continuous/ddpg"
	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	ts "github.com/samuelfneumann/pointmass/timestep"
)

// Session owns everything a single training run mutates: the
// environment, the agent with its replay buffer and networks, and the
// step counters. A Session is not safe for concurrent use.
type Session struct {
	config Config

	env   *pointmass.PointMass
	agent *ddpg.DDPG

	current ts.TimeStep
	steps   int
	episode int
	runs    int
	runID   string
}

// NewSession creates a new Session and starts its first run
func NewSession(c Config) (*Session, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newSession: %v", err)
	}

	s := &Session{config: c}
	if err := s.Reset(); err != nil {
		return nil, fmt.Errorf("newSession: %v", err)
	}
	return s, nil
}

// Reset starts a new run. The agent is rebuilt from the Config, so the
// replay buffer, networks, and exploration schedule all return to
// their initial values. Counters are zeroed and a new run ID is drawn.
func (s *Session) Reset() error {
	seed := s.config.Seed + uint64(s.runs)

	task := pointmass.NewDefaultReach(seed, s.config.EpisodeCutoff)
	e, first, err := pointmass.New(task, s.config.Agent.Gamma)
	if err != nil {
		return fmt.Errorf("reset: could not create environment: %v", err)
	}

	a, err := ddpg.New(e, s.config.Agent, seed)
	if err != nil {
		return fmt.Errorf("reset: could not create agent: %v", err)
	}
	if err := a.ObserveFirst(first); err != nil {
		a.Close()
		return fmt.Errorf("reset: %v", err)
	}

	if s.agent != nil {
		s.agent.Close()
	}
	s.env = e
	s.agent = a
	s.current = first
	s.steps = 0
	s.episode = 0
	s.runs++
	s.runID = uuid.NewString()

	return nil
}

// Tick performs a single step of training: an action is selected and
// taken in the environment, the resulting transition is stored, and
// once warmup has elapsed the agent learns. The metric of the step and
// the state of the environment after the step are returned. If the
// step ended an episode, the environment is reset.
func (s *Session) Tick() (metric.Metric, pointmass.SimState, error) {
	action, err := s.agent.SelectAction(s.current)
	if err != nil {
		return metric.Metric{}, pointmass.SimState{},
			fmt.Errorf("tick: %v", err)
	}

	next, last, err := s.env.Step(action)
	if err != nil {
		return metric.Metric{}, pointmass.SimState{},
			fmt.Errorf("tick: %v", err)
	}
	if err := s.agent.Observe(action, next); err != nil {
		return metric.Metric{}, pointmass.SimState{},
			fmt.Errorf("tick: %v", err)
	}
	s.steps++

	var update agent.Update
	if s.steps > s.config.WarmupSteps {
		update, err = s.agent.Step()
		if err != nil {
			return metric.Metric{}, pointmass.SimState{},
				fmt.Errorf("tick: %v", err)
		}
	}

	m := metric.Metric{
		Step:       s.steps,
		Reward:     next.Reward,
		CriticLoss: update.CriticLoss,
		ActorLoss:  update.ActorLoss,
		QValue:     update.QValue,
		Episode:    s.episode,
		Epsilon:    s.agent.Epsilon(),
		Terminal:   last,
		Learned:    update.Learned,
	}
	state := s.env.State()

	if last {
		s.agent.EndEpisode()
		s.current = s.env.Reset()
		if err := s.agent.ObserveFirst(s.current); err != nil {
			return m, state, fmt.Errorf("tick: %v", err)
		}
		s.episode++
	} else {
		s.current = next
	}

	return m, state, nil
}

// Steps returns the number of ticks in the current run
func (s *Session) Steps() int {
	return s.steps
}

// Episode returns the number of episodes completed in the current run
func (s *Session) Episode() int {
	return s.episode
}

// RunID returns the unique ID of the current run
func (s *Session) RunID() string {
	return s.runID
}

// State returns the current state of the environment
func (s *Session) State() pointmass.SimState {
	return s.env.State()
}

// Epsilon returns the current exploration scale of the agent
func (s *Session) Epsilon() float64 {
	return s.agent.Epsilon()
}

// Config returns the configuration of the Session
func (s *Session) Config() Config {
	return s.config
}

// Close releases the resources held by the Session's agent
func (s *Session) Close() error {
	if s.agent == nil {
		return nil
	}
	return s.agent.Close()
}
