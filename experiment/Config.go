// Package experiment implements functionality for running a training
// session of a DDPG agent on the point-mass environment
package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/samuelfneumann/pointmass/agent/nonlinear/continuous/ddpg"
)

// Config represents a configuration of an experiment
type Config struct {
	Seed uint64

	// Number of environment steps taken before the agent starts
	// learning
	WarmupSteps int

	// Delay between the end of one tick and the start of the next
	TickIntervalMs int

	// Steps after which a Runner stops on its own, 0 for no limit
	MaxSteps int

	// Steps after which an episode is cut off, 0 for no limit
	EpisodeCutoff int

	// Number of recent metrics retained for readers
	WindowSize int

	Agent ddpg.Config
}

// DefaultConfig returns the default experiment configuration
func DefaultConfig() Config {
	return Config{
		Seed:           1,
		WarmupSteps:    300,
		TickIntervalMs: 10,
		MaxSteps:       0,
		EpisodeCutoff:  0,
		WindowSize:     200,
		Agent:          ddpg.DefaultConfig(),
	}
}

// TickInterval returns the delay between ticks
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.WarmupSteps < 0 {
		return fmt.Errorf("validate: warmup steps must be >= 0")
	}
	if c.TickIntervalMs < 0 {
		return fmt.Errorf("validate: tick interval must be >= 0")
	}
	if c.MaxSteps < 0 || c.EpisodeCutoff < 0 {
		return fmt.Errorf("validate: step limits must be >= 0")
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("validate: window size must be > 0")
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("validate: agent: %v", err)
	}
	return nil
}

// LoadConfig loads a JSON Config from the file at path. Fields missing
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not read config: %v",
			err)
	}

	c := DefaultConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not decode config: %v",
			err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("loadConfig: %v", err)
	}
	return c, nil
}
