package simulation

import "time"

// ErrorType classifies a simulated fault.
type ErrorType string

const (
	ErrorNetwork ErrorType = "network"
	ErrorTimeout ErrorType = "timeout"
	ErrorServer  ErrorType = "server"
	ErrorClient  ErrorType = "client"
	ErrorCustom  ErrorType = "custom"
)

// Scenario describes one fault the injector may fire. Immutable once handed
// to the simulator.
type Scenario struct {
	Name        string
	Description string
	Probability float64 // [0,1], clamped on config update
	Type        ErrorType
	StatusCode  int           // when set, the fault is a synthetic response
	Delay       time.Duration // optional suspension before the fault fires
	Message     string
	Retryable   bool
	Err         error // optional custom error, used when StatusCode is 0
}

// Config is the simulator's process-scoped configuration.
type Config struct {
	Enabled         bool
	Scenarios       []Scenario
	Network         *Condition
	GlobalErrorRate float64 // [0,1]
	LogErrors       bool
	RetryAttempts   int
	RetryDelay      time.Duration
}

// DefaultConfig returns a disabled simulator configuration with retry
// defaults matching common client behavior.
func DefaultConfig() Config {
	return Config{
		LogErrors:     true,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// normalize clamps every probability in the config into [0,1].
func (c Config) normalize() Config {
	c.GlobalErrorRate = clampProbability(c.GlobalErrorRate)
	scenarios := make([]Scenario, len(c.Scenarios))
	copy(scenarios, c.Scenarios)
	for i := range scenarios {
		scenarios[i].Probability = clampProbability(scenarios[i].Probability)
	}
	c.Scenarios = scenarios
	return c
}
