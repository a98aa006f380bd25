// Package config loads and validates faultline scenario files.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/faultline/internal/ratelimit"
	"github.com/FairForge/faultline/internal/retry"
	"github.com/FairForge/faultline/internal/simulation"
	"github.com/FairForge/faultline/internal/stress"
)

// Duration decodes yaml scalars like "250ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root of a scenario file.
type Config struct {
	Target     TargetConfig     `yaml:"target"`
	LogLevel   string           `yaml:"log_level"`
	Cooldown   Duration         `yaml:"cooldown"`
	Simulation SimulationConfig `yaml:"simulation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Tests      []TestConfig     `yaml:"tests"`
	Stress     []StressConfig   `yaml:"stress"`
}

// TargetConfig points at the service under test.
type TargetConfig struct {
	BaseURL  string   `yaml:"base_url"`
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// SimulationConfig configures fault injection.
type SimulationConfig struct {
	Enabled          bool             `yaml:"enabled"`
	GlobalErrorRate  float64          `yaml:"global_error_rate"`
	NetworkCondition string           `yaml:"network_condition"` // preset name, empty for none
	LogErrors        bool             `yaml:"log_errors"`
	Seed             int64            `yaml:"seed"` // 0 means time-seeded
	Scenarios        []ScenarioConfig `yaml:"scenarios"`
}

// ScenarioConfig is one injectable fault.
type ScenarioConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Probability float64  `yaml:"probability"`
	Type        string   `yaml:"type"`
	StatusCode  int      `yaml:"status_code"`
	Delay       Duration `yaml:"delay"`
	Message     string   `yaml:"message"`
	Retryable   bool     `yaml:"retryable"`
}

// RateLimitConfig mirrors ratelimit.Config.
type RateLimitConfig struct {
	Strategy    string                  `yaml:"strategy"`
	Window      Duration                `yaml:"window"`
	MaxRequests int                     `yaml:"max_requests"`
	BurstSize   int                     `yaml:"burst_size"`
	Backoff     string                  `yaml:"backoff"`
	Headers     ratelimit.HeaderMapping `yaml:"headers"`
}

// TestConfig is one rate-limit test.
type TestConfig struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Pattern     PatternConfig `yaml:"pattern"`
	Expect      ExpectConfig  `yaml:"expect"`
	Timeout     Duration      `yaml:"timeout"`
}

// PatternConfig describes a request schedule.
type PatternConfig struct {
	Type         string     `yaml:"type"`
	RequestCount int        `yaml:"request_count"`
	Timeframe    Duration   `yaml:"timeframe"`
	Delay        Duration   `yaml:"delay"`
	Custom       []Duration `yaml:"custom"`
}

// ExpectConfig is the expectation contract.
type ExpectConfig struct {
	MaxSuccessfulRequests int  `yaml:"max_successful_requests"`
	ExpectedStatus        int  `yaml:"expected_status"`
	ShouldHitRateLimit    bool `yaml:"should_hit_rate_limit"`
	RetryAfterExpected    bool `yaml:"retry_after_expected"`
	ResetTimeExpected     bool `yaml:"reset_time_expected"`
	BackoffExpected       bool `yaml:"backoff_expected"`
}

// StressConfig is one stress scenario.
type StressConfig struct {
	Name        string   `yaml:"name"`
	Duration    Duration `yaml:"duration"`
	Concurrency int      `yaml:"concurrency"`
	TargetRPS   int      `yaml:"target_rps"`
}

// networkPresets maps config names to conditions.
var networkPresets = map[string]simulation.Condition{
	"perfect":   simulation.PerfectNetwork,
	"broadband": simulation.Broadband,
	"mobile-3g": simulation.Mobile3G,
	"flaky":     simulation.Flaky,
	"satellite": simulation.Satellite,
}

// SimulationSettings converts to the simulator's config.
func (c *Config) SimulationSettings() (simulation.Config, error) {
	sim := c.Simulation
	cfg := simulation.Config{
		Enabled:         sim.Enabled,
		GlobalErrorRate: sim.GlobalErrorRate,
		LogErrors:       sim.LogErrors,
	}

	if sim.NetworkCondition != "" {
		preset, ok := networkPresets[sim.NetworkCondition]
		if !ok {
			return cfg, fmt.Errorf("unknown network condition preset %q", sim.NetworkCondition)
		}
		cfg.Network = &preset
	}

	for _, sc := range sim.Scenarios {
		cfg.Scenarios = append(cfg.Scenarios, simulation.Scenario{
			Name:        sc.Name,
			Description: sc.Description,
			Probability: sc.Probability,
			Type:        simulation.ErrorType(sc.Type),
			StatusCode:  sc.StatusCode,
			Delay:       sc.Delay.Std(),
			Message:     sc.Message,
			Retryable:   sc.Retryable,
		})
	}
	return cfg, nil
}

// RateLimitSettings converts to the tester's config.
func (c *Config) RateLimitSettings() ratelimit.Config {
	return ratelimit.Config{
		Strategy:    c.RateLimit.Strategy,
		Window:      c.RateLimit.Window.Std(),
		MaxRequests: c.RateLimit.MaxRequests,
		BurstSize:   c.RateLimit.BurstSize,
		Backoff:     retry.Strategy(c.RateLimit.Backoff),
		Headers:     c.RateLimit.Headers,
	}
}

// RateLimitTests converts the declared tests.
func (c *Config) RateLimitTests() []ratelimit.Test {
	tests := make([]ratelimit.Test, 0, len(c.Tests))
	for _, tc := range c.Tests {
		custom := make([]time.Duration, 0, len(tc.Pattern.Custom))
		for _, d := range tc.Pattern.Custom {
			custom = append(custom, d.Std())
		}
		tests = append(tests, ratelimit.Test{
			Name:        tc.Name,
			Description: tc.Description,
			Pattern: ratelimit.Pattern{
				Type:         ratelimit.PatternType(tc.Pattern.Type),
				RequestCount: tc.Pattern.RequestCount,
				Timeframe:    tc.Pattern.Timeframe.Std(),
				Delay:        tc.Pattern.Delay.Std(),
				Custom:       custom,
			},
			Expect: ratelimit.Expectation{
				MaxSuccessfulRequests: tc.Expect.MaxSuccessfulRequests,
				ExpectedStatus:        tc.Expect.ExpectedStatus,
				ShouldHitRateLimit:    tc.Expect.ShouldHitRateLimit,
				RetryAfterExpected:    tc.Expect.RetryAfterExpected,
				ResetTimeExpected:     tc.Expect.ResetTimeExpected,
				BackoffExpected:       tc.Expect.BackoffExpected,
			},
			Timeout: tc.Timeout.Std(),
		})
	}
	return tests
}

// StressScenarios converts the declared stress phases.
func (c *Config) StressScenarios() []stress.Scenario {
	scenarios := make([]stress.Scenario, 0, len(c.Stress))
	for _, sc := range c.Stress {
		scenarios = append(scenarios, stress.Scenario{
			Name:        sc.Name,
			Duration:    sc.Duration.Std(),
			Concurrency: sc.Concurrency,
			TargetRPS:   sc.TargetRPS,
		})
	}
	return scenarios
}
