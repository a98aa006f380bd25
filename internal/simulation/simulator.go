package simulation

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/faultline/internal/events"
	"github.com/FairForge/faultline/internal/metrics"
	"github.com/FairForge/faultline/internal/transport"
)

// MarkerHeader identifies synthetic responses produced by the injector.
const MarkerHeader = "X-Faultline-Simulated"

// ErrorLog is one append-only record of a simulated fault.
type ErrorLog struct {
	Timestamp  time.Time
	Scenario   string
	Type       ErrorType
	StatusCode int
	URL        string
	Method     string
	Attempt    int
	Duration   time.Duration
}

// Stats is a point-in-time snapshot of simulator counters. Derived fields
// are recomputed on read.
type Stats struct {
	TotalRequests   int64
	SimulatedErrors int64
	NetworkErrors   int64
	TimeoutErrors   int64
	ServerErrors    int64
	ClientErrors    int64
	AverageLatency  time.Duration
	ErrorRate       float64
}

// Simulator owns fault-injection state: the active configuration, counters
// and the error log. It is safe for concurrent use.
type Simulator struct {
	mu      sync.Mutex
	cfg     Config
	rng     Source
	logger  *zap.Logger
	bus     *events.Bus
	metrics *metrics.Collector

	logs []ErrorLog

	totalRequests   int64
	simulatedErrors int64
	networkErrors   int64
	timeoutErrors   int64
	serverErrors    int64
	clientErrors    int64
	successCount    int64
	successLatency  time.Duration
}

// NewSimulator creates a simulator. A nil bus disables notifications, a nil
// collector disables metrics, and a nil rng falls back to a time-seeded
// source.
func NewSimulator(cfg Config, rng Source, logger *zap.Logger, bus *events.Bus, collector *metrics.Collector) *Simulator {
	if rng == nil {
		rng = NewSource(time.Now().UnixNano())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		cfg:     cfg.normalize(),
		rng:     rng,
		logger:  logger,
		bus:     bus,
		metrics: collector,
	}
}

// Start enables injection.
func (s *Simulator) Start() {
	s.mu.Lock()
	s.cfg.Enabled = true
	s.mu.Unlock()
	s.logger.Info("error simulation started")
	s.bus.Publish(events.SimulatorStarted, nil)
}

// Stop disables injection and emits a final stats snapshot.
func (s *Simulator) Stop() {
	s.mu.Lock()
	s.cfg.Enabled = false
	stats := s.statsLocked()
	s.mu.Unlock()
	s.logger.Info("error simulation stopped",
		zap.Int64("total_requests", stats.TotalRequests),
		zap.Int64("simulated_errors", stats.SimulatedErrors))
	s.bus.Publish(events.SimulatorStopped, map[string]interface{}{
		"total_requests":   stats.TotalRequests,
		"simulated_errors": stats.SimulatedErrors,
		"error_rate":       stats.ErrorRate,
	})
}

// Enabled reports whether injection is active.
func (s *Simulator) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// UpdateConfig replaces the configuration, preserving the enabled flag.
func (s *Simulator) UpdateConfig(cfg Config) {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	s.cfg = cfg.normalize()
	s.cfg.Enabled = enabled
	s.mu.Unlock()
	s.bus.Publish(events.ConfigUpdated, nil)
}

// AddScenario appends a scenario to the configured list.
func (s *Simulator) AddScenario(sc Scenario) {
	sc.Probability = clampProbability(sc.Probability)
	s.mu.Lock()
	s.cfg.Scenarios = append(s.cfg.Scenarios, sc)
	s.mu.Unlock()
	s.bus.Publish(events.ConfigUpdated, map[string]interface{}{"scenario": sc.Name})
}

// RemoveScenario deletes the named scenario. It reports whether a scenario
// was removed.
func (s *Simulator) RemoveScenario(name string) bool {
	s.mu.Lock()
	removed := false
	kept := s.cfg.Scenarios[:0]
	for _, sc := range s.cfg.Scenarios {
		if sc.Name == name {
			removed = true
			continue
		}
		kept = append(kept, sc)
	}
	s.cfg.Scenarios = kept
	s.mu.Unlock()
	if removed {
		s.bus.Publish(events.ConfigUpdated, map[string]interface{}{"scenario": name})
	}
	return removed
}

// SetNetworkCondition replaces the active network condition. Passing nil
// clears it.
func (s *Simulator) SetNetworkCondition(cond *Condition) {
	s.mu.Lock()
	if cond == nil {
		s.cfg.Network = nil
	} else {
		c := *cond
		s.cfg.Network = &c
	}
	s.mu.Unlock()
	name := ""
	if cond != nil {
		name = cond.Name
	}
	s.logger.Info("network condition changed", zap.String("condition", name))
	s.bus.Publish(events.NetworkConditionChanged, map[string]interface{}{"condition": name})
}

// Stats returns a snapshot with derived fields recomputed.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Simulator) statsLocked() Stats {
	st := Stats{
		TotalRequests:   s.totalRequests,
		SimulatedErrors: s.simulatedErrors,
		NetworkErrors:   s.networkErrors,
		TimeoutErrors:   s.timeoutErrors,
		ServerErrors:    s.serverErrors,
		ClientErrors:    s.clientErrors,
	}
	if s.successCount > 0 {
		st.AverageLatency = s.successLatency / time.Duration(s.successCount)
	}
	if s.totalRequests > 0 {
		st.ErrorRate = float64(s.simulatedErrors) / float64(s.totalRequests)
	}
	return st
}

// ErrorLogs returns a copy of the append-only error log.
func (s *Simulator) ErrorLogs() []ErrorLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ErrorLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// ClearLogs empties the error log.
func (s *Simulator) ClearLogs() {
	s.mu.Lock()
	s.logs = nil
	s.mu.Unlock()
}

// ResetStats zeroes all counters.
func (s *Simulator) ResetStats() {
	s.mu.Lock()
	s.totalRequests = 0
	s.simulatedErrors = 0
	s.networkErrors = 0
	s.timeoutErrors = 0
	s.serverErrors = 0
	s.clientErrors = 0
	s.successCount = 0
	s.successLatency = 0
	s.mu.Unlock()
}

// snapshotConfig returns the pieces Evaluate needs without holding the lock
// across sleeps.
func (s *Simulator) snapshotConfig() (bool, *Condition, []Scenario, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled, s.cfg.Network, s.cfg.Scenarios, s.cfg.GlobalErrorRate
}

// Evaluate decides whether to short-circuit the request identified by url
// and method. It returns either a synthetic response or an injected error;
// both nil means the real call should proceed. The scenario list is never
// mutated.
func (s *Simulator) Evaluate(ctx context.Context, url, method string, start time.Time) (*transport.Response, error) {
	enabled, _, scenarios, globalRate := s.snapshotConfig()
	if !enabled {
		return nil, nil
	}

	scenario := s.selectScenario(scenarios, globalRate)
	if scenario == nil {
		return nil, nil
	}

	if scenario.Delay > 0 {
		timer := time.NewTimer(scenario.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.recordFault(*scenario, url, method, time.Since(start))

	if scenario.StatusCode != 0 {
		headers := http.Header{}
		headers.Set(MarkerHeader, scenario.Name)
		if scenario.Message != "" {
			headers.Set("X-Faultline-Message", scenario.Message)
		}
		return &transport.Response{
			Status:     scenario.StatusCode,
			Headers:    headers,
			Duration:   time.Since(start),
			ReceivedAt: time.Now(),
		}, nil
	}

	if scenario.Err != nil {
		return nil, scenario.Err
	}
	return nil, &ScenarioError{
		Scenario:  scenario.Name,
		Type:      scenario.Type,
		Message:   scenario.Message,
		retryable: scenario.Retryable,
	}
}

// selectScenario implements the two-stage draw: the global error rate picks
// uniformly among retryable scenarios (any scenario if none are retryable);
// otherwise the first scenario whose own probability fires wins.
func (s *Simulator) selectScenario(scenarios []Scenario, globalRate float64) *Scenario {
	if len(scenarios) == 0 {
		return nil
	}

	if globalRate > 0 && s.rng.Float64() < globalRate {
		pool := make([]int, 0, len(scenarios))
		for i := range scenarios {
			if scenarios[i].Retryable {
				pool = append(pool, i)
			}
		}
		if len(pool) == 0 {
			for i := range scenarios {
				pool = append(pool, i)
			}
		}
		sc := scenarios[pool[s.rng.Intn(len(pool))]]
		return &sc
	}

	for i := range scenarios {
		if scenarios[i].Probability > 0 && s.rng.Float64() < scenarios[i].Probability {
			sc := scenarios[i]
			return &sc
		}
	}
	return nil
}

// recordFault appends one log entry and bumps the matching counter.
func (s *Simulator) recordFault(sc Scenario, url, method string, elapsed time.Duration) {
	entry := ErrorLog{
		Timestamp:  time.Now(),
		Scenario:   sc.Name,
		Type:       sc.Type,
		StatusCode: sc.StatusCode,
		URL:        url,
		Method:     method,
		Attempt:    1,
		Duration:   elapsed,
	}

	s.mu.Lock()
	logErrors := s.cfg.LogErrors
	s.logs = append(s.logs, entry)
	s.simulatedErrors++
	switch sc.Type {
	case ErrorNetwork:
		s.networkErrors++
	case ErrorTimeout:
		s.timeoutErrors++
	case ErrorServer:
		s.serverErrors++
	case ErrorClient:
		s.clientErrors++
	}
	s.mu.Unlock()

	s.metrics.RecordFault(string(sc.Type))
	if logErrors {
		s.logger.Warn("injected fault",
			zap.String("scenario", sc.Name),
			zap.String("type", string(sc.Type)),
			zap.Int("status", sc.StatusCode),
			zap.String("method", method),
			zap.String("url", url))
	}
	s.bus.Publish(events.SimulatedError, map[string]interface{}{
		"scenario": sc.Name,
		"type":     string(sc.Type),
		"url":      url,
		"method":   method,
	})
}

// recordNetworkFailure accounts for a fault raised by the condition model.
func (s *Simulator) recordNetworkFailure(cond string, url, method string, elapsed time.Duration) {
	s.recordFault(Scenario{
		Name:    fmt.Sprintf("network-condition/%s", cond),
		Type:    ErrorNetwork,
		Message: "connection failed under simulated network condition",
	}, url, method, elapsed)
}

// recordRequest counts one call through the interceptor.
func (s *Simulator) recordRequest() {
	s.mu.Lock()
	s.totalRequests++
	s.mu.Unlock()
}

// recordSuccess feeds a success-path latency sample into the running average.
func (s *Simulator) recordSuccess(latency time.Duration) {
	s.mu.Lock()
	s.successCount++
	s.successLatency += latency
	s.mu.Unlock()
}

// networkCondition returns the active condition, if any.
func (s *Simulator) networkCondition() *Condition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Network == nil {
		return nil
	}
	c := *s.cfg.Network
	return &c
}

func (s *Simulator) source() Source { return s.rng }
